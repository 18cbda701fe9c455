package exp

import (
	"testing"

	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/rwdnorm"
	"github.com/samuelfneumann/gorl/timestep"
)

const positionChannel = "position"

// stepObs builds one batched observation over nbEnv instances, filling
// every instance's single feature with value.
func stepObs(nbEnv int, value float64) timestep.Observation {
	backing := make([]float64, nbEnv)
	for i := range backing {
		backing[i] = value
	}
	return timestep.Observation{
		positionChannel: tensor.NewDense(
			tensor.Float64,
			tensor.Shape{nbEnv, 1},
			tensor.WithBacking(backing),
		),
	}
}

func identityNorm(t *testing.T) rwdnorm.Normalizer {
	normalizer, err := rwdnorm.Config{Type: rwdnorm.Identity}.Create()
	if err != nil {
		t.Fatal(err)
	}
	return normalizer
}

func row(nbEnv int, value float64) *tensor.Dense {
	backing := make([]float64, nbEnv)
	for i := range backing {
		backing[i] = value
	}
	return tensor.NewDense(tensor.Float64, tensor.Shape{nbEnv},
		tensor.WithBacking(backing))
}

func TestRolloutFillsToHorizon(t *testing.T) {
	const horizon, nbEnv = 5, 2
	r, err := NewRollout(horizon, nbEnv, identityNorm(t),
		[]string{"values"})
	if err != nil {
		t.Fatal(err)
	}

	if r.IsReady() {
		t.Error("empty rollout reports ready")
	}
	if _, err := r.Read(); !IsNotReady(err) {
		t.Errorf("reading an unfilled rollout should not be ready, got %v",
			err)
	}

	for step := 0; step < horizon; step++ {
		err := r.WriteForward(map[string]*tensor.Dense{
			"values": row(nbEnv, float64(step)),
		})
		if err != nil {
			t.Fatal(err)
		}

		rewards := []float64{float64(step), -float64(step)}
		terminals := []float64{0, 0}
		if step == 2 {
			terminals[1] = 1
		}
		err = r.WriteEnv(stepObs(nbEnv, float64(step)), rewards, terminals,
			nil)
		if err != nil {
			t.Fatal(err)
		}
	}

	if !r.IsReady() {
		t.Error("full rollout reports not ready")
	}
	if err := r.WriteEnv(stepObs(nbEnv, 0), []float64{0, 0},
		[]float64{0, 0}, nil); err == nil {
		t.Error("writing past the horizon should fail")
	}

	batch, err := r.Read()
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Rewards) != horizon {
		t.Errorf("wrong number of reward steps \n\twant(%v)\n\thave(%v)",
			horizon, len(batch.Rewards))
	}

	for step := 0; step < horizon; step++ {
		rewards := batch.Rewards[step].Data().([]float64)
		if rewards[0] != float64(step) || rewards[1] != -float64(step) {
			t.Errorf("wrong rewards at step %d \n\twant(%v)\n\thave(%v)",
				step, []float64{float64(step), -float64(step)}, rewards)
		}

		values := batch.Fields["values"][step].Data().([]float64)
		if values[0] != float64(step) {
			t.Errorf("wrong cached value at step %d \n\twant(%v)\n\thave(%v)",
				step, float64(step), values[0])
		}
	}

	terminals := batch.Terminals[2].Data().([]float64)
	if terminals[0] != 0 || terminals[1] != 1 {
		t.Errorf("wrong terminals at step 2 \n\twant(%v)\n\thave(%v)",
			[]float64{0, 1}, terminals)
	}
}

func TestRolloutRejectsUndeclaredField(t *testing.T) {
	r, err := NewRollout(2, 1, identityNorm(t), []string{"values"})
	if err != nil {
		t.Fatal(err)
	}

	err = r.WriteForward(map[string]*tensor.Dense{
		"log_probs": row(1, 0),
	})
	if !IsIncompatibleKey(err) {
		t.Errorf("writing an undeclared field should report an "+
			"incompatible key, got %v", err)
	}
}

func TestRolloutRejectsForwardWritePastHorizon(t *testing.T) {
	const horizon, nbEnv = 2, 1
	r, err := NewRollout(horizon, nbEnv, identityNorm(t), []string{"values"})
	if err != nil {
		t.Fatal(err)
	}

	for step := 0; step < horizon; step++ {
		err := r.WriteForward(map[string]*tensor.Dense{
			"values": row(nbEnv, float64(step)),
		})
		if err != nil {
			t.Fatal(err)
		}
		if err := r.WriteEnv(stepObs(nbEnv, float64(step)), []float64{0},
			[]float64{0}, nil); err != nil {
			t.Fatal(err)
		}
	}

	// An extra forward write on a full cache would desynchronize the
	// field sequences from the environment-step sequences.
	err = r.WriteForward(map[string]*tensor.Dense{"values": row(nbEnv, 9)})
	if err == nil {
		t.Fatal("forward write past the horizon should fail")
	}
	if len(r.fields["values"]) != horizon {
		t.Errorf("field sequence grew past the horizon "+
			"\n\twant(%v)\n\thave(%v)", horizon, len(r.fields["values"]))
	}
}

func TestRolloutClearIsIdempotent(t *testing.T) {
	const horizon, nbEnv = 3, 2
	r, err := NewRollout(horizon, nbEnv, identityNorm(t), nil)
	if err != nil {
		t.Fatal(err)
	}

	for step := 0; step < horizon; step++ {
		err := r.WriteEnv(stepObs(nbEnv, 1), []float64{1, 1},
			[]float64{0, 0}, nil)
		if err != nil {
			t.Fatal(err)
		}
	}

	r.Clear()
	if r.Len() != 0 || r.IsReady() {
		t.Errorf("cleared rollout not empty: len %d ready %v", r.Len(),
			r.IsReady())
	}

	r.Clear() // clearing an empty cache is a no-op
	if r.Len() != 0 {
		t.Errorf("double clear corrupted the cache: len %d", r.Len())
	}

	// The cache must fill again after clearing
	for step := 0; step < horizon; step++ {
		err := r.WriteEnv(stepObs(nbEnv, 2), []float64{2, 2},
			[]float64{0, 0}, nil)
		if err != nil {
			t.Fatal(err)
		}
	}
	if !r.IsReady() {
		t.Error("refilled rollout reports not ready")
	}
}

func TestRolloutNormalizesRewards(t *testing.T) {
	normalizer, err := rwdnorm.Config{
		Type: rwdnorm.Clip,
		Min:  -1,
		Max:  1,
	}.Create()
	if err != nil {
		t.Fatal(err)
	}

	r, err := NewRollout(1, 2, normalizer, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := r.WriteEnv(stepObs(2, 0), []float64{10, -0.5},
		[]float64{0, 0}, nil); err != nil {
		t.Fatal(err)
	}

	batch, err := r.Read()
	if err != nil {
		t.Fatal(err)
	}
	rewards := batch.Rewards[0].Data().([]float64)
	if rewards[0] != 1 || rewards[1] != -0.5 {
		t.Errorf("rewards not normalized \n\twant(%v)\n\thave(%v)",
			[]float64{1, -0.5}, rewards)
	}
}
