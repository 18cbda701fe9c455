package exp

import (
	"testing"

	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/spec"
	"github.com/samuelfneumann/gorl/timestep"
)

// newTestReplay creates a replay cache over two environment instances
// with a single scalar observation channel and a "values" forward
// field. Log messages are swallowed so cache misses don't pollute test
// output.
func newTestReplay(t *testing.T, config ReplayConfig) *Replay {
	obsSpec := spec.Observation{
		positionChannel: spec.NewContinuous(tensor.Shape{1}, -100, 100),
	}

	r, err := NewReplay(config, identityNorm(t), obsSpec,
		[]Field{{Name: "values"}})
	if err != nil {
		t.Fatal(err)
	}
	r.Log = func(string) {}
	return r
}

// writeRow inserts one vectorized row whose reward and observation for
// environment instance e are both 10*row + e, making every stored cell
// identifiable.
func writeRow(t *testing.T, r *Replay, row int) {
	nbEnv := r.nbEnv
	rewards := make([]float64, nbEnv)
	obs := make([]float64, nbEnv)
	values := make([]float64, nbEnv)
	for e := 0; e < nbEnv; e++ {
		rewards[e] = float64(10*row + e)
		obs[e] = float64(10*row + e)
		values[e] = float64(10*row + e)
	}

	err := r.WriteForward(map[string]*tensor.Dense{
		"values": tensor.NewDense(tensor.Float64, tensor.Shape{nbEnv},
			tensor.WithBacking(values)),
	})
	if err != nil {
		t.Fatal(err)
	}

	observation := timestep.Observation{
		positionChannel: tensor.NewDense(tensor.Float64,
			tensor.Shape{nbEnv, 1}, tensor.WithBacking(obs)),
	}
	if err := r.WriteEnv(observation, rewards,
		make([]float64, nbEnv), nil); err != nil {
		t.Fatal(err)
	}
}

func TestReplayReadinessBoundary(t *testing.T) {
	r := newTestReplay(t, ReplayConfig{
		NbEnv:      2,
		BatchSize:  3,
		RolloutLen: 2,
		MaxLen:     20,
		MinLen:     6,
		MaxCache:   2,
		Seed:       14,
	})
	defer r.Close()

	for row := 0; row < 6; row++ {
		writeRow(t, r, row)
	}
	if r.IsReady() {
		t.Error("cache ready at exactly the minimum insertion count")
	}
	if _, err := r.Read(); !IsNotReady(err) {
		t.Errorf("reading before ready should report not ready, got %v", err)
	}

	writeRow(t, r, 6)
	if !r.IsReady() {
		t.Error("cache not ready past the minimum insertion count")
	}
}

func TestReplaySamplesValidWindows(t *testing.T) {
	const nbEnv, batchSize, rolloutLen = 2, 4, 2
	r := newTestReplay(t, ReplayConfig{
		NbEnv:      nbEnv,
		BatchSize:  batchSize,
		RolloutLen: rolloutLen,
		MaxLen:     20,
		MinLen:     6,
		MaxCache:   2,
		Seed:       14,
	})
	defer r.Close()

	const rows = 8
	for row := 0; row < rows; row++ {
		writeRow(t, r, row)
	}

	batch, err := r.Read()
	if err != nil {
		t.Fatal(err)
	}

	wantShape := tensor.Shape{batchSize, rolloutLen}
	if !batch.Rewards.Shape().Eq(wantShape) {
		t.Errorf("wrong reward shape \n\twant(%v)\n\thave(%v)", wantShape,
			batch.Rewards.Shape())
	}

	rewards := batch.Rewards.Data().([]float64)
	observations := batch.Observations[positionChannel].Data().([]float64)
	next := batch.NextObservations[positionChannel].Data().([]float64)

	maxStart := rows - 2 - rolloutLen
	for b := 0; b < batchSize; b++ {
		first := rewards[b*rolloutLen]
		start := int(first) / 10
		env := int(first) % 10

		if start < 0 || start >= maxStart {
			t.Errorf("sample %d window start out of range [0, %d): %d", b,
				maxStart, start)
		}
		if env < 0 || env >= nbEnv {
			t.Errorf("sample %d env column out of range: %d", b, env)
		}

		// Windows are contiguous rows of a single env column
		for step := 0; step < rolloutLen; step++ {
			want := float64(10*(start+step) + env)
			if rewards[b*rolloutLen+step] != want {
				t.Errorf("sample %d step %d reward "+
					"\n\twant(%v)\n\thave(%v)", b, step, want,
					rewards[b*rolloutLen+step])
			}
			if observations[b*rolloutLen+step] != want {
				t.Errorf("sample %d step %d observation "+
					"\n\twant(%v)\n\thave(%v)", b, step, want,
					observations[b*rolloutLen+step])
			}
		}

		// The bootstrap observation follows the window's final step
		wantNext := float64(10*(start+rolloutLen) + env)
		if next[b] != wantNext {
			t.Errorf("sample %d bootstrap observation "+
				"\n\twant(%v)\n\thave(%v)", b, wantNext, next[b])
		}
	}
}

func TestReplayRejectsUndeclaredField(t *testing.T) {
	r := newTestReplay(t, ReplayConfig{
		NbEnv:      2,
		BatchSize:  1,
		RolloutLen: 2,
		MaxLen:     20,
		MinLen:     2,
		MaxCache:   1,
		Seed:       14,
	})
	defer r.Close()

	err := r.WriteForward(map[string]*tensor.Dense{
		"log_probs": tensor.NewDense(tensor.Float64, tensor.Shape{2},
			tensor.WithBacking([]float64{0, 0})),
	})
	if !IsIncompatibleKey(err) {
		t.Errorf("writing an undeclared field should report an "+
			"incompatible key, got %v", err)
	}
}

func TestReplayConfigValidate(t *testing.T) {
	valid := ReplayConfig{
		NbEnv:      2,
		BatchSize:  1,
		RolloutLen: 4,
		MaxLen:     14, // 7 rows: too few for windows of 4 + bootstrap
		MinLen:     2,
		MaxCache:   1,
	}
	if err := valid.Validate(); err == nil {
		t.Error("config without room for a single window should not validate")
	}

	valid.MaxLen = 16 // 8 rows: exactly one valid start
	if err := valid.Validate(); err != nil {
		t.Errorf("minimal valid config rejected: %v", err)
	}
}

func TestReplayCloseIsIdempotent(t *testing.T) {
	r := newTestReplay(t, ReplayConfig{
		NbEnv:      2,
		BatchSize:  1,
		RolloutLen: 2,
		MaxLen:     20,
		MinLen:     2,
		MaxCache:   1,
		Seed:       14,
	})

	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("double close failed: %v", err)
	}
}
