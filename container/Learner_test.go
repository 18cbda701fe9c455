package container

import (
	"testing"

	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/exp"
	"github.com/samuelfneumann/gorl/timestep"
)

const positionChannel = "position"

func stepObs(nbEnv int, fill float64) timestep.Observation {
	backing := make([]float64, nbEnv)
	for i := range backing {
		backing[i] = fill
	}
	return timestep.Observation{
		positionChannel: tensor.NewDense(tensor.Float64,
			tensor.Shape{nbEnv, 1}, tensor.WithBacking(backing)),
	}
}

// recordingLearner records the batches it is asked to learn from
type recordingLearner struct {
	batches []*exp.RolloutBatch
	nextObs []timestep.Observation
	weights map[string]*tensor.Dense
}

func (r *recordingLearner) Learn(batch *exp.RolloutBatch,
	nextObs timestep.Observation) error {
	r.batches = append(r.batches, batch)
	r.nextObs = append(r.nextObs, nextObs)
	return nil
}

func (r *recordingLearner) Loss() float64 { return 0 }

func (r *recordingLearner) Weights() map[string]*tensor.Dense {
	return r.weights
}

func (r *recordingLearner) SetWeights(map[string]*tensor.Dense) error {
	return nil
}

func TestLearnerReducesLearnBatchesToWorkerCount(t *testing.T) {
	const nbWorkers = 3

	links := make([]*Link, nbWorkers)
	for i := range links {
		links[i] = NewLink(0)
		links[i].SendExperience(testExperience(2, 1, float64(i)))
	}

	learn := &recordingLearner{weights: map[string]*tensor.Dense{}}
	learner, err := NewLearner(learn, links, 5, 1, nil)
	if err != nil {
		t.Fatal(err)
	}

	logged := []string{}
	learner.Log = func(msg string) { logged = append(logged, msg) }

	if err := learner.Run(); err != nil {
		t.Fatal(err)
	}

	want := "More learn batches than workers, reducing learn batches to 3"
	if len(logged) == 0 || logged[0] != want {
		t.Errorf("missing reduction warning \n\twant(%v)\n\thave(%v)", want,
			logged)
	}

	// One update merging all three workers' single-env rollouts
	if len(learn.batches) != 1 {
		t.Fatalf("wrong update count \n\twant(%v)\n\thave(%v)", 1,
			len(learn.batches))
	}
	mergedEnvs := learn.batches[0].Rewards[0].Shape()[0]
	if mergedEnvs != nbWorkers {
		t.Errorf("wrong merged env count \n\twant(%v)\n\thave(%v)",
			nbWorkers, mergedEnvs)
	}

	// Every consumed worker receives the updated weights
	for i, link := range links {
		weights, err := link.RecvWeights().Wait()
		if err != nil {
			t.Fatal(err)
		}
		if len(weights) != 0 {
			t.Errorf("worker %d received wrong weights", i)
		}
	}
}

func TestMergeExperienceConcatenatesEnvAxis(t *testing.T) {
	merged, err := mergeExperience([]*Experience{
		testExperience(2, 2, 1),
		testExperience(2, 1, 2),
	})
	if err != nil {
		t.Fatal(err)
	}

	wantRewards := []float64{1, 1, 2}
	for step := 0; step < 2; step++ {
		rewards := merged.Batch.Rewards[step].Data().([]float64)
		if len(rewards) != len(wantRewards) {
			t.Fatalf("step %d wrong merged width \n\twant(%v)\n\thave(%v)",
				step, len(wantRewards), len(rewards))
		}
		for i := range wantRewards {
			if rewards[i] != wantRewards[i] {
				t.Errorf("step %d merged rewards \n\twant(%v)\n\thave(%v)",
					step, wantRewards, rewards)
			}
		}

		values := merged.Batch.Fields["values"][step].Data().([]float64)
		if len(values) != 3 || values[2] != 2 {
			t.Errorf("step %d merged field \n\twant(%v)\n\thave(%v)", step,
				wantRewards, values)
		}

		obs := merged.Batch.Observations[step][positionChannel]
		if obs.Shape()[0] != 3 {
			t.Errorf("step %d merged observation rows "+
				"\n\twant(%v)\n\thave(%v)", step, 3, obs.Shape()[0])
		}
	}

	next := merged.NextObs[positionChannel].Data().([]float64)
	wantNext := []float64{1, 1, 2}
	for i := range wantNext {
		if next[i] != wantNext[i] {
			t.Errorf("merged next observation \n\twant(%v)\n\thave(%v)",
				wantNext, next)
		}
	}
}

func TestMergeExperienceRejectsUnevenHorizons(t *testing.T) {
	_, err := mergeExperience([]*Experience{
		testExperience(2, 1, 0),
		testExperience(3, 1, 0),
	})
	if err == nil {
		t.Error("merging rollouts of different horizons should fail")
	}
}

func TestMergeExperiencePassesSingleThrough(t *testing.T) {
	e := testExperience(2, 1, 0)
	merged, err := mergeExperience([]*Experience{e})
	if err != nil {
		t.Fatal(err)
	}
	if merged != e {
		t.Error("single experience should pass through unmerged")
	}
}
