package learner

import (
	"math"
	"testing"
)

const tolerance = 1e-10

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < tolerance
}

// On-policy experience has importance ratio 1 everywhere, so the
// V-trace targets must reduce exactly to the discounted n-step
// returns.
func TestVTraceOnPolicyMatchesNStepReturns(t *testing.T) {
	const seq, batch = 4, 2

	logProbDiffs := make([]float64, seq*batch) // all zero: on-policy
	discountMask := []float64{
		0.9, 0.9,
		0.9, 0, // terminal in env 1
		0.9, 0.9,
		0.9, 0.9,
	}
	rewards := []float64{
		1, -1,
		0.5, 2,
		0, 0,
		1, 1,
	}
	values := []float64{
		0.1, 0.2,
		0.3, 0.4,
		0.5, 0.6,
		0.7, 0.8,
	}
	bootstrap := []float64{1.5, -0.5}

	returns, err := VTrace(logProbDiffs, discountMask, rewards, values,
		bootstrap, seq, batch, 1, 1, 1)
	if err != nil {
		t.Fatal(err)
	}

	targets, err := NStepReturns(discountMask, rewards, bootstrap, seq, batch)
	if err != nil {
		t.Fatal(err)
	}

	for i := range targets {
		if !approxEqual(returns.Targets[i], targets[i]) {
			t.Errorf("on-policy target %d \n\twant(%v)\n\thave(%v)", i,
				targets[i], returns.Targets[i])
		}
	}
	if !approxEqual(returns.MeanImportance, 1) {
		t.Errorf("on-policy mean importance \n\twant(%v)\n\thave(%v)", 1.0,
			returns.MeanImportance)
	}
}

func TestVTraceHandComputed(t *testing.T) {
	// seq = 2, batch = 1: the first step is taken twice as often under
	// the learner policy, the second half as often.
	logProbDiffs := []float64{math.Log(2), math.Log(0.5)}
	discountMask := []float64{0.9, 0.9}
	rewards := []float64{1, 1}
	values := []float64{1, 2}
	bootstrap := []float64{3}

	returns, err := VTrace(logProbDiffs, discountMask, rewards, values,
		bootstrap, 2, 1, 1, 1, 1)
	if err != nil {
		t.Fatal(err)
	}

	// t=1: delta = 0.5*(1 + 0.9*3 - 2) = 0.85, target = 2.85
	// t=0: delta = 1.0*(1 + 0.9*2 - 1) = 1.8,
	//      correction = 1.8 + 0.9*1.0*0.85 = 2.565, target = 3.565
	wantTargets := []float64{3.565, 2.85}
	for i := range wantTargets {
		if !approxEqual(returns.Targets[i], wantTargets[i]) {
			t.Errorf("target %d \n\twant(%v)\n\thave(%v)", i, wantTargets[i],
				returns.Targets[i])
		}
	}

	// t=0: advantage = 1 + 0.9*2.85 - 1 = 2.565, ratio clipped to 1
	// t=1: advantage = 1 + 0.9*3 - 2 = 1.7, ratio 0.5
	wantAdvantages := []float64{2.565, 0.85}
	for i := range wantAdvantages {
		if !approxEqual(returns.Advantages[i], wantAdvantages[i]) {
			t.Errorf("advantage %d \n\twant(%v)\n\thave(%v)", i,
				wantAdvantages[i], returns.Advantages[i])
		}
	}

	if !approxEqual(returns.MeanImportance, 1.25) {
		t.Errorf("mean importance \n\twant(%v)\n\thave(%v)", 1.25,
			returns.MeanImportance)
	}
}

// With several action keys the clipped per-key ratios are averaged for
// the value pass and the shared advantage is weighted per key for the
// policy pass.
func TestVTraceMultipleActionKeys(t *testing.T) {
	logProbDiffs := []float64{math.Log(2), math.Log(0.5)} // one step, 2 keys
	discountMask := []float64{1}
	rewards := []float64{0}
	values := []float64{1}
	bootstrap := []float64{2}

	returns, err := VTrace(logProbDiffs, discountMask, rewards, values,
		bootstrap, 1, 1, 2, 1, 1)
	if err != nil {
		t.Fatal(err)
	}

	// value ratio = (min(2,1) + 0.5) / 2 = 0.75
	// delta = 0.75*(0 + 2 - 1) = 0.75, target = 1.75
	if !approxEqual(returns.Targets[0], 1.75) {
		t.Errorf("target \n\twant(%v)\n\thave(%v)", 1.75, returns.Targets[0])
	}

	// shared advantage = 0 + 2 - 1 = 1, per-key ratios [1, 0.5]
	wantAdvantages := []float64{1, 0.5}
	for k := range wantAdvantages {
		if !approxEqual(returns.Advantages[k], wantAdvantages[k]) {
			t.Errorf("key %d advantage \n\twant(%v)\n\thave(%v)", k,
				wantAdvantages[k], returns.Advantages[k])
		}
	}
}

func TestVTraceRejectsUnsupportedClips(t *testing.T) {
	zeros := []float64{0}
	if _, err := VTrace(zeros, zeros, zeros, zeros, zeros, 1, 1, 1,
		0.9, 1); err == nil {
		t.Error("value clip != 1 should not be implemented")
	}
	if _, err := VTrace(zeros, zeros, zeros, zeros, zeros, 1, 1, 1,
		1, 2); err == nil {
		t.Error("policy clip != 1 should not be implemented")
	}
}

func TestNStepReturnsStopAtTerminals(t *testing.T) {
	discountMask := []float64{0.5, 0, 0.5} // terminal at step 1
	rewards := []float64{1, 1, 1}
	bootstrap := []float64{2}

	targets, err := NStepReturns(discountMask, rewards, bootstrap, 3, 1)
	if err != nil {
		t.Fatal(err)
	}

	want := []float64{1.5, 1, 2}
	for i := range want {
		if !approxEqual(targets[i], want[i]) {
			t.Errorf("target %d \n\twant(%v)\n\thave(%v)", i, want[i],
				targets[i])
		}
	}
}

func TestGAEHandComputed(t *testing.T) {
	discountMask := []float64{0.9, 0, 0.9} // terminal at step 1
	rewards := []float64{1, 2, 3}
	values := []float64{1, 2, 3}
	bootstrap := []float64{4}

	advantages, err := GAE(discountMask, rewards, values, bootstrap, 3, 1,
		0.95)
	if err != nil {
		t.Fatal(err)
	}

	// t=2: delta = 3 + 0.9*4 - 3 = 3.6
	// t=1: delta = 2 + 0*3 - 2 = 0, trace cut by the terminal
	// t=0: delta = 1 + 0.9*2 - 1 = 1.8
	want := []float64{1.8, 0, 3.6}
	for i := range want {
		if !approxEqual(advantages[i], want[i]) {
			t.Errorf("advantage %d \n\twant(%v)\n\thave(%v)", i, want[i],
				advantages[i])
		}
	}
}

func TestReturnsRejectInvalidSizes(t *testing.T) {
	zeros := []float64{0, 0}
	if _, err := NStepReturns(zeros, zeros, zeros, 2, 1); err == nil {
		t.Error("oversized bootstrap should be rejected")
	}
	if _, err := GAE(zeros, zeros, zeros, []float64{0}, 3, 1, 1); err == nil {
		t.Error("undersized sequences should be rejected")
	}
	if _, err := VTrace([]float64{0}, zeros, zeros, zeros, []float64{0},
		2, 1, 1, 1, 1); err == nil {
		t.Error("undersized logProbDiffs should be rejected")
	}
}
