// Package learner implements gradient-based policy evaluation and
// improvement from cached experience. Learners consume batches read
// from experience caches and update network weights with gorgonia
// solvers; the numeric return and advantage targets are computed
// outside the computational graph and fed in as inputs.
package learner

import (
	"fmt"
	"math"
)

// All sequence-major slices in this file have layout (seq, batch) or
// (seq, batch, nbKeys), flattened row-major.

// VTraceReturns holds the outputs of the V-trace off-policy
// correction.
type VTraceReturns struct {
	// Targets holds the corrected value targets v_s, shape
	// (seq, batch)
	Targets []float64

	// Advantages holds the importance-weighted policy gradient
	// advantages, shape (seq, batch, nbKeys)
	Advantages []float64

	// MeanImportance is the mean of the unclipped importance ratios,
	// reported as a diagnostic of how off-policy the batch was
	MeanImportance float64
}

// VTrace computes V-trace corrected value targets and policy gradient
// advantages from the log probability differences between the
// learner's current policy and the behaviour policy that generated
// the experience.
//
// The logProbDiffs parameter has shape (seq, batch, nbKeys) holding
// learner log probability minus behaviour log probability per action
// key. discountMask has shape (seq, batch) holding
// discount * (1 - terminal). rewards and values have shape
// (seq, batch), and bootstrap has shape (batch) holding the value
// estimate of the observation following the final step.
//
// Importance ratios are clipped from above at importanceValueClip for
// the value pass and importancePolicyClip for the policy pass. Only a
// clip of 1.0 is supported; any other value is an error.
//
// When nbKeys > 1, the per-key value-pass ratios are averaged for the
// target recursion and the shared advantage is broadcast across keys,
// weighted by each key's policy-pass ratio.
func VTrace(logProbDiffs, discountMask, rewards, values,
	bootstrap []float64, seq, batch, nbKeys int, importanceValueClip,
	importancePolicyClip float64) (*VTraceReturns, error) {
	if importanceValueClip != 1 || importancePolicyClip != 1 {
		return nil, fmt.Errorf("vtrace: importance clips != 1 are not " +
			"implemented")
	}
	if err := checkSeqBatch("vtrace", discountMask, rewards, values,
		bootstrap, seq, batch); err != nil {
		return nil, err
	}
	if len(logProbDiffs) != seq*batch*nbKeys {
		return nil, fmt.Errorf("vtrace: invalid logProbDiffs size "+
			"\n\twant(%v)\n\thave(%v)", seq*batch*nbKeys, len(logProbDiffs))
	}

	// Importance ratios, clipped from above for the value pass and
	// averaged over action keys
	importance := make([]float64, seq*batch*nbKeys)
	clippedValueRatio := make([]float64, seq*batch)
	sumImportance := 0.0
	for i := 0; i < seq*batch; i++ {
		avg := 0.0
		for k := 0; k < nbKeys; k++ {
			ratio := math.Exp(logProbDiffs[i*nbKeys+k])
			importance[i*nbKeys+k] = ratio
			sumImportance += ratio
			avg += math.Min(ratio, importanceValueClip)
		}
		clippedValueRatio[i] = avg / float64(nbKeys)
	}

	// Backward recursion accumulating the importance weighted n-step
	// correction, then v_s = V(s) + correction
	targets := make([]float64, seq*batch)
	nstep := make([]float64, batch)
	for t := seq - 1; t >= 0; t-- {
		for b := 0; b < batch; b++ {
			i := t*batch + b

			nextValue := bootstrap[b]
			if t < seq-1 {
				nextValue = values[(t+1)*batch+b]
			}
			delta := clippedValueRatio[i] *
				(rewards[i] + discountMask[i]*nextValue - values[i])

			nstep[b] = delta + discountMask[i]*clippedValueRatio[i]*nstep[b]
			targets[i] = values[i] + nstep[b]
		}
	}

	// Advantage bootstraps from the corrected target of the next
	// step, weighted per key by the policy-pass clipped ratio
	advantages := make([]float64, seq*batch*nbKeys)
	for t := 0; t < seq; t++ {
		for b := 0; b < batch; b++ {
			i := t*batch + b

			nextTarget := bootstrap[b]
			if t < seq-1 {
				nextTarget = targets[(t+1)*batch+b]
			}
			advantage := rewards[i] + discountMask[i]*nextTarget - values[i]

			for k := 0; k < nbKeys; k++ {
				ratio := math.Min(importance[i*nbKeys+k],
					importancePolicyClip)
				advantages[i*nbKeys+k] = ratio * advantage
			}
		}
	}

	return &VTraceReturns{
		Targets:        targets,
		Advantages:     advantages,
		MeanImportance: sumImportance / float64(seq*batch*nbKeys),
	}, nil
}

// NStepReturns computes discounted n-step return targets by backward
// recursion, bootstrapping from the value estimate of the observation
// following the final step. All sequence-major parameters have shape
// (seq, batch); bootstrap has shape (batch).
func NStepReturns(discountMask, rewards, bootstrap []float64, seq,
	batch int) ([]float64, error) {
	if len(discountMask) != seq*batch || len(rewards) != seq*batch ||
		len(bootstrap) != batch {
		return nil, fmt.Errorf("nstepreturns: invalid input sizes for "+
			"(seq, batch) = (%v, %v)", seq, batch)
	}

	targets := make([]float64, seq*batch)
	returns := make([]float64, batch)
	copy(returns, bootstrap)
	for t := seq - 1; t >= 0; t-- {
		for b := 0; b < batch; b++ {
			i := t*batch + b
			returns[b] = rewards[i] + discountMask[i]*returns[b]
			targets[i] = returns[b]
		}
	}
	return targets, nil
}

// GAE computes generalized advantage estimates by backward recursion
// over the TD residuals. All sequence-major parameters have shape
// (seq, batch); bootstrap has shape (batch). The tau parameter is the
// λ bias-variance trade-off.
func GAE(discountMask, rewards, values, bootstrap []float64, seq, batch int,
	tau float64) ([]float64, error) {
	if err := checkSeqBatch("gae", discountMask, rewards, values, bootstrap,
		seq, batch); err != nil {
		return nil, err
	}

	advantages := make([]float64, seq*batch)
	gae := make([]float64, batch)
	for t := seq - 1; t >= 0; t-- {
		for b := 0; b < batch; b++ {
			i := t*batch + b

			nextValue := bootstrap[b]
			if t < seq-1 {
				nextValue = values[(t+1)*batch+b]
			}

			delta := rewards[i] + discountMask[i]*nextValue - values[i]
			gae[b] = delta + discountMask[i]*tau*gae[b]
			advantages[i] = gae[b]
		}
	}
	return advantages, nil
}

// checkSeqBatch validates the sizes of (seq, batch) slices plus a
// (batch) bootstrap slice.
func checkSeqBatch(op string, discountMask, rewards, values,
	bootstrap []float64, seq, batch int) error {
	if seq < 1 || batch < 1 {
		return fmt.Errorf("%v: seq and batch must be > 0", op)
	}
	if len(discountMask) != seq*batch || len(rewards) != seq*batch ||
		len(values) != seq*batch || len(bootstrap) != batch {
		return fmt.Errorf("%v: invalid input sizes for (seq, batch) = "+
			"(%v, %v)", op, seq, batch)
	}
	return nil
}
