// Package floatutils provides utilities for working with floats
package floatutils

import (
	"math"
)

// Clip clips a floating point to within a minimum and maximum value.
// If the floating point exceeds max, then the function returns the max
// If min exceeds the floating point, then the function returns the min
func Clip(value, min, max float64) float64 {
	clipped := math.Min(value, max)
	return math.Max(clipped, min)
}

// ArgMax gets the indices of the maximum values in a slice of float64.
// Multiple indices are returned when the maximum is tied.
func ArgMax(values ...float64) []int {
	max, indices := values[0], []int{0}

	for i, value := range values {
		if i == 0 {
			continue
		}
		if value > max {
			max = value
			indices = []int{i}
		} else if value == max {
			indices = append(indices, i)
		}
	}
	return indices
}

// Max calculates and returns the maximum float64 in a list
func Max(floats ...float64) float64 {
	max := floats[0]
	for _, val := range floats {
		if val > max {
			max = val
		}
	}
	return max
}

// LogSumExp computes log(Σ exp(x)) with the max-subtraction trick for
// numerical stability.
func LogSumExp(values []float64) float64 {
	max := Max(values...)

	sum := 0.0
	for _, v := range values {
		sum += math.Exp(v - max)
	}
	return max + math.Log(sum)
}

// Softmax computes the softmax of a slice of logits.
func Softmax(logits []float64) []float64 {
	logZ := LogSumExp(logits)

	probs := make([]float64, len(logits))
	for i, logit := range logits {
		probs[i] = math.Exp(logit - logZ)
	}
	return probs
}
