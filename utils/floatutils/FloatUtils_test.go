package floatutils

import (
	"math"
	"testing"
)

const tolerance = 1e-12

func TestArgMaxReturnsAllTies(t *testing.T) {
	inds := ArgMax(1, 3, 3, 2, 3)
	want := []int{1, 2, 4}
	if len(inds) != len(want) {
		t.Fatalf("wrong tie count \n\twant(%v)\n\thave(%v)", want, inds)
	}
	for i := range want {
		if inds[i] != want[i] {
			t.Errorf("argmax indices \n\twant(%v)\n\thave(%v)", want, inds)
			break
		}
	}
}

func TestLogSumExpIsStable(t *testing.T) {
	// Large logits overflow a naive implementation
	values := []float64{1000, 1000}
	want := 1000 + math.Log(2)
	if have := LogSumExp(values); math.Abs(have-want) > 1e-9 {
		t.Errorf("logsumexp \n\twant(%v)\n\thave(%v)", want, have)
	}
}

func TestSoftmaxSumsToOne(t *testing.T) {
	probs := Softmax([]float64{1, 2, 3})

	sum := 0.0
	for _, p := range probs {
		sum += p
	}
	if math.Abs(sum-1) > tolerance {
		t.Errorf("softmax sum \n\twant(%v)\n\thave(%v)", 1.0, sum)
	}
	if !(probs[2] > probs[1] && probs[1] > probs[0]) {
		t.Errorf("softmax not monotone in logits: %v", probs)
	}
}

func TestClip(t *testing.T) {
	if Clip(5, -1, 1) != 1 || Clip(-5, -1, 1) != -1 || Clip(0.5, -1, 1) != 0.5 {
		t.Error("clip does not bound values to [min, max]")
	}
}
