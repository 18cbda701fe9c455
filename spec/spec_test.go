package spec

import (
	"testing"

	"gorgonia.org/tensor"
)

func TestKeysAreSorted(t *testing.T) {
	obs := Observation{
		"velocity": NewContinuous(tensor.Shape{2}, -1, 1),
		"position": NewContinuous(tensor.Shape{3}, 0, 1),
		"angle":    NewContinuous(tensor.Shape{1}, -3, 3),
	}

	want := []string{"angle", "position", "velocity"}
	have := obs.Keys()
	for i := range want {
		if have[i] != want[i] {
			t.Fatalf("keys not sorted \n\twant(%v)\n\thave(%v)", want, have)
		}
	}
}

func TestTotalSizeSumsChannels(t *testing.T) {
	obs := Observation{
		"position": NewContinuous(tensor.Shape{3}, 0, 1),
		"frame":    NewContinuous(tensor.Shape{2, 2}, 0, 1),
	}

	if obs.TotalSize() != 7 {
		t.Errorf("wrong total size \n\twant(%v)\n\thave(%v)", 7,
			obs.TotalSize())
	}
}

func TestNbValues(t *testing.T) {
	if n := NewDiscrete(4).NbValues(); n != 4 {
		t.Errorf("wrong discrete value count \n\twant(%v)\n\thave(%v)", 4, n)
	}
}
