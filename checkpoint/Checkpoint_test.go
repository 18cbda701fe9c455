package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"gorgonia.org/tensor"
)

type staticWeights map[string]*tensor.Dense

func (s staticWeights) Weights() map[string]*tensor.Dense { return s }

func testWeights() staticWeights {
	return staticWeights{
		"trunkL0W": tensor.NewDense(tensor.Float64, tensor.Shape{2, 2},
			tensor.WithBacking([]float64{1, 2, 3, 4})),
		"trunkL0B": tensor.NewDense(tensor.Float64, tensor.Shape{2},
			tensor.WithBacking([]float64{0.5, -0.5})),
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "weights.bin")

	saved := testWeights()
	if err := Save(filename, saved); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(filename)
	if err != nil {
		t.Fatal(err)
	}

	if len(loaded) != len(saved) {
		t.Fatalf("wrong number of weights \n\twant(%v)\n\thave(%v)",
			len(saved), len(loaded))
	}
	for name, want := range saved {
		have, ok := loaded[name]
		if !ok {
			t.Errorf("missing weight %v", name)
			continue
		}
		if !have.Shape().Eq(want.Shape()) {
			t.Errorf("weight %v shape \n\twant(%v)\n\thave(%v)", name,
				want.Shape(), have.Shape())
		}

		wantData := want.Data().([]float64)
		haveData := have.Data().([]float64)
		for i := range wantData {
			if haveData[i] != wantData[i] {
				t.Errorf("weight %v element %d \n\twant(%v)\n\thave(%v)",
					name, i, wantData[i], haveData[i])
			}
		}
	}
}

func TestNStepSavesOnInterval(t *testing.T) {
	dir := t.TempDir()
	filename := FilenameEnumerator(filepath.Join(dir, "weights"), "bin")

	checkpointer, err := NewNStep(10, testWeights(), filename)
	if err != nil {
		t.Fatal(err)
	}

	for step := 1; step <= 30; step++ {
		if err := checkpointer.Checkpoint(step); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("wrong checkpoint count \n\twant(%v)\n\thave(%v)", 3,
			len(entries))
	}

	// Enumerated names count up from 1
	if _, err := os.Stat(filepath.Join(dir, "weights1.bin")); err != nil {
		t.Errorf("missing first enumerated checkpoint: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "weights3.bin")); err != nil {
		t.Errorf("missing third enumerated checkpoint: %v", err)
	}
}

func TestNewNStepValidatesArguments(t *testing.T) {
	if _, err := NewNStep(0, testWeights(), func() string {
		return "weights.bin"
	}); err == nil {
		t.Error("zero interval should be rejected")
	}
	if _, err := NewNStep(1, nil, func() string {
		return "weights.bin"
	}); err == nil {
		t.Error("nil object should be rejected")
	}
}
