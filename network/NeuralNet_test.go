package network

import (
	"testing"

	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/spec"
	"github.com/samuelfneumann/gorl/timestep"
)

func TestFlattenObservationInterleavesChannels(t *testing.T) {
	obsSpec := spec.Observation{
		"position": spec.NewContinuous(tensor.Shape{2}, 0, 1),
		"angle":    spec.NewContinuous(tensor.Shape{1}, -3, 3),
	}

	// Two batch rows; channels flatten in sorted key order, so angle
	// comes before position within each row.
	obs := timestep.Observation{
		"position": tensor.NewDense(tensor.Float64, tensor.Shape{2, 2},
			tensor.WithBacking([]float64{1, 2, 3, 4})),
		"angle": tensor.NewDense(tensor.Float64, tensor.Shape{2, 1},
			tensor.WithBacking([]float64{5, 6})),
	}

	flat, err := FlattenObservation(obs, obsSpec, 2)
	if err != nil {
		t.Fatal(err)
	}

	want := []float64{5, 1, 2, 6, 3, 4}
	if len(flat) != len(want) {
		t.Fatalf("wrong flattened size \n\twant(%v)\n\thave(%v)", len(want),
			len(flat))
	}
	for i := range want {
		if flat[i] != want[i] {
			t.Errorf("flattened observation \n\twant(%v)\n\thave(%v)", want,
				flat)
			break
		}
	}
}

func TestInternalStateResetSlot(t *testing.T) {
	state := InternalState{
		"hidden": tensor.NewDense(tensor.Float64, tensor.Shape{3, 2},
			tensor.WithBacking([]float64{1, 2, 3, 4, 5, 6})),
		"cell": tensor.NewDense(tensor.Float64, tensor.Shape{3, 2},
			tensor.WithBacking([]float64{7, 8, 9, 10, 11, 12})),
	}

	// The fresh state carries hidden but not cell, so resetting a slot
	// copies hidden's row and zeroes cell's.
	fresh := InternalState{
		"hidden": tensor.NewDense(tensor.Float64, tensor.Shape{3, 2},
			tensor.WithBacking([]float64{-1, -2, -3, -4, -5, -6})),
	}

	if err := state.ResetSlot(1, fresh); err != nil {
		t.Fatal(err)
	}

	wantHidden := []float64{1, 2, -3, -4, 5, 6}
	haveHidden := state["hidden"].Data().([]float64)
	for i := range wantHidden {
		if haveHidden[i] != wantHidden[i] {
			t.Errorf("hidden state after reset \n\twant(%v)\n\thave(%v)",
				wantHidden, haveHidden)
			break
		}
	}

	wantCell := []float64{7, 8, 0, 0, 11, 12}
	haveCell := state["cell"].Data().([]float64)
	for i := range wantCell {
		if haveCell[i] != wantCell[i] {
			t.Errorf("cell state after reset \n\twant(%v)\n\thave(%v)",
				wantCell, haveCell)
			break
		}
	}

	if err := state.ResetSlot(3, fresh); err == nil {
		t.Error("out-of-range slot should be rejected")
	}
}

func TestFlattenObservationRejectsBadInputs(t *testing.T) {
	obsSpec := spec.Observation{
		"position": spec.NewContinuous(tensor.Shape{2}, 0, 1),
	}

	if _, err := FlattenObservation(timestep.Observation{}, obsSpec,
		1); err == nil {
		t.Error("missing channel should be rejected")
	}

	obs := timestep.Observation{
		"position": tensor.NewDense(tensor.Float64, tensor.Shape{1, 2},
			tensor.WithBacking([]float64{1, 2})),
	}
	if _, err := FlattenObservation(obs, obsSpec, 2); err == nil {
		t.Error("undersized channel should be rejected")
	}
}
