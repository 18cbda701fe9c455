// Package checkpoint implements periodic saving of network weights so
// that training can be resumed or inspected later. Weights are saved
// as gob-encoded maps from learnable node name to tensor.
package checkpoint

import (
	"encoding/gob"
	"fmt"
	"os"

	"gorgonia.org/tensor"
)

// Weighted is an object whose weights can be checkpointed
type Weighted interface {
	Weights() map[string]*tensor.Dense
}

// Checkpointer saves a tracked object on a step-based schedule
type Checkpointer interface {
	Checkpoint(step int) error
}

// Save gob-encodes a weight map to a file, truncating any existing
// file of the same name.
func Save(filename string, weights map[string]*tensor.Dense) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("save: could not create %v: %v", filename, err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(weights); err != nil {
		return fmt.Errorf("save: could not encode weights: %v", err)
	}
	return nil
}

// Load decodes a weight map previously written by Save
func Load(filename string) (map[string]*tensor.Dense, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("load: could not open %v: %v", filename, err)
	}
	defer file.Close()

	var weights map[string]*tensor.Dense
	if err := gob.NewDecoder(file).Decode(&weights); err != nil {
		return nil, fmt.Errorf("load: could not decode weights: %v", err)
	}
	return weights, nil
}
