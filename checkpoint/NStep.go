package checkpoint

import (
	"fmt"
)

// nStep implements checkpointing every N steps
type nStep struct {
	interval int
	object   Weighted

	// filename returns the string filename of the file to save the
	// object in.
	//
	// If each checkpoint should be saved in a separate file with each
	// file having an incremented number as a suffix (e.g. file1.bin,
	// file2.bin, ..., fileK.bin), use FilenameEnumerator to generate
	// the naming function.
	filename func() string
}

// NewNStep returns a checkpointer that saves its tracked object's
// weights every n steps.
func NewNStep(n int, object Weighted,
	filename func() string) (Checkpointer, error) {
	if n < 1 {
		return nil, fmt.Errorf("newnstep: interval must be > 0")
	}
	if object == nil {
		return nil, fmt.Errorf("newnstep: object must not be nil")
	}

	return &nStep{
		interval: n,
		object:   object,
		filename: filename,
	}, nil
}

// Checkpoint saves the tracked object's weights when the step count
// lands on the checkpointer's interval.
func (n *nStep) Checkpoint(step int) error {
	if step%n.interval != 0 {
		return nil
	}
	return Save(n.filename(), n.object.Weights())
}

// FilenameEnumerator returns a naming function producing
// prefix1.extension, prefix2.extension, ... on successive calls.
func FilenameEnumerator(prefix, extension string) func() string {
	count := 0
	return func() string {
		count++
		return fmt.Sprintf("%v%d.%v", prefix, count, extension)
	}
}
