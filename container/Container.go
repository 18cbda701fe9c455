// Package container implements the orchestration layer that drives
// agents against environments. A container owns the
// environment-interaction loop: it steps a vectorized environment
// manager, feeds observations to an agent, triggers learning once the
// agent's experience cache is full, and checkpoints weights on a step
// schedule.
//
// Two topologies are provided. Local runs acting and learning in a
// single goroutine. Learner and Worker split the two roles: workers
// collect experience under possibly stale weights and ship completed
// rollouts over a Link to a learner, which takes optimizer steps and
// ships updated weights back.
package container

import (
	"fmt"
	"os"
)

// Container runs an agent-environment interaction loop to completion
type Container interface {
	Run() error
}

// logWith calls the hook if one is set, otherwise writes the message
// to standard error.
func logWith(hook func(string), msg string) {
	if hook != nil {
		hook(msg)
		return
	}
	fmt.Fprintln(os.Stderr, msg)
}
