package container

import (
	"errors"
	"fmt"
	"time"

	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/exp"
	"github.com/samuelfneumann/gorl/timestep"
)

// ErrTimeout indicates that a Link transfer did not complete within
// the Link's configured timeout.
var ErrTimeout error = errors.New("transfer timed out")

// IsTimeout returns whether err was caused by a Link transfer timing
// out.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// Experience is one worker collection cycle: a full rollout together
// with the observation following its final step, which the learner
// needs to bootstrap value targets.
type Experience struct {
	Batch   *exp.RolloutBatch
	NextObs timestep.Observation
}

// Link joins one learner-worker pair. Experience flows from the worker
// to the learner and network weights flow back. All transfers are
// asynchronous: each send or receive returns immediately with a handle
// the caller must Wait() on before the transfer may be considered
// complete. Handles are the sole synchronization primitive between the
// two endpoints.
//
// A Link may be given a timeout after which a pending transfer fails
// with ErrTimeout rather than blocking forever on a stalled peer. A
// timeout of 0 blocks indefinitely.
type Link struct {
	experience chan *Experience
	weights    chan map[string]*tensor.Dense
	timeout    time.Duration
}

// NewLink creates a Link with the given transfer timeout. A timeout of
// 0 disables timeouts.
func NewLink(timeout time.Duration) *Link {
	return &Link{
		experience: make(chan *Experience, 1),
		weights:    make(chan map[string]*tensor.Dense, 1),
		timeout:    timeout,
	}
}

// Handle is an in-flight transfer with no payload on the waiting side
type Handle struct {
	done chan struct{}
	err  error
}

// Wait blocks until the transfer completes, returning any transfer
// error.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// ExperienceHandle is an in-flight receive of worker experience
type ExperienceHandle struct {
	done chan struct{}
	exp  *Experience
	err  error
}

// Wait blocks until the experience arrives
func (h *ExperienceHandle) Wait() (*Experience, error) {
	<-h.done
	return h.exp, h.err
}

// WeightsHandle is an in-flight receive of network weights
type WeightsHandle struct {
	done    chan struct{}
	weights map[string]*tensor.Dense
	err     error
}

// Wait blocks until the weights arrive
func (h *WeightsHandle) Wait() (map[string]*tensor.Dense, error) {
	<-h.done
	return h.weights, h.err
}

// SendExperience asynchronously ships a collected rollout to the
// learner endpoint.
func (l *Link) SendExperience(e *Experience) *Handle {
	h := &Handle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		select {
		case l.experience <- e:
		case <-l.after():
			h.err = fmt.Errorf("sendexperience: %w", ErrTimeout)
		}
	}()
	return h
}

// RecvExperience asynchronously receives the worker's next rollout
func (l *Link) RecvExperience() *ExperienceHandle {
	h := &ExperienceHandle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		select {
		case e := <-l.experience:
			h.exp = e
		case <-l.after():
			h.err = fmt.Errorf("recvexperience: %w", ErrTimeout)
		}
	}()
	return h
}

// SendWeights asynchronously ships network weights to the worker
// endpoint.
func (l *Link) SendWeights(weights map[string]*tensor.Dense) *Handle {
	h := &Handle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		select {
		case l.weights <- weights:
		case <-l.after():
			h.err = fmt.Errorf("sendweights: %w", ErrTimeout)
		}
	}()
	return h
}

// RecvWeights asynchronously receives the learner's next weight sync
func (l *Link) RecvWeights() *WeightsHandle {
	h := &WeightsHandle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		select {
		case weights := <-l.weights:
			h.weights = weights
		case <-l.after():
			h.err = fmt.Errorf("recvweights: %w", ErrTimeout)
		}
	}()
	return h
}

// after returns the timeout channel for a single transfer. A nil
// channel never fires, so a zero timeout blocks indefinitely.
func (l *Link) after() <-chan time.Time {
	if l.timeout <= 0 {
		return nil
	}
	return time.After(l.timeout)
}
