package exp

import (
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/exp/rand"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/rwdnorm"
	"github.com/samuelfneumann/gorl/spec"
	"github.com/samuelfneumann/gorl/timestep"
	"github.com/samuelfneumann/gorl/utils/intutils"
)

// Reserved replay field names. Observation channels are stored under
// "obs-<channel>".
const (
	rewardsField   = "rewards"
	terminalsField = "terminals"
	obsFieldPrefix = "obs-"
)

// How long the prefetcher sleeps between readiness polls before the
// buffer has filled to its minimum count.
const readyPollInterval = 100 * time.Millisecond

// Field declares a replay field by name and per-environment feature
// shape. A nil or empty shape declares a scalar field.
type Field struct {
	Name  string
	Shape tensor.Shape
}

// ReplayConfig configures a replay cache.
type ReplayConfig struct {
	NbEnv      int
	BatchSize  int
	RolloutLen int

	// MaxLen is the total transition capacity across all environment
	// instances; the buffer holds MaxLen / NbEnv vectorized rows
	MaxLen int

	// MinLen is the number of insertions required before sampling is
	// valid
	MinLen int

	// MaxCache is the prefetch queue depth
	MaxCache int

	Seed uint64
}

// Validate returns an error describing whether or not the
// configuration is valid.
func (c ReplayConfig) Validate() error {
	if c.NbEnv < 1 {
		return fmt.Errorf("validate: NbEnv must be > 0")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("validate: BatchSize must be > 0")
	}
	if c.RolloutLen < 1 {
		return fmt.Errorf("validate: RolloutLen must be > 0")
	}
	if c.MinLen < 1 {
		return fmt.Errorf("validate: MinLen must be > 0")
	}
	if c.MaxCache < 1 {
		return fmt.Errorf("validate: MaxCache must be > 0")
	}

	rows := c.MaxLen / c.NbEnv
	// Sampling needs at least one valid start index: rows - 2 -
	// RolloutLen >= 1
	if rows < c.RolloutLen+3 {
		return fmt.Errorf("validate: MaxLen of %v rows cannot hold windows "+
			"of rollout length %v plus a bootstrap observation", rows,
			c.RolloutLen)
	}
	return nil
}

// Replay implements a fixed-capacity circular experience buffer
// supporting randomized sub-sequence sampling. Transitions are
// inserted at a monotonically increasing cursor modulo capacity. Reads
// sample batchSize independent window starts uniformly from the valid
// range and, per sample, gather one random environment-instance
// column, producing fields of shape (batch, rolloutLen, features...).
//
// A background goroutine keeps up to MaxCache batches staged in a
// bounded channel so Read rarely blocks on sampling; an empty channel
// is an explicit cache-miss path that samples synchronously and logs.
type Replay struct {
	nbEnv      int
	batchSize  int
	rolloutLen int
	maxRows    int
	minLen     int

	normalizer rwdnorm.Normalizer

	// Flat per-field storage, row stride = nbEnv * featSize
	data       map[string][]float64
	featShapes map[string]tensor.Shape
	featSizes  map[string]int
	obsKeys    []string
	forward    map[string]bool

	currentIndex int
	numInserted  int

	mu  sync.Mutex
	rng *rand.Rand

	prefetched chan *ReplayBatch
	stop       chan struct{}
	closeOnce  sync.Once

	// Log, if non-nil, is used to log cache misses and other
	// diagnostics. If nil, messages go to stderr.
	Log func(string)
}

// ReplayBatch holds one sampled batch of experience windows. Every
// field has batch as its leading dimension and rolloutLen as its
// second. NextObservations holds the observation row immediately
// following each sampled window, used to bootstrap value targets.
type ReplayBatch struct {
	Observations map[string]*tensor.Dense
	Rewards      *tensor.Dense
	Terminals    *tensor.Dense
	Fields       map[string]*tensor.Dense

	NextObservations map[string]*tensor.Dense
}

// NewReplay creates a replay cache and starts its prefetch goroutine.
// The obsSpec parameter declares the stored observation channels, and
// forwardFields declares the actor-written fields. Callers must Close
// the cache to release the prefetcher.
func NewReplay(config ReplayConfig, normalizer rwdnorm.Normalizer,
	obsSpec spec.Observation, forwardFields []Field) (*Replay, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("newreplay: %v", err)
	}
	if normalizer == nil {
		return nil, fmt.Errorf("newreplay: normalizer must not be nil")
	}

	maxRows := config.MaxLen / config.NbEnv
	r := &Replay{
		nbEnv:      config.NbEnv,
		batchSize:  config.BatchSize,
		rolloutLen: config.RolloutLen,
		maxRows:    maxRows,
		minLen:     config.MinLen,
		normalizer: normalizer,
		data:       make(map[string][]float64),
		featShapes: make(map[string]tensor.Shape),
		featSizes:  make(map[string]int),
		forward:    make(map[string]bool),
		rng:        rand.New(rand.NewSource(config.Seed)),
		prefetched: make(chan *ReplayBatch, config.MaxCache),
		stop:       make(chan struct{}),
	}

	r.declare(rewardsField, nil)
	r.declare(terminalsField, nil)
	for _, channel := range obsSpec.Keys() {
		r.obsKeys = append(r.obsKeys, channel)
		r.declare(obsFieldPrefix+channel, obsSpec[channel].Shape)
	}
	for _, field := range forwardFields {
		name := field.Name
		if _, ok := r.data[name]; ok {
			return nil, fmt.Errorf("newreplay: duplicate field name %v", name)
		}
		r.declare(name, field.Shape)
		r.forward[name] = true
	}

	go r.prefetchLoop()
	return r, nil
}

// declare allocates the flat storage of one field
func (r *Replay) declare(name string, featShape tensor.Shape) {
	featSize := 1
	if len(featShape) > 0 {
		featSize = featShape.TotalSize()
	}
	r.data[name] = make([]float64, r.maxRows*r.nbEnv*featSize)
	r.featShapes[name] = featShape
	r.featSizes[name] = featSize
}

// Len returns the number of vectorized rows holding data
func (r *Replay) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lenLocked()
}

func (r *Replay) lenLocked() int {
	return intutils.Min(r.numInserted, r.maxRows)
}

// IsReady returns whether the buffer has filled past its minimum
// insertion count so that sampling is valid.
func (r *Replay) IsReady() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isReadyLocked()
}

func (r *Replay) isReadyLocked() bool {
	return r.numInserted > r.minLen &&
		r.lenLocked()-2-r.rolloutLen >= 1
}

// WriteForward records the actor-computed auxiliary fields at the
// current write cursor. Every key must have been declared at
// construction.
func (r *Replay) WriteForward(fields map[string]*tensor.Dense) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name := range fields {
		if !r.forward[name] {
			return &Error{
				Op:  "write_forward",
				Err: fmt.Errorf("%w: %v", errIncompatibleKey, name),
			}
		}
	}
	for name, value := range fields {
		if err := r.setRow(name, r.currentIndex, value.Data().([]float64)); err != nil {
			return fmt.Errorf("write_forward: %v", err)
		}
	}
	return nil
}

// WriteEnv inserts one vectorized environment step at the current
// write cursor and advances it. Rewards are normalized before they
// are stored.
func (r *Replay) WriteEnv(obs timestep.Observation, rewards,
	terminals []float64, infos []timestep.Info) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(rewards) != r.nbEnv || len(terminals) != r.nbEnv {
		return fmt.Errorf("write_env: invalid step width "+
			"\n\twant(%v)\n\thave(rewards %v, terminals %v)", r.nbEnv,
			len(rewards), len(terminals))
	}

	for _, channel := range r.obsKeys {
		channelData, ok := obs[channel]
		if !ok {
			return &Error{
				Op:  "write_env",
				Err: fmt.Errorf("%w: missing observation channel %v", errIncompatibleKey, channel),
			}
		}
		err := r.setRow(obsFieldPrefix+channel, r.currentIndex,
			channelData.Data().([]float64))
		if err != nil {
			return fmt.Errorf("write_env: %v", err)
		}
	}

	if err := r.setRow(rewardsField, r.currentIndex, r.normalizer.Normalize(rewards)); err != nil {
		return fmt.Errorf("write_env: %v", err)
	}
	if err := r.setRow(terminalsField, r.currentIndex, terminals); err != nil {
		return fmt.Errorf("write_env: %v", err)
	}

	r.currentIndex = (r.currentIndex + 1) % r.maxRows
	r.numInserted++
	return nil
}

// setRow copies one vectorized row into a field's flat storage
func (r *Replay) setRow(name string, row int, values []float64) error {
	stride := r.nbEnv * r.featSizes[name]
	if len(values) != stride {
		return fmt.Errorf("setrow: invalid row size for field %v "+
			"\n\twant(%v)\n\thave(%v)", name, stride, len(values))
	}
	copy(r.data[name][row*stride:(row+1)*stride], values)
	return nil
}

// Read returns a sampled batch of experience windows, taking the
// oldest prefetched batch when one is staged and falling back to
// synchronous sampling on a prefetch miss. Reading before IsReady is
// an error.
func (r *Replay) Read() (*ReplayBatch, error) {
	if !r.IsReady() {
		return nil, &Error{Op: "read", Err: errNotReady}
	}

	select {
	case batch := <-r.prefetched:
		return batch, nil
	default:
		r.logf("replay: prefetch cache miss, sampling synchronously")
		return r.sample()
	}
}

// Clear is a no-op for replay caches: off-policy experience stays
// sampleable until overwritten by the advancing write cursor.
func (r *Replay) Clear() {}

// Close stops the prefetch goroutine. Closing an already-closed cache
// is a no-op.
func (r *Replay) Close() error {
	r.closeOnce.Do(func() { close(r.stop) })
	return nil
}

// prefetchLoop continuously stages sampled batches into the bounded
// prefetch channel. Sends block when the channel holds MaxCache
// batches, applying back-pressure until the consumer takes one.
func (r *Replay) prefetchLoop() {
	for !r.IsReady() {
		select {
		case <-r.stop:
			return
		case <-time.After(readyPollInterval):
		}
	}

	for {
		select {
		case <-r.stop:
			return
		default:
		}

		batch, err := r.sample()
		if err != nil {
			r.logf(fmt.Sprintf("replay: prefetch sampling failed: %v", err))
			continue
		}

		select {
		case r.prefetched <- batch:
		case <-r.stop:
			return
		}
	}
}

// sample draws one batch of windows uniformly from the valid start
// range [0, length - rolloutLen - 2).
func (r *Replay) sample() (*ReplayBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	maxStart := r.lenLocked() - 2 - r.rolloutLen
	if maxStart < 1 {
		return nil, &Error{Op: "sample", Err: errNotReady}
	}

	starts := make([]int, r.batchSize)
	envInds := make([]int, r.batchSize)
	for b := 0; b < r.batchSize; b++ {
		starts[b] = r.rng.Intn(maxStart)
		envInds[b] = r.rng.Intn(r.nbEnv)
	}

	batch := &ReplayBatch{
		Observations:     make(map[string]*tensor.Dense),
		Fields:           make(map[string]*tensor.Dense),
		NextObservations: make(map[string]*tensor.Dense),
	}

	for name := range r.data {
		window := r.gatherWindows(name, starts, envInds)

		switch {
		case name == rewardsField:
			batch.Rewards = window
		case name == terminalsField:
			batch.Terminals = window
		case r.forward[name]:
			batch.Fields[name] = window
		default:
			channel := name[len(obsFieldPrefix):]
			batch.Observations[channel] = window
			batch.NextObservations[channel] = r.gatherSingle(name,
				starts, r.rolloutLen, envInds)
		}
	}
	return batch, nil
}

// gatherWindows extracts, for each sampled start, the contiguous
// window of rolloutLen rows of one environment-instance column,
// producing shape (batch, rolloutLen, features...).
func (r *Replay) gatherWindows(name string, starts, envInds []int) *tensor.Dense {
	feat := r.featSizes[name]
	out := make([]float64, r.batchSize*r.rolloutLen*feat)
	data := r.data[name]

	for b, start := range starts {
		env := envInds[b]
		for t := 0; t < r.rolloutLen; t++ {
			src := ((start+t)*r.nbEnv + env) * feat
			dst := (b*r.rolloutLen + t) * feat
			copy(out[dst:dst+feat], data[src:src+feat])
		}
	}

	shape := append([]int{r.batchSize, r.rolloutLen}, r.featShapes[name]...)
	return tensor.NewDense(tensor.Float64, shape, tensor.WithBacking(out))
}

// gatherSingle extracts the single row at offset past each sampled
// start for one environment-instance column, producing shape
// (batch, features...).
func (r *Replay) gatherSingle(name string, starts []int, offset int,
	envInds []int) *tensor.Dense {
	feat := r.featSizes[name]
	out := make([]float64, r.batchSize*feat)
	data := r.data[name]

	for b, start := range starts {
		src := ((start+offset)*r.nbEnv + envInds[b]) * feat
		copy(out[b*feat:(b+1)*feat], data[src:src+feat])
	}

	shape := append([]int{r.batchSize}, r.featShapes[name]...)
	return tensor.NewDense(tensor.Float64, shape, tensor.WithBacking(out))
}

// logf writes a diagnostic message via the Log hook or stderr
func (r *Replay) logf(msg string) {
	if r.Log != nil {
		r.Log(msg)
		return
	}
	fmt.Fprintln(os.Stderr, msg)
}
