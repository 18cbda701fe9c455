package network

import (
	"fmt"
	"sort"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/spec"
	"github.com/samuelfneumann/gorl/timestep"
)

// CriticKey is the output head under which an ACMLP predicts state
// values. Action spaces may not use this key.
const CriticKey = "critic"

// ACMLP implements an actor-critic multi-layered perceptron. A shared
// trunk feeds one linear logits head per action key plus a linear
// critic head predicting the state value. Observation channels are
// concatenated in sorted key order to form the trunk input.
//
// An ACMLP is feedforward and carries an empty InternalState.
type ACMLP struct {
	g       *G.ExprGraph
	obsSpec spec.Observation
	actSpec spec.Action

	batchSize int
	features  int

	trunk     []Layer
	heads     map[string]Layer
	headOrder []string

	input     *G.Node
	headNodes map[string]*G.Node
	headVals  map[string]*G.Value

	hiddenSizes []int
	biases      []bool
	activations []*Activation

	learnables G.Nodes
	model      []G.ValueGrad

	vm G.VM
}

// NewACMLP creates an actor-critic MLP over the given observation and
// action spaces. The trunk has len(hiddenSizes) layers; for index i,
// hiddenSizes[i] is the number of units in trunk layer i, biases[i]
// determines whether trunk layer i has a bias unit, and activations[i]
// is its activation function. Every action key must describe a
// discrete space.
func NewACMLP(obsSpec spec.Observation, actSpec spec.Action, batch int,
	hiddenSizes []int, biases []bool, activations []*Activation,
	init G.InitWFn) (*ACMLP, error) {
	if len(hiddenSizes) == 0 {
		return nil, fmt.Errorf("newacmlp: trunk must have at least one layer")
	}
	if len(hiddenSizes) != len(activations) {
		return nil, fmt.Errorf("newacmlp: invalid number of activations"+
			"\n\twant(%d)\n\thave(%d)", len(hiddenSizes), len(activations))
	}
	if len(hiddenSizes) != len(biases) {
		return nil, fmt.Errorf("newacmlp: invalid number of biases"+
			"\n\twant(%d)\n\thave(%d)", len(hiddenSizes), len(biases))
	}
	if batch < 1 {
		return nil, fmt.Errorf("newacmlp: batch must be > 0")
	}
	for _, key := range actSpec.Keys() {
		if key == CriticKey {
			return nil, fmt.Errorf("newacmlp: action key %v is reserved",
				CriticKey)
		}
		if actSpec[key].Cardinality != spec.Discrete {
			return nil, fmt.Errorf("newacmlp: action key %v is not discrete",
				key)
		}
	}

	net := &ACMLP{
		obsSpec:     obsSpec,
		actSpec:     actSpec,
		batchSize:   batch,
		features:    obsSpec.TotalSize(),
		hiddenSizes: hiddenSizes,
		biases:      biases,
		activations: activations,
	}

	g := G.NewGraph()
	input := G.NewMatrix(g, tensor.Float64,
		G.WithShape(batch, net.features), G.WithName("input"),
		G.WithInit(G.Zeroes()))

	trunk := addfcLayers(g, hiddenSizes, biases, activations, init,
		net.features, "trunk", "")
	trunkOut := hiddenSizes[len(hiddenSizes)-1]

	heads := make(map[string]Layer)
	headOrder := append([]string{}, actSpec.Keys()...)
	headOrder = append(headOrder, CriticKey)
	sort.Strings(headOrder)

	for _, key := range headOrder {
		size := 1
		if key != CriticKey {
			size = actSpec[key].NbValues()
		}
		headLayers := addfcLayers(g, []int{size}, []bool{true},
			[]*Activation{Identity()}, init, trunkOut, "head"+key, "")
		heads[key] = headLayers[0]
	}

	net.g = g
	net.input = input
	net.trunk = trunk
	net.heads = heads
	net.headOrder = headOrder

	if err := net.fwd(input); err != nil {
		return nil, fmt.Errorf("newacmlp: could not compute forward pass: %v",
			err)
	}
	return net, nil
}

// fwd adds the forward pass through the trunk and all heads to the
// computational graph.
func (a *ACMLP) fwd(input *G.Node) error {
	pred := input
	var err error
	for i, l := range a.trunk {
		if pred, err = l.fwd(pred); err != nil {
			return fmt.Errorf("fwd: could not compute trunk layer %v: %v", i,
				err)
		}
	}

	a.headNodes = make(map[string]*G.Node, len(a.heads))
	a.headVals = make(map[string]*G.Value, len(a.heads))
	for _, key := range a.headOrder {
		headOut, err := a.heads[key].fwd(pred)
		if err != nil {
			return fmt.Errorf("fwd: could not compute head %v: %v", key, err)
		}
		a.headNodes[key] = headOut

		var val G.Value
		a.headVals[key] = &val
		G.Read(headOut, a.headVals[key])
	}
	return nil
}

// Graph returns the computational graph of the ACMLP
func (a *ACMLP) Graph() *G.ExprGraph {
	return a.g
}

// BatchSize returns the batch size of inputs to the network
func (a *ACMLP) BatchSize() int {
	return a.batchSize
}

// Features returns the number of features in a single flattened
// observation vector.
func (a *ACMLP) Features() int {
	return a.features
}

// OutputKeys returns the head names: one per action key plus the
// critic head.
func (a *ACMLP) OutputKeys() []string {
	return a.headOrder
}

// Head returns the graph node holding the output of one head.
// Learners attach their loss expressions to these nodes.
func (a *ACMLP) Head(key string) (*G.Node, error) {
	node, ok := a.headNodes[key]
	if !ok {
		return nil, fmt.Errorf("head: no head named %v", key)
	}
	return node, nil
}

// HeadValue returns the value read from one head during the most
// recent run of a machine over the network's graph.
func (a *ACMLP) HeadValue(key string) (G.Value, error) {
	val, ok := a.headVals[key]
	if !ok {
		return nil, fmt.Errorf("headvalue: no head named %v", key)
	}
	return *val, nil
}

// SetInput sets the value of the input node before running the
// forward pass.
func (a *ACMLP) SetInput(input []float64) error {
	if len(input) != a.features*a.batchSize {
		return fmt.Errorf("setinput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", a.features*a.batchSize, len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(a.input.Shape()...),
	)
	return G.Let(a.input, inputTensor)
}

// SetObservations flattens a vectorized observation into the input
// node, concatenating channels in sorted key order.
func (a *ACMLP) SetObservations(obs timestep.Observation) error {
	flat, err := FlattenObservation(obs, a.obsSpec, a.batchSize)
	if err != nil {
		return fmt.Errorf("setobservations: %v", err)
	}
	return a.SetInput(flat)
}

// Forward evaluates the network on one vectorized observation whose
// leading dimension equals the network's batch size, returning the
// head outputs keyed by head name. Logits heads have shape
// (batch, nbValues) and the critic head has shape (batch, 1).
func (a *ACMLP) Forward(obs timestep.Observation,
	internals InternalState) (map[string]*tensor.Dense, InternalState,
	error) {
	if err := a.SetObservations(obs); err != nil {
		return nil, nil, fmt.Errorf("forward: %v", err)
	}

	if a.vm == nil {
		a.vm = G.NewTapeMachine(a.g)
	}
	if err := a.vm.RunAll(); err != nil {
		return nil, nil, fmt.Errorf("forward: could not run forward pass: %v",
			err)
	}
	defer a.vm.Reset()

	outputs := make(map[string]*tensor.Dense, len(a.headOrder))
	for _, key := range a.headOrder {
		val := *a.headVals[key]
		outputs[key] = val.(*tensor.Dense).Clone().(*tensor.Dense)
	}
	return outputs, InternalState{}, nil
}

// NewInternals returns the initial internal state, which is empty for
// a feedforward network.
func (a *ACMLP) NewInternals() InternalState {
	return InternalState{}
}

// CloneWithBatch clones the ACMLP onto a new computational graph with
// a new input batch size, copying the current weights.
func (a *ACMLP) CloneWithBatch(batchSize int) (*ACMLP, error) {
	graph := G.NewGraph()
	input := G.NewMatrix(graph, tensor.Float64,
		G.WithShape(batchSize, a.features), G.WithName("input"),
		G.WithInit(G.Zeroes()))

	trunk := make([]Layer, len(a.trunk))
	for i := range a.trunk {
		trunk[i] = a.trunk[i].CloneTo(graph)
	}
	heads := make(map[string]Layer, len(a.heads))
	for key, head := range a.heads {
		heads[key] = head.CloneTo(graph)
	}

	clone := &ACMLP{
		g:           graph,
		obsSpec:     a.obsSpec,
		actSpec:     a.actSpec,
		batchSize:   batchSize,
		features:    a.features,
		trunk:       trunk,
		heads:       heads,
		headOrder:   a.headOrder,
		hiddenSizes: a.hiddenSizes,
		biases:      a.biases,
		activations: a.activations,
	}
	if err := clone.fwd(input); err != nil {
		return nil, fmt.Errorf("clonewithbatch: could not clone: %v", err)
	}
	clone.input = input
	return clone, nil
}

// Clone clones the ACMLP with its current batch size
func (a *ACMLP) Clone() (*ACMLP, error) {
	return a.CloneWithBatch(a.batchSize)
}

// Set sets the weights of the ACMLP to be equal to the weights of
// another ACMLP with the same architecture.
func (a *ACMLP) Set(source *ACMLP) error {
	sourceNodes := source.Learnables()
	nodes := a.Learnables()
	if len(sourceNodes) != len(nodes) {
		return fmt.Errorf("set: architecture mismatch \n\twant(%v "+
			"learnables)\n\thave(%v)", len(nodes), len(sourceNodes))
	}
	for i, destLearnable := range nodes {
		sourceLearnable := sourceNodes[i].Clone()
		err := G.Let(destLearnable, sourceLearnable.(*G.Node).Value())
		if err != nil {
			return err
		}
	}
	return nil
}

// Learnables returns the learnable nodes: trunk layers first, then
// head layers in sorted head order.
func (a *ACMLP) Learnables() G.Nodes {
	// Lazy instantiation
	if a.learnables == nil {
		layers := append([]Layer{}, a.trunk...)
		for _, key := range a.headOrder {
			layers = append(layers, a.heads[key])
		}

		learnables := make([]*G.Node, 0, 2*len(layers))
		for _, layer := range layers {
			learnables = append(learnables, layer.Weights())
			if bias := layer.Bias(); bias != nil {
				learnables = append(learnables, bias)
			}
		}
		a.learnables = G.Nodes(learnables)
	}
	return a.learnables
}

// Model returns the learnable nodes with their gradients
func (a *ACMLP) Model() []G.ValueGrad {
	// Lazy instantiation
	if a.model == nil {
		model := make([]G.ValueGrad, 0, len(a.Learnables()))
		for _, node := range a.Learnables() {
			model = append(model, node)
		}
		a.model = model
	}
	return a.model
}

// Weights returns clones of the network weights keyed by learnable
// node name.
func (a *ACMLP) Weights() map[string]*tensor.Dense {
	return WeightsOf(a.Learnables())
}

// SetWeights overwrites the network weights with the named tensors
func (a *ACMLP) SetWeights(weights map[string]*tensor.Dense) error {
	return SetWeightsOf(a.Learnables(), weights)
}
