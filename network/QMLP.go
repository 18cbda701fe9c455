package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// qMLP implements an action-value multi-layered perceptron. The
// network has one output per legal action; a forward pass predicts the
// value of every action in the input states at once.
type qMLP struct {
	g      *G.ExprGraph
	layers []Layer
	input  *G.Node

	batchSize int
	features  int
	outputs   int

	hiddenSizes []int
	biases      []bool
	activations []*Activation

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value
}

// NewQMLP creates an action-value MLP over flattened observations of
// features inputs, predicting one value per action for outputs
// actions. The hidden trunk has len(hiddenSizes) layers; for index i,
// hiddenSizes[i] is the number of units in layer i, biases[i]
// determines whether layer i has a bias unit, and activations[i] is
// its activation function. A final linear layer of outputs units with
// a bias is always appended.
func NewQMLP(features, batch, outputs int, hiddenSizes []int, biases []bool,
	activations []*Activation, init G.InitWFn) (NeuralNet, error) {
	if len(hiddenSizes) != len(activations) {
		return nil, fmt.Errorf("newqmlp: invalid number of activations"+
			"\n\twant(%d)\n\thave(%d)", len(hiddenSizes), len(activations))
	}
	if len(hiddenSizes) != len(biases) {
		return nil, fmt.Errorf("newqmlp: invalid number of biases"+
			"\n\twant(%d)\n\thave(%d)", len(hiddenSizes), len(biases))
	}
	if features < 1 || batch < 1 || outputs < 1 {
		return nil, fmt.Errorf("newqmlp: features, batch, and outputs must "+
			"be > 0 \n\thave(%v, %v, %v)", features, batch, outputs)
	}

	hiddenSizes = append(append([]int{}, hiddenSizes...), outputs)
	biases = append(append([]bool{}, biases...), true)
	activations = append(append([]*Activation{}, activations...), Identity())

	g := G.NewGraph()
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName("input"), G.WithInit(G.Zeroes()))
	layers := addfcLayers(g, hiddenSizes, biases, activations, init, features,
		"", "")

	net := &qMLP{
		g:           g,
		layers:      layers,
		input:       input,
		batchSize:   batch,
		features:    features,
		outputs:     outputs,
		hiddenSizes: hiddenSizes,
		biases:      biases,
		activations: activations,
	}
	if err := net.fwd(input); err != nil {
		return nil, fmt.Errorf("newqmlp: could not compute forward pass: %v",
			err)
	}
	return net, nil
}

// fwd adds the forward pass through all layers to the computational
// graph.
func (q *qMLP) fwd(input *G.Node) error {
	pred := input
	var err error
	for i, l := range q.layers {
		if pred, err = l.fwd(pred); err != nil {
			return fmt.Errorf("fwd: could not compute layer %v: %v", i, err)
		}
	}

	q.prediction = pred
	G.Read(q.prediction, &q.predVal)
	return nil
}

// Graph returns the computational graph of the qMLP
func (q *qMLP) Graph() *G.ExprGraph {
	return q.g
}

// BatchSize returns the batch size of inputs to the network
func (q *qMLP) BatchSize() int {
	return q.batchSize
}

// Features returns the number of features in a single flattened
// observation vector.
func (q *qMLP) Features() int {
	return q.features
}

// Outputs returns the number of action values the network predicts per
// input state.
func (q *qMLP) Outputs() int {
	return q.outputs
}

// SetInput sets the value of the input node before running the
// forward pass.
func (q *qMLP) SetInput(input []float64) error {
	if len(input) != q.features*q.batchSize {
		return fmt.Errorf("setinput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", q.features*q.batchSize, len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(q.input.Shape()...),
	)
	return G.Let(q.input, inputTensor)
}

// Clone clones the qMLP with its current batch size
func (q *qMLP) Clone() (NeuralNet, error) {
	return q.CloneWithBatch(q.batchSize)
}

// CloneWithBatch clones the qMLP onto a new computational graph with a
// new input batch size, copying the current weights.
func (q *qMLP) CloneWithBatch(batchSize int) (NeuralNet, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("clonewithbatch: batch must be > 0")
	}

	graph := G.NewGraph()
	input := G.NewMatrix(graph, tensor.Float64,
		G.WithShape(batchSize, q.features), G.WithName("input"),
		G.WithInit(G.Zeroes()))

	layers := make([]Layer, len(q.layers))
	for i := range q.layers {
		layers[i] = q.layers[i].CloneTo(graph)
	}

	clone := &qMLP{
		g:           graph,
		layers:      layers,
		input:       input,
		batchSize:   batchSize,
		features:    q.features,
		outputs:     q.outputs,
		hiddenSizes: q.hiddenSizes,
		biases:      q.biases,
		activations: q.activations,
	}
	if err := clone.fwd(input); err != nil {
		return nil, fmt.Errorf("clonewithbatch: could not clone: %v", err)
	}
	return clone, nil
}

// Set sets the weights of the qMLP to be equal to the weights of
// another network with the same architecture.
func (q *qMLP) Set(source NeuralNet) error {
	sourceNodes := source.Learnables()
	nodes := q.Learnables()
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

// Polyak moves the weights of the qMLP towards the weights of another
// network: w <- (1 - tau) * w + tau * w_source.
func (q *qMLP) Polyak(source NeuralNet, tau float64) error {
	sourceNodes := source.Learnables()
	nodes := q.Learnables()
	if len(sourceNodes) != len(nodes) {
		return fmt.Errorf("polyak: architecture mismatch \n\twant(%v "+
			"learnables)\n\thave(%v)", len(nodes), len(sourceNodes))
	}

	for i := range nodes {
		weights, err := nodes[i].Value().(*tensor.Dense).MulScalar(1-tau, true)
		if err != nil {
			return err
		}
		sourceWeights, err := sourceNodes[i].Value().(*tensor.Dense).MulScalar(
			tau, true)
		if err != nil {
			return err
		}

		newWeights, err := weights.Add(sourceWeights)
		if err != nil {
			return err
		}
		if err := G.Let(nodes[i], newWeights); err != nil {
			return err
		}
	}
	return nil
}

// Learnables returns the learnable nodes, input layer first
func (q *qMLP) Learnables() G.Nodes {
	// Lazy instantiation
	if q.learnables == nil {
		learnables := make([]*G.Node, 0, 2*len(q.layers))
		for _, layer := range q.layers {
			learnables = append(learnables, layer.Weights())
			if bias := layer.Bias(); bias != nil {
				learnables = append(learnables, bias)
			}
		}
		q.learnables = G.Nodes(learnables)
	}
	return q.learnables
}

// Model returns the learnable nodes with their gradients
func (q *qMLP) Model() []G.ValueGrad {
	// Lazy instantiation
	if q.model == nil {
		model := make([]G.ValueGrad, 0, len(q.Learnables()))
		for _, node := range q.Learnables() {
			model = append(model, node)
		}
		q.model = model
	}
	return q.model
}

// Output returns the action values read during the most recent run of
// a machine over the network's graph.
func (q *qMLP) Output() []G.Value {
	return []G.Value{q.predVal}
}

// Prediction returns the graph node holding the predicted action
// values. Learners attach their loss expressions to this node.
func (q *qMLP) Prediction() []*G.Node {
	return []*G.Node{q.prediction}
}
