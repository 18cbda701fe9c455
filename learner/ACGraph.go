package learner

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/network"
	"github.com/samuelfneumann/gorl/solver"
	"github.com/samuelfneumann/gorl/spec"
	"github.com/samuelfneumann/gorl/utils/op"
)

// acGraph holds the training clone of an actor-critic network together
// with its actor-critic loss expression. The loss is
//
//	0.5 * mean((target - V(s))²)
//	+ mean(-logπ(a|s) * advantage)
//	- entropyWeight * mean(H(π(·|s)))
//
// where targets and advantages enter the graph as input nodes, so one
// graph serves any learner that computes those quantities numerically.
type acGraph struct {
	train   *network.ACMLP
	actSpec spec.Action
	keys    []string
	rows    int

	onehots    map[string]*G.Node
	advantages map[string]*G.Node
	targets    *G.Node

	logSofts    map[string]*G.Node
	logSoftVals map[string]*G.Value
	lossVal     G.Value

	vm     G.VM
	solver *solver.Solver
}

// newACGraph clones net onto a training graph with rows input rows and
// attaches the actor-critic loss.
func newACGraph(net *network.ACMLP, rows int, actSpec spec.Action,
	entropyWeight float64, sol *solver.Solver) (*acGraph, error) {
	train, err := net.CloneWithBatch(rows)
	if err != nil {
		return nil, fmt.Errorf("newacgraph: could not clone network: %v", err)
	}
	g := train.Graph()
	keys := actSpec.Keys()

	ag := &acGraph{
		train:       train,
		actSpec:     actSpec,
		keys:        keys,
		rows:        rows,
		onehots:     make(map[string]*G.Node, len(keys)),
		advantages:  make(map[string]*G.Node, len(keys)),
		logSofts:    make(map[string]*G.Node, len(keys)),
		logSoftVals: make(map[string]*G.Value, len(keys)),
		solver:      sol,
	}

	policyLosses := make([]*G.Node, 0, len(keys))
	entropies := make([]*G.Node, 0, len(keys))
	for _, key := range keys {
		logits, err := train.Head(key)
		if err != nil {
			return nil, fmt.Errorf("newacgraph: %v", err)
		}
		nbValues := actSpec[key].NbValues()

		logZ := op.LogSumExp(logits, 1)
		logSoft := G.Must(G.BroadcastSub(logits, logZ, nil, []byte{1}))
		ag.logSofts[key] = logSoft

		var logSoftVal G.Value
		ag.logSoftVals[key] = &logSoftVal
		G.Read(logSoft, ag.logSoftVals[key])

		onehot := G.NewMatrix(g, tensor.Float64,
			G.WithShape(rows, nbValues), G.WithName("selected-"+key),
			G.WithInit(G.Zeroes()))
		ag.onehots[key] = onehot

		advantage := G.NewVector(g, tensor.Float64, G.WithShape(rows),
			G.WithName("advantage-"+key), G.WithInit(G.Zeroes()))
		ag.advantages[key] = advantage

		// logπ of the selected actions
		gathered := G.Must(G.Sum(G.Must(G.HadamardProd(logSoft, onehot)), 1))

		weighted := G.Must(G.HadamardProd(gathered, advantage))
		policyLoss := G.Must(G.Mean(G.Must(G.Neg(weighted))))
		policyLosses = append(policyLosses, policyLoss)

		probs := G.Must(G.Exp(logSoft))
		plogp := G.Must(G.Sum(G.Must(G.HadamardProd(probs, logSoft)), 1))
		entropy := G.Must(G.Mean(G.Must(G.Neg(plogp))))
		entropies = append(entropies, entropy)
	}

	critic, err := train.Head(network.CriticKey)
	if err != nil {
		return nil, fmt.Errorf("newacgraph: %v", err)
	}
	targets := G.NewMatrix(g, tensor.Float64, G.WithShape(rows, 1),
		G.WithName("targets"), G.WithInit(G.Zeroes()))
	ag.targets = targets

	tdError := G.Must(G.Sub(targets, critic))
	valueLoss := G.Must(G.Mean(G.Must(G.Square(tdError))))
	valueLoss = G.Must(G.Mul(G.NewConstant(0.5), valueLoss))

	policyLoss := meanOf(policyLosses)
	entropy := meanOf(entropies)

	loss := G.Must(G.Add(valueLoss, policyLoss))
	entropyTerm := G.Must(G.Mul(G.NewConstant(entropyWeight), entropy))
	loss = G.Must(G.Sub(loss, entropyTerm))
	G.Read(loss, &ag.lossVal)

	if _, err := G.Grad(loss, train.Learnables()...); err != nil {
		return nil, fmt.Errorf("newacgraph: could not compute gradient: %v",
			err)
	}

	ag.vm = G.NewTapeMachine(g, G.BindDualValues(train.Learnables()...))
	return ag, nil
}

// meanOf averages a list of scalar nodes
func meanOf(nodes []*G.Node) *G.Node {
	sum := nodes[0]
	for _, node := range nodes[1:] {
		sum = G.Must(G.Add(sum, node))
	}
	if len(nodes) == 1 {
		return sum
	}
	return G.Must(G.Div(sum, G.NewConstant(float64(len(nodes)))))
}

// setBatch sets the observation input and the selected-action one-hot
// inputs for the current batch. The actions parameter holds flat
// action indices of length rows per action key.
func (ag *acGraph) setBatch(obsFlat []float64,
	actions map[string][]float64) error {
	if err := ag.train.SetInput(obsFlat); err != nil {
		return fmt.Errorf("setbatch: %v", err)
	}

	for _, key := range ag.keys {
		selected, ok := actions[key]
		if !ok {
			return fmt.Errorf("setbatch: missing actions for key %v", key)
		}
		if len(selected) != ag.rows {
			return fmt.Errorf("setbatch: invalid number of actions for key "+
				"%v \n\twant(%v)\n\thave(%v)", key, ag.rows, len(selected))
		}

		nbValues := ag.actSpec[key].NbValues()
		backing := make([]float64, ag.rows*nbValues)
		for row, action := range selected {
			backing[row*nbValues+int(action)] = 1.0
		}

		onehot := tensor.NewDense(tensor.Float64,
			tensor.Shape{ag.rows, nbValues}, tensor.WithBacking(backing))
		if err := G.Let(ag.onehots[key], onehot); err != nil {
			return fmt.Errorf("setbatch: could not set actions for key "+
				"%v: %v", key, err)
		}
	}
	return nil
}

// forward runs the graph once with the current inputs and returns the
// learner's log-softmax values per action key, each a flat
// (rows * nbValues) slice, plus the critic's value estimates of
// length rows.
func (ag *acGraph) forward() (map[string][]float64, []float64, error) {
	if err := ag.vm.RunAll(); err != nil {
		return nil, nil, fmt.Errorf("forward: could not run graph: %v", err)
	}
	defer ag.vm.Reset()

	logSofts := make(map[string][]float64, len(ag.keys))
	for _, key := range ag.keys {
		val := *ag.logSoftVals[key]
		data := val.(*tensor.Dense).Data().([]float64)
		logSofts[key] = append([]float64{}, data...)
	}

	criticVal, err := ag.train.HeadValue(network.CriticKey)
	if err != nil {
		return nil, nil, fmt.Errorf("forward: %v", err)
	}
	values := append([]float64{},
		criticVal.(*tensor.Dense).Data().([]float64)...)

	return logSofts, values, nil
}

// step sets the advantage and target inputs, runs the graph, and takes
// one solver step on the training network's weights.
func (ag *acGraph) step(advantages map[string][]float64,
	targets []float64) error {
	for _, key := range ag.keys {
		advantage, ok := advantages[key]
		if !ok {
			return fmt.Errorf("step: missing advantages for key %v", key)
		}
		advTensor := tensor.NewDense(tensor.Float64,
			tensor.Shape{ag.rows},
			tensor.WithBacking(append([]float64{}, advantage...)))
		if err := G.Let(ag.advantages[key], advTensor); err != nil {
			return fmt.Errorf("step: could not set advantages for key "+
				"%v: %v", key, err)
		}
	}

	targetTensor := tensor.NewDense(tensor.Float64,
		tensor.Shape{ag.rows, 1},
		tensor.WithBacking(append([]float64{}, targets...)))
	if err := G.Let(ag.targets, targetTensor); err != nil {
		return fmt.Errorf("step: could not set targets: %v", err)
	}

	if err := ag.vm.RunAll(); err != nil {
		return fmt.Errorf("step: could not run graph: %v", err)
	}
	defer ag.vm.Reset()

	if err := ag.solver.Step(ag.train.Model()); err != nil {
		return fmt.Errorf("step: could not step solver: %v", err)
	}
	return nil
}

// loss returns the scalar loss value of the most recent run
func (ag *acGraph) loss() float64 {
	if ag.lossVal == nil {
		return 0
	}
	return ag.lossVal.Data().(float64)
}
