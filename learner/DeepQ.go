package learner

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/actor"
	"github.com/samuelfneumann/gorl/exp"
	"github.com/samuelfneumann/gorl/network"
	"github.com/samuelfneumann/gorl/solver"
	"github.com/samuelfneumann/gorl/spec"
	"github.com/samuelfneumann/gorl/timestep"
)

// DeepQ implements Q-learning with a target network over sampled
// replay windows. Each sampled window of rolloutLen transitions is
// flattened into independent one-step transitions; the update target
// r + γ * max[Q(s', a')] is computed in-graph from the target
// network's action values, which enter the training graph as an input
// node.
type DeepQ struct {
	net      network.NeuralNet
	trainNet network.NeuralNet
	trainVM  G.VM

	targetNet network.NeuralNet
	targetVM  G.VM

	solver *solver.Solver

	obsSpec   spec.Observation
	key       string
	nbActions int

	batchSize  int
	rolloutLen int
	rows       int

	nextStateActionValues *G.Node
	rewards               *G.Node
	discounts             *G.Node
	selectedActions       *G.Node
	lossVal               G.Value

	discount float64

	// Target network update schedule
	tau                  float64
	targetUpdateInterval int
	gradientSteps        int
}

// NewDeepQ creates a Q-learning learner updating net, an action-value
// network over a single discrete action key. Batches passed to Learn
// must hold batchSize windows of rolloutLen transitions.
func NewDeepQ(net network.NeuralNet, obsSpec spec.Observation,
	actSpec spec.Action, batchSize, rolloutLen int, discount, tau float64,
	targetUpdateInterval int, sol *solver.Solver) (*DeepQ, error) {
	if net == nil {
		return nil, fmt.Errorf("newdeepq: net must not be nil")
	}
	keys := actSpec.Keys()
	if len(keys) != 1 {
		return nil, fmt.Errorf("newdeepq: action-value networks support "+
			"exactly one action key \n\twant(1)\n\thave(%v)", len(keys))
	}
	key := keys[0]
	if actSpec[key].Cardinality != spec.Discrete {
		return nil, fmt.Errorf("newdeepq: action key %v is not discrete", key)
	}
	if batchSize < 1 || rolloutLen < 1 {
		return nil, fmt.Errorf("newdeepq: batchSize and rolloutLen must " +
			"be > 0")
	}
	if discount < 0 || discount > 1 {
		return nil, fmt.Errorf("newdeepq: discount must be in [0, 1]")
	}
	if targetUpdateInterval < 1 {
		return nil, fmt.Errorf("newdeepq: targetUpdateInterval must be > 0")
	}

	rows := batchSize * rolloutLen
	nbActions := actSpec[key].NbValues()

	trainNet, err := net.CloneWithBatch(rows)
	if err != nil {
		return nil, fmt.Errorf("newdeepq: could not create training "+
			"network: %v", err)
	}
	targetNet, err := net.CloneWithBatch(rows)
	if err != nil {
		return nil, fmt.Errorf("newdeepq: could not create target "+
			"network: %v", err)
	}

	gTrain := trainNet.Graph()

	// Create nodes to compute the update target: r + γ * max[Q(s', a')]
	nextStateActionValues := G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(rows, nbActions), G.WithName("targetActionVals"),
		G.WithInit(G.Zeroes()))
	rewards := G.NewVector(gTrain, tensor.Float64, G.WithShape(rows),
		G.WithName("reward"), G.WithInit(G.Zeroes()))
	discounts := G.NewVector(gTrain, tensor.Float64, G.WithShape(rows),
		G.WithName("discount"), G.WithInit(G.Zeroes()))

	updateTarget := G.Must(G.Max(nextStateActionValues, 1))
	updateTarget = G.Must(G.HadamardProd(updateTarget, discounts))
	updateTarget = G.Must(G.Add(updateTarget, rewards))

	// Action selected at each previous state, needed to compute the
	// loss using the correct action value since the network outputs
	// one value per environmental action
	selectedActions := G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(rows, nbActions), G.WithName("actionSelected"),
		G.WithInit(G.Zeroes()))
	selectedActionsValue := G.Must(G.HadamardProd(trainNet.Prediction()[0],
		selectedActions))
	selectedActionsValue = G.Must(G.Sum(selectedActionsValue, 1))

	// Mean squared TD error
	losses := G.Must(G.Sub(updateTarget, selectedActionsValue))
	losses = G.Must(G.Square(losses))
	cost := G.Must(G.Mean(losses))

	learner := &DeepQ{
		net:                   net,
		trainNet:              trainNet,
		targetNet:             targetNet,
		solver:                sol,
		obsSpec:               obsSpec,
		key:                   key,
		nbActions:             nbActions,
		batchSize:             batchSize,
		rolloutLen:            rolloutLen,
		rows:                  rows,
		nextStateActionValues: nextStateActionValues,
		rewards:               rewards,
		discounts:             discounts,
		selectedActions:       selectedActions,
		discount:              discount,
		tau:                   tau,
		targetUpdateInterval:  targetUpdateInterval,
	}
	G.Read(cost, &learner.lossVal)

	if _, err := G.Grad(cost, trainNet.Learnables()...); err != nil {
		return nil, fmt.Errorf("newdeepq: could not compute gradient: %v",
			err)
	}

	learner.trainVM = G.NewTapeMachine(gTrain,
		G.BindDualValues(trainNet.Learnables()...))
	learner.targetVM = G.NewTapeMachine(targetNet.Graph())

	return learner, nil
}

// Loss returns the scalar loss of the most recent Learn call
func (d *DeepQ) Loss() float64 {
	if d.lossVal == nil {
		return 0
	}
	return d.lossVal.Data().(float64)
}

// Weights returns clones of the learner's current weights keyed by
// learnable node name.
func (d *DeepQ) Weights() map[string]*tensor.Dense {
	return network.WeightsOf(d.trainNet.Learnables())
}

// SetWeights overwrites the learner's weights with the named tensors
func (d *DeepQ) SetWeights(weights map[string]*tensor.Dense) error {
	if err := network.SetWeightsOf(d.trainNet.Learnables(), weights); err != nil {
		return err
	}
	return d.net.Set(d.trainNet)
}

// Learn takes one gradient step from a batch of sampled replay
// windows. After the step, the acting network's weights are
// synchronized with the learner's, and the target network is moved
// towards the learner's weights on its update schedule.
func (d *DeepQ) Learn(batch *exp.ReplayBatch) error {
	obsFlat, nextObsFlat, err := d.flattenTransitions(batch)
	if err != nil {
		return fmt.Errorf("learn: %v", err)
	}

	// Action values of the next states under the target network
	if err := d.targetNet.SetInput(nextObsFlat); err != nil {
		return fmt.Errorf("learn: %v", err)
	}
	if err := d.targetVM.RunAll(); err != nil {
		return fmt.Errorf("learn: could not run target network: %v", err)
	}
	nextQ := d.targetNet.Output()[0].(*tensor.Dense).Clone().(*tensor.Dense)
	d.targetVM.Reset()

	if err := d.trainNet.SetInput(obsFlat); err != nil {
		return fmt.Errorf("learn: %v", err)
	}
	if err := G.Let(d.nextStateActionValues, nextQ); err != nil {
		return fmt.Errorf("learn: could not set target action values: %v",
			err)
	}

	rewardData := batch.Rewards.Data().([]float64)
	if err := G.Let(d.rewards, tensor.NewDense(tensor.Float64,
		tensor.Shape{d.rows},
		tensor.WithBacking(append([]float64{}, rewardData...)))); err != nil {
		return fmt.Errorf("learn: could not set rewards: %v", err)
	}

	terminalData := batch.Terminals.Data().([]float64)
	discountData := make([]float64, d.rows)
	for i, terminal := range terminalData {
		discountData[i] = d.discount * (1 - terminal)
	}
	if err := G.Let(d.discounts, tensor.NewDense(tensor.Float64,
		tensor.Shape{d.rows},
		tensor.WithBacking(discountData))); err != nil {
		return fmt.Errorf("learn: could not set discounts: %v", err)
	}

	selected, ok := batch.Fields[actor.ActionsField(d.key)]
	if !ok {
		return fmt.Errorf("learn: batch has no field %v",
			actor.ActionsField(d.key))
	}
	onehot := make([]float64, d.rows*d.nbActions)
	for i, action := range selected.Data().([]float64) {
		onehot[i*d.nbActions+int(action)] = 1.0
	}
	if err := G.Let(d.selectedActions, tensor.NewDense(tensor.Float64,
		tensor.Shape{d.rows, d.nbActions},
		tensor.WithBacking(onehot))); err != nil {
		return fmt.Errorf("learn: could not set selected actions: %v", err)
	}

	if err := d.trainVM.RunAll(); err != nil {
		return fmt.Errorf("learn: could not run training network: %v", err)
	}
	if err := d.solver.Step(d.trainNet.Model()); err != nil {
		return fmt.Errorf("learn: could not step solver: %v", err)
	}
	d.trainVM.Reset()

	if err := d.net.Set(d.trainNet); err != nil {
		return fmt.Errorf("learn: could not synchronize acting network: %v",
			err)
	}

	d.gradientSteps++
	if d.gradientSteps%d.targetUpdateInterval == 0 {
		if err := d.targetNet.Polyak(d.trainNet, d.tau); err != nil {
			return fmt.Errorf("learn: could not update target network: %v",
				err)
		}
	}
	return nil
}

// flattenTransitions flattens sampled windows of shape
// (batch, rolloutLen, features...) into flat current-state and
// next-state network inputs of rows = batch * rolloutLen rows each.
// The next state of the final transition in each window is the
// window's bootstrap observation.
func (d *DeepQ) flattenTransitions(batch *exp.ReplayBatch) ([]float64,
	[]float64, error) {
	current := make(timestep.Observation, len(batch.Observations))
	next := make(timestep.Observation, len(batch.Observations))

	for channel, window := range batch.Observations {
		channelSpec, ok := d.obsSpec[channel]
		if !ok {
			return nil, nil, fmt.Errorf("flattentransitions: unexpected "+
				"observation channel %v", channel)
		}
		feat := channelSpec.Shape.TotalSize()

		windowData := window.Data().([]float64)
		if len(windowData) != d.rows*feat {
			return nil, nil, fmt.Errorf("flattentransitions: invalid size "+
				"for channel %v \n\twant(%v)\n\thave(%v)", channel,
				d.rows*feat, len(windowData))
		}

		bootstrapData := batch.NextObservations[channel].Data().([]float64)
		nextData := make([]float64, d.rows*feat)
		for b := 0; b < d.batchSize; b++ {
			windowStart := b * d.rolloutLen * feat
			// Transitions before the window's end take the following
			// row as their next state
			copy(nextData[windowStart:windowStart+(d.rolloutLen-1)*feat],
				windowData[windowStart+feat:windowStart+d.rolloutLen*feat])
			copy(nextData[windowStart+(d.rolloutLen-1)*feat:windowStart+d.rolloutLen*feat],
				bootstrapData[b*feat:(b+1)*feat])
		}

		current[channel] = tensor.NewDense(tensor.Float64,
			tensor.Shape{d.rows, feat},
			tensor.WithBacking(append([]float64{}, windowData...)))
		next[channel] = tensor.NewDense(tensor.Float64,
			tensor.Shape{d.rows, feat}, tensor.WithBacking(nextData))
	}

	obsFlat, err := network.FlattenObservation(current, d.obsSpec, d.rows)
	if err != nil {
		return nil, nil, fmt.Errorf("flattentransitions: %v", err)
	}
	nextObsFlat, err := network.FlattenObservation(next, d.obsSpec, d.rows)
	if err != nil {
		return nil, nil, fmt.Errorf("flattentransitions: %v", err)
	}
	return obsFlat, nextObsFlat, nil
}
