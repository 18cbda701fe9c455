package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/samuelfneumann/gorl/agent"
	"github.com/samuelfneumann/gorl/checkpoint"
	"github.com/samuelfneumann/gorl/container"
	"github.com/samuelfneumann/gorl/environment"
	"github.com/samuelfneumann/gorl/environment/chain"
	"github.com/samuelfneumann/gorl/initwfn"
	"github.com/samuelfneumann/gorl/learner"
	"github.com/samuelfneumann/gorl/network"
	"github.com/samuelfneumann/gorl/rwdnorm"
	"github.com/samuelfneumann/gorl/solver"
)

func main() {
	var seed uint64 = 192382

	init, err := initwfn.NewGlorotU(1.0)
	fatalIf(err)
	sol, err := solver.NewDefaultAdam(0.001, 1)
	fatalIf(err)

	fmt.Println("=== Local actor-critic on chain walk ===")
	fatalIf(runLocal(init, sol, seed))

	fmt.Println("=== Distributed IMPALA on chain walk ===")
	fatalIf(runDistributed(init, sol, seed))
}

// runLocal trains an advantage actor-critic agent in a single
// goroutine, checkpointing weights every 10,000 steps.
func runLocal(init *initwfn.InitWFn, sol *solver.Solver,
	seed uint64) error {
	env, err := environment.NewManager(chainMaker, 4, seed)
	if err != nil {
		return err
	}

	config := agent.ActorCriticConfig{
		HiddenSizes: []int{32, 32},
		Biases:      []bool{true, true},
		Activations: []*network.Activation{network.ReLU(), network.ReLU()},
		InitWFn:     init,
		Solver:      sol,

		RolloutLen:    16,
		Discount:      0.99,
		Tau:           1.0,
		EntropyWeight: 0.01,

		RewardNorm: rwdnorm.Config{Type: rwdnorm.Identity},
	}
	a, err := config.CreateAgent(env, seed)
	if err != nil {
		return err
	}
	defer a.Close()

	checkpointer, err := checkpoint.NewNStep(10_000, a,
		checkpoint.FilenameEnumerator("weights", "bin"))
	if err != nil {
		return err
	}

	local, err := container.NewLocal(a, env, 50_000, checkpointer)
	if err != nil {
		return err
	}
	return local.Run()
}

// runDistributed trains with two acting-only workers feeding rollouts
// to one IMPALA learner over per-pair links.
func runDistributed(init *initwfn.InitWFn, sol *solver.Solver,
	seed uint64) error {
	const (
		nbWorkers    = 2
		workerNbEnv  = 2
		rolloutLen   = 16
		nbUpdates    = 100
		nbLearnBatch = 2
	)

	workerConfig := agent.ImpalaConfig{
		HiddenSizes: []int{32, 32},
		Biases:      []bool{true, true},
		Activations: []*network.Activation{network.ReLU(), network.ReLU()},
		InitWFn:     init,

		RolloutLen:    rolloutLen,
		Discount:      0.99,
		EntropyWeight: 0.01,

		ImportanceValueClip:  1.0,
		ImportancePolicyClip: 1.0,

		RewardNorm: rwdnorm.Config{Type: rwdnorm.Identity},
		ActingOnly: true,
	}

	links := make([]*container.Link, nbWorkers)
	workers := make([]*container.Worker, nbWorkers)

	// A throwaway instance, built only to read the observation and
	// action spaces shared by every worker.
	proto, err := chainMaker(0)
	if err != nil {
		return err
	}

	for i := 0; i < nbWorkers; i++ {
		workerSeed := seed + uint64(i*workerNbEnv)
		env, err := environment.NewManager(chainMaker, workerNbEnv,
			workerSeed)
		if err != nil {
			return err
		}

		a, err := workerConfig.CreateAgent(env, workerSeed)
		if err != nil {
			return err
		}

		links[i] = container.NewLink(0)
		workers[i], err = container.NewWorker(a.(container.Producer), env,
			links[i], nbUpdates*rolloutLen*workerNbEnv)
		if err != nil {
			return err
		}
	}

	// The learner's network spans the environment instances of every
	// worker it merges per update.
	learnerNet, err := network.NewACMLP(proto.ObservationSpec(),
		proto.ActionSpec(), nbLearnBatch*workerNbEnv,
		workerConfig.HiddenSizes, workerConfig.Biases,
		workerConfig.Activations, init.InitWFn())
	if err != nil {
		return err
	}

	impala, err := learner.NewImpala(learnerNet, proto.ObservationSpec(),
		proto.ActionSpec(), rolloutLen, workerConfig.Discount,
		workerConfig.EntropyWeight, workerConfig.ImportanceValueClip,
		workerConfig.ImportancePolicyClip, sol)
	if err != nil {
		return err
	}

	lrn, err := container.NewLearner(impala, links, nbLearnBatch, nbUpdates,
		nil)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for i, w := range workers {
		wg.Add(1)
		go func(i int, w *container.Worker) {
			defer wg.Done()
			if err := w.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "worker %d: %v\n", i, err)
			}
		}(i, w)
	}

	err = lrn.Run()
	wg.Wait()
	return err
}

// chainMaker builds one chain-walk environment instance
func chainMaker(seed uint64) (environment.Environment, error) {
	return chain.New(8, 50, seed)
}

func fatalIf(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
