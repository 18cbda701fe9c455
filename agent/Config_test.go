package agent

import (
	"encoding/json"
	"testing"

	"github.com/samuelfneumann/gorl/initwfn"
	"github.com/samuelfneumann/gorl/network"
	"github.com/samuelfneumann/gorl/rwdnorm"
	"github.com/samuelfneumann/gorl/solver"
)

func TestTypedConfigJSONRoundTrip(t *testing.T) {
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		t.Fatal(err)
	}
	sol, err := solver.NewDefaultAdam(0.001, 1)
	if err != nil {
		t.Fatal(err)
	}

	config := ActorCriticConfig{
		HiddenSizes: []int{32, 16},
		Biases:      []bool{true, false},
		Activations: []*network.Activation{network.ReLU(), network.TanH()},
		InitWFn:     init,
		Solver:      sol,

		RolloutLen:         8,
		Discount:           0.99,
		Tau:                0.95,
		EntropyWeight:      0.01,
		NormalizeAdvantage: true,

		RewardNorm: rwdnorm.Config{Type: rwdnorm.Clip, Min: -1, Max: 1},
	}

	marshalled, err := json.Marshal(NewTypedConfig(config))
	if err != nil {
		t.Fatal(err)
	}

	var decoded TypedConfig
	if err := json.Unmarshal(marshalled, &decoded); err != nil {
		t.Fatal(err)
	}

	if decoded.Type != ActorCriticType {
		t.Errorf("wrong decoded type \n\twant(%v)\n\thave(%v)",
			ActorCriticType, decoded.Type)
	}

	have, ok := decoded.Config.(ActorCriticConfig)
	if !ok {
		t.Fatalf("decoded config has concrete type %T", decoded.Config)
	}

	if len(have.HiddenSizes) != 2 || have.HiddenSizes[0] != 32 {
		t.Errorf("hidden sizes \n\twant(%v)\n\thave(%v)",
			config.HiddenSizes, have.HiddenSizes)
	}
	if have.Activations[1].String() != "tanh" {
		t.Errorf("activations \n\twant(%v)\n\thave(%v)", "tanh",
			have.Activations[1].String())
	}
	if have.Discount != 0.99 || have.Tau != 0.95 || !have.NormalizeAdvantage {
		t.Errorf("scalar fields did not survive the round trip: %+v", have)
	}
	if have.RewardNorm.Type != rwdnorm.Clip || have.RewardNorm.Min != -1 {
		t.Errorf("reward normalizer \n\twant(%v)\n\thave(%v)",
			config.RewardNorm, have.RewardNorm)
	}
	if have.InitWFn == nil || have.Solver == nil {
		t.Error("initializer or solver did not survive the round trip")
	}
	if err := have.Validate(); err != nil {
		t.Errorf("decoded config does not validate: %v", err)
	}
}

func TestTypedConfigRejectsUnknownType(t *testing.T) {
	var decoded TypedConfig
	err := json.Unmarshal([]byte(`{"Type": "NoSuchAgent", "Config": {}}`),
		&decoded)
	if err == nil {
		t.Error("unknown agent type should be rejected")
	}
}

func TestConfigValidation(t *testing.T) {
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		t.Fatal(err)
	}
	sol, err := solver.NewDefaultAdam(0.001, 1)
	if err != nil {
		t.Fatal(err)
	}

	valid := ImpalaConfig{
		HiddenSizes:          []int{16},
		Biases:               []bool{true},
		Activations:          []*network.Activation{network.ReLU()},
		InitWFn:              init,
		Solver:               sol,
		RolloutLen:           4,
		Discount:             0.99,
		ImportanceValueClip:  1,
		ImportancePolicyClip: 1,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	clipped := valid
	clipped.ImportanceValueClip = 0.9
	if err := clipped.Validate(); err == nil {
		t.Error("importance clips != 1 should not validate")
	}

	uneven := valid
	uneven.Biases = []bool{true, false}
	if err := uneven.Validate(); err == nil {
		t.Error("mismatched layer description lengths should not validate")
	}

	actingOnly := valid
	actingOnly.Solver = nil
	actingOnly.ActingOnly = true
	if err := actingOnly.Validate(); err != nil {
		t.Errorf("acting-only config without solver rejected: %v", err)
	}
}
