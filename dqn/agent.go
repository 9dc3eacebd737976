// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dqn

import (
	"fmt"
	"math/rand"

	"github.com/emer/tradeq/replay"
)

// ErrInsufficientData is returned by Replay when the memory does not yet
// hold a full batch.
var ErrInsufficientData = replay.ErrInsufficientData

// BellmanTarget is the regression target for the value of the action taken:
// reward for a terminal transition, else reward + gamma * next.
func BellmanTarget(reward, gamma float32, done bool, next float32) float32 {
	if done {
		return reward
	}
	return reward + gamma*next
}

// Agent is a Q-learning agent: it owns the exploration policy, the replay
// memory, the online estimator and (optionally) a target estimator.
type Agent struct {

	// hyperparameters -- do not change after NewAgent
	Params Params

	// number of discrete actions
	NActions int

	// estimator being trained, also used for action selection
	Online Estimator

	// slowly updated estimator used to evaluate next states -- nil if
	// Params.TargetSyncInterval == 0
	Target Estimator

	// epsilon-greedy exploration
	Policy *Policy

	// experience replay memory
	Memory *replay.Memory

	// number of replay calls so far
	Replays int

	// number of target syncs so far
	Syncs int
}

// NewAgent validates params and returns an agent with a fresh memory.
// target must be non-nil iff params.TargetSyncInterval > 0, and must support
// the configured SyncMode (Copier for hard, Blender for soft).
// The DuelingDQN variant requires an online estimator that is a Dueler.
func NewAgent(params Params, nActions int, online, target Estimator) (*Agent, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if nActions <= 0 {
		return nil, &ConfigError{"NActions", nActions, "must be positive"}
	}
	if online == nil {
		return nil, &ConfigError{"Online", nil, "an online estimator is required"}
	}
	if params.Variant == DuelingDQN {
		if du, ok := online.(Dueler); !ok || !du.Dueling() {
			return nil, &ConfigError{"Variant", params.Variant, "requires an estimator with a dueling architecture"}
		}
	}
	switch {
	case params.TargetSyncInterval == 0 && target != nil:
		return nil, &ConfigError{"TargetSyncInterval", 0, "a target estimator was given but would never be synced"}
	case params.TargetSyncInterval > 0 && target == nil:
		return nil, &ConfigError{"TargetSyncInterval", params.TargetSyncInterval, "requires a target estimator"}
	case target != nil && params.SyncMode == SyncHard:
		if _, ok := target.(Copier); !ok {
			return nil, &ConfigError{"SyncMode", params.SyncMode, fmt.Sprintf("target estimator %T cannot copy", target)}
		}
	case target != nil && params.SyncMode == SyncSoft:
		if _, ok := target.(Blender); !ok {
			return nil, &ConfigError{"SyncMode", params.SyncMode, fmt.Sprintf("target estimator %T cannot blend", target)}
		}
	}
	rnd := rand.New(rand.NewSource(params.Seed))
	mem, err := replay.New(params.MemoryCapacity, rand.New(rand.NewSource(rnd.Int63())))
	if err != nil {
		return nil, &ConfigError{"MemoryCapacity", params.MemoryCapacity, err.Error()}
	}
	ag := &Agent{
		Params:   params,
		NActions: nActions,
		Online:   online,
		Target:   target,
		Policy:   NewPolicy(params.EpsilonStart, params.EpsilonFloor, params.EpsilonDecay, rnd),
		Memory:   mem,
	}
	if err := ag.initTarget(); err != nil {
		return nil, err
	}
	return ag, nil
}

// Act selects an action for state: with probability epsilon uniformly
// at random, otherwise the greedy action.
func (ag *Agent) Act(state []float32) (int, error) {
	if ag.Policy.Explore() {
		return ag.Policy.RandomAction(ag.NActions), nil
	}
	return ag.Greedy(state)
}

// Greedy returns the action with the highest online estimate for state.
func (ag *Agent) Greedy(state []float32) (int, error) {
	q, err := ag.predict(ag.Online, state)
	if err != nil {
		return -1, err
	}
	return Argmax(q), nil
}

// Remember stores a transition in replay memory.
func (ag *Agent) Remember(tr replay.Transition) {
	ag.Memory.Push(tr)
}

// Replay samples batchSize transitions, computes their Bellman targets
// and performs one training step on the online estimator, returning the loss.
// Returns ErrInsufficientData (without training or decaying) if memory holds
// fewer than batchSize transitions.
func (ag *Agent) Replay(batchSize int) (float32, error) {
	batch, err := ag.Memory.Sample(batchSize)
	if err != nil {
		return 0, err
	}
	states := make([][]float32, len(batch))
	targets := make([][]float32, len(batch))
	for i, tr := range batch {
		if tr.Action < 0 || tr.Action >= ag.NActions {
			return 0, fmt.Errorf("dqn: transition action %d out of range [0, %d)", tr.Action, ag.NActions)
		}
		q, err := ag.predict(ag.Online, tr.State)
		if err != nil {
			return 0, err
		}
		var next float32
		if !tr.Done {
			next, err = ag.NextValue(tr.NextState)
			if err != nil {
				return 0, err
			}
		}
		tq := make([]float32, len(q))
		copy(tq, q)
		tq[tr.Action] = BellmanTarget(tr.Reward, ag.Params.Gamma, tr.Done, next)
		states[i] = tr.State
		targets[i] = tq
	}
	loss, err := ag.Online.TrainStep(states, targets)
	if err != nil {
		return 0, fmt.Errorf("dqn: train step: %w", err)
	}
	ag.Replays++
	if ag.Params.DecayOn == DecayReplay {
		ag.Policy.Decay()
	}
	return loss, nil
}

// NextValue is the bootstrapped value of next state, per Variant.
// DQN uses max_a' Q_boot(s', a').  The double variants evaluate
// the online argmax with Q_boot.  Q_boot is the target estimator
// if there is one, else the online estimator.
func (ag *Agent) NextValue(next []float32) (float32, error) {
	boot := ag.Target
	if boot == nil {
		boot = ag.Online
	}
	qb, err := ag.predict(boot, next)
	if err != nil {
		return 0, err
	}
	if !ag.Params.Variant.IsDouble() {
		return qb[Argmax(qb)], nil
	}
	qo, err := ag.predict(ag.Online, next)
	if err != nil {
		return 0, err
	}
	return qb[Argmax(qo)], nil
}

// EndEpisode is called after each completed episode (0-based index):
// decays epsilon if DecayOn == DecayEpisode, and syncs the target
// estimator every TargetSyncInterval episodes.
func (ag *Agent) EndEpisode(episode int) error {
	if ag.Params.DecayOn == DecayEpisode {
		ag.Policy.Decay()
	}
	iv := ag.Params.TargetSyncInterval
	if ag.Target == nil || iv <= 0 || (episode+1)%iv != 0 {
		return nil
	}
	return ag.Sync()
}

// Sync updates the target estimator from the online one, per SyncMode.
// Nothing is done if there is no target estimator.
func (ag *Agent) Sync() error {
	if ag.Target == nil {
		return nil
	}
	var err error
	switch ag.Params.SyncMode {
	case SyncSoft:
		bl, ok := ag.Target.(Blender)
		if !ok {
			return &ConfigError{Field: "SyncMode", Value: ag.Params.SyncMode, Reason: fmt.Sprintf("target estimator %T cannot blend", ag.Target)}
		}
		err = bl.Blend(ag.Online, ag.Params.Tau)
	default:
		cp, ok := ag.Target.(Copier)
		if !ok {
			return &ConfigError{Field: "SyncMode", Value: ag.Params.SyncMode, Reason: fmt.Sprintf("target estimator %T cannot copy", ag.Target)}
		}
		err = cp.CopyFrom(ag.Online)
	}
	if err != nil {
		return fmt.Errorf("dqn: %s target sync: %w", ag.Params.SyncMode, err)
	}
	ag.Syncs++
	return nil
}

// initTarget starts the target as an exact copy of the online estimator,
// also in soft mode (a blend with tau = 1 is a copy).
func (ag *Agent) initTarget() error {
	if ag.Target == nil {
		return nil
	}
	var err error
	if cp, ok := ag.Target.(Copier); ok {
		err = cp.CopyFrom(ag.Online)
	} else if bl, ok := ag.Target.(Blender); ok {
		err = bl.Blend(ag.Online, 1)
	} else {
		return &ConfigError{Field: "Target", Value: fmt.Sprintf("%T", ag.Target), Reason: "target estimator can neither copy nor blend"}
	}
	if err != nil {
		return fmt.Errorf("dqn: init target: %w", err)
	}
	return nil
}

func (ag *Agent) predict(est Estimator, state []float32) ([]float32, error) {
	q, err := est.Predict(state)
	if err != nil {
		return nil, fmt.Errorf("dqn: predict: %w", err)
	}
	if len(q) != ag.NActions {
		return nil, fmt.Errorf("dqn: estimator returned %d values for %d actions", len(q), ag.NActions)
	}
	return q, nil
}
