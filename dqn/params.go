// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dqn

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfiguration matches every *ConfigError via errors.Is.
var ErrConfiguration = errors.New("dqn: configuration error")

// ConfigError reports an out-of-range hyperparameter.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (ce *ConfigError) Error() string {
	return fmt.Sprintf("dqn: invalid %s = %v: %s", ce.Field, ce.Value, ce.Reason)
}

func (ce *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// Variant selects how the bootstrapped next-state value is computed.
type Variant string

const (
	// DQN bootstraps from max_a' Q_target(s', a').
	DQN Variant = "DQN"

	// DoubleDQN selects a* = argmax_a' Q_online(s', a') and
	// bootstraps from Q_target(s', a*).
	DoubleDQN Variant = "DoubleDQN"

	// DuelingDQN is DoubleDQN with an estimator that has a dueling
	// (state value + action advantage) architecture.
	DuelingDQN Variant = "DuelingDQN"
)

// Variants lists all variants, in the order they are typically run.
var Variants = []Variant{DQN, DoubleDQN, DuelingDQN}

// ParseVariant returns the Variant with the given name, case insensitive.
func ParseVariant(s string) (Variant, error) {
	for _, v := range Variants {
		if strings.EqualFold(s, string(v)) {
			return v, nil
		}
	}
	return "", &ConfigError{Field: "Variant", Value: s, Reason: "not one of DQN, DoubleDQN, DuelingDQN"}
}

// IsDouble is true for variants that decouple action selection
// from action evaluation.
func (v Variant) IsDouble() bool {
	return v == DoubleDQN || v == DuelingDQN
}

// SyncMode is how the target estimator is updated from the online one.
type SyncMode string

const (
	// SyncHard overwrites the target with a full copy of the online estimator.
	SyncHard SyncMode = "hard"

	// SyncSoft blends: target = Tau * online + (1 - Tau) * target.
	SyncSoft SyncMode = "soft"
)

// DecayOn is when epsilon is decayed.
type DecayOn string

const (
	// DecayReplay decays epsilon after every replay call.
	DecayReplay DecayOn = "replay"

	// DecayEpisode decays epsilon once at the end of every episode.
	DecayEpisode DecayOn = "episode"
)

// Params are the hyperparameters of the agent and training loop.
type Params struct {

	// which Q-learning variant to use
	Variant Variant `default:"DQN"`

	// number of episodes to train
	Episodes int `default:"20000" min:"1"`

	// maximum steps per episode -- 0 = run until the environment is done
	MaxSteps int `default:"0"`

	// number of transitions per replay batch
	BatchSize int `default:"32" min:"1"`

	// discount factor for future rewards, in (0, 1]
	Gamma float32 `default:"0.95"`

	// initial exploration rate
	EpsilonStart float32 `default:"1"`

	// exploration rate never decays below this
	EpsilonFloor float32 `default:"0.01"`

	// multiplicative decay factor for epsilon, in (0, 1]
	EpsilonDecay float32 `default:"0.995"`

	// when epsilon is decayed: replay or episode
	DecayOn DecayOn `default:"replay"`

	// maximum number of transitions held in replay memory
	MemoryCapacity int `default:"2000" min:"1"`

	// replay every TrainFreq steps once memory holds BatchSize transitions
	TrainFreq int `default:"1" min:"1"`

	// episodes between target estimator syncs -- 0 = no target estimator,
	// bootstrapping uses the online estimator
	TargetSyncInterval int `default:"10"`

	// how the target estimator is synced: hard or soft
	SyncMode SyncMode `default:"hard"`

	// blend rate for soft sync, in (0, 1]
	Tau float32 `default:"0.01"`

	// episodes between checkpoint hook calls -- 0 = only at the end of training
	CheckpointInterval int `default:"10"`

	// random seed for exploration and replay sampling
	Seed int64 `default:"1"`
}

// Defaults sets the default values, matching the default tags.
func (pr *Params) Defaults() {
	pr.Variant = DQN
	pr.Episodes = 20000
	pr.MaxSteps = 0
	pr.BatchSize = 32
	pr.Gamma = 0.95
	pr.EpsilonStart = 1
	pr.EpsilonFloor = 0.01
	pr.EpsilonDecay = 0.995
	pr.DecayOn = DecayReplay
	pr.MemoryCapacity = 2000
	pr.TrainFreq = 1
	pr.TargetSyncInterval = 10
	pr.SyncMode = SyncHard
	pr.Tau = 0.01
	pr.CheckpointInterval = 10
	pr.Seed = 1
}

// Validate returns a *ConfigError for the first out-of-range parameter.
func (pr *Params) Validate() error {
	switch {
	case pr.Variant != DQN && pr.Variant != DoubleDQN && pr.Variant != DuelingDQN:
		return &ConfigError{"Variant", pr.Variant, "not one of DQN, DoubleDQN, DuelingDQN"}
	case pr.Episodes <= 0:
		return &ConfigError{"Episodes", pr.Episodes, "must be positive"}
	case pr.MaxSteps < 0:
		return &ConfigError{"MaxSteps", pr.MaxSteps, "must not be negative"}
	case pr.BatchSize <= 0:
		return &ConfigError{"BatchSize", pr.BatchSize, "must be positive"}
	case !(pr.Gamma > 0 && pr.Gamma <= 1):
		return &ConfigError{"Gamma", pr.Gamma, "must be in (0, 1]"}
	case pr.EpsilonStart < 0 || pr.EpsilonStart > 1:
		return &ConfigError{"EpsilonStart", pr.EpsilonStart, "must be in [0, 1]"}
	case pr.EpsilonFloor < 0 || pr.EpsilonFloor > pr.EpsilonStart:
		return &ConfigError{"EpsilonFloor", pr.EpsilonFloor, "must be in [0, EpsilonStart]"}
	case !(pr.EpsilonDecay > 0 && pr.EpsilonDecay <= 1):
		return &ConfigError{"EpsilonDecay", pr.EpsilonDecay, "must be in (0, 1]"}
	case pr.DecayOn != DecayReplay && pr.DecayOn != DecayEpisode:
		return &ConfigError{"DecayOn", pr.DecayOn, "must be replay or episode"}
	case pr.MemoryCapacity <= 0:
		return &ConfigError{"MemoryCapacity", pr.MemoryCapacity, "must be positive"}
	case pr.MemoryCapacity < pr.BatchSize:
		return &ConfigError{"MemoryCapacity", pr.MemoryCapacity, "must hold at least BatchSize transitions"}
	case pr.TrainFreq <= 0:
		return &ConfigError{"TrainFreq", pr.TrainFreq, "must be positive"}
	case pr.TargetSyncInterval < 0:
		return &ConfigError{"TargetSyncInterval", pr.TargetSyncInterval, "must not be negative"}
	case pr.SyncMode != SyncHard && pr.SyncMode != SyncSoft:
		return &ConfigError{"SyncMode", pr.SyncMode, "must be hard or soft"}
	case pr.SyncMode == SyncSoft && !(pr.Tau > 0 && pr.Tau <= 1):
		return &ConfigError{"Tau", pr.Tau, "must be in (0, 1] for soft sync"}
	case pr.CheckpointInterval < 0:
		return &ConfigError{"CheckpointInterval", pr.CheckpointInterval, "must not be negative"}
	}
	return nil
}
