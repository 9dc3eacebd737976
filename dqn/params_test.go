// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dqn

import (
	"errors"
	"math/rand"
	"testing"
)

func TestDefaultsValid(t *testing.T) {
	var pr Params
	pr.Defaults()
	if err := pr.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		field string
		mod   func(pr *Params)
	}{
		{"Variant", func(pr *Params) { pr.Variant = "A3C" }},
		{"Episodes", func(pr *Params) { pr.Episodes = 0 }},
		{"BatchSize", func(pr *Params) { pr.BatchSize = 0 }},
		{"Gamma", func(pr *Params) { pr.Gamma = 0 }},
		{"Gamma", func(pr *Params) { pr.Gamma = 1.5 }},
		{"EpsilonStart", func(pr *Params) { pr.EpsilonStart = 2 }},
		{"EpsilonFloor", func(pr *Params) { pr.EpsilonFloor = -0.1 }},
		{"EpsilonDecay", func(pr *Params) { pr.EpsilonDecay = 0 }},
		{"DecayOn", func(pr *Params) { pr.DecayOn = "step" }},
		{"MemoryCapacity", func(pr *Params) { pr.MemoryCapacity = 0 }},
		{"MemoryCapacity", func(pr *Params) { pr.MemoryCapacity = 8; pr.BatchSize = 16 }},
		{"TrainFreq", func(pr *Params) { pr.TrainFreq = 0 }},
		{"TargetSyncInterval", func(pr *Params) { pr.TargetSyncInterval = -1 }},
		{"SyncMode", func(pr *Params) { pr.SyncMode = "lazy" }},
		{"Tau", func(pr *Params) { pr.SyncMode = SyncSoft; pr.Tau = 0 }},
		{"CheckpointInterval", func(pr *Params) { pr.CheckpointInterval = -2 }},
	}
	for i, c := range cases {
		var pr Params
		pr.Defaults()
		c.mod(&pr)
		err := pr.Validate()
		if !errors.Is(err, ErrConfiguration) {
			t.Errorf("case %d: expected configuration error, got: %v", i, err)
			continue
		}
		var ce *ConfigError
		if !errors.As(err, &ce) || ce.Field != c.field {
			t.Errorf("case %d: field: %v, expected: %s", i, err, c.field)
		}
	}
}

func TestParseVariant(t *testing.T) {
	for _, v := range Variants {
		pv, err := ParseVariant(string(v))
		if err != nil || pv != v {
			t.Errorf("parse %s: %v %v", v, pv, err)
		}
	}
	if v, _ := ParseVariant("doubledqn"); v != DoubleDQN {
		t.Errorf("case insensitive parse: %v", v)
	}
	if _, err := ParseVariant("SARSA"); !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected configuration error, got: %v", err)
	}
	if DQN.IsDouble() || !DoubleDQN.IsDouble() || !DuelingDQN.IsDouble() {
		t.Errorf("IsDouble wrong")
	}
}

func TestPolicyDecayFloor(t *testing.T) {
	pl := NewPolicy(1, 0.01, 0.5, rand.New(rand.NewSource(1)))
	pl.Decay()
	if pl.Epsilon != 0.5 {
		t.Errorf("epsilon: %v, expected: 0.5", pl.Epsilon)
	}
	for i := 0; i < 100; i++ {
		pl.Decay()
		if pl.Epsilon < pl.Floor {
			t.Fatalf("epsilon %v below floor %v", pl.Epsilon, pl.Floor)
		}
	}
	if pl.Epsilon != 0.01 {
		t.Errorf("epsilon: %v, expected floor 0.01", pl.Epsilon)
	}
}

func TestPolicyExplore(t *testing.T) {
	pl := NewPolicy(0, 0, 1, rand.New(rand.NewSource(1)))
	for i := 0; i < 100; i++ {
		if pl.Explore() {
			t.Fatalf("explored with epsilon 0")
		}
	}
	pl.Epsilon = 1
	for i := 0; i < 100; i++ {
		if !pl.Explore() {
			t.Fatalf("did not explore with epsilon 1")
		}
		if a := pl.RandomAction(3); a < 0 || a > 2 {
			t.Fatalf("random action out of range: %d", a)
		}
	}
}

func TestArgmax(t *testing.T) {
	cases := []struct {
		q   []float32
		exp int
	}{
		{[]float32{0.1, 0.9, 0.3}, 1},
		{[]float32{2, 2, 1}, 0},
		{[]float32{-3, -1, -2}, 1},
		{nil, -1},
	}
	for i, c := range cases {
		if a := Argmax(c.q); a != c.exp {
			t.Errorf("idx: %d  argmax: %d  expected: %d", i, a, c.exp)
		}
	}
}
