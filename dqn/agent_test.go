// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dqn

import (
	"errors"
	"testing"

	"github.com/emer/tradeq/replay"
	"github.com/goki/mat32"
)

// difTol is the numerical difference tolerance for comparing vs. target values
const difTol = float32(1.0e-6)

func TestBellmanTarget(t *testing.T) {
	if v := BellmanTarget(1, 0.95, true, 100); v != 1 {
		t.Errorf("terminal target: %v, expected: 1", v)
	}
	if v := BellmanTarget(1, 0.5, false, 4); mat32.Abs(v-3) > difTol {
		t.Errorf("target: %v, expected: 3", v)
	}
}

func TestActGreedy(t *testing.T) {
	pr := testParams()
	pr.EpsilonStart = 0
	pr.EpsilonFloor = 0
	on := newTableEst(3)
	on.q[0] = []float32{0.1, 0.9, 0.3}
	ag, err := NewAgent(pr, 3, on, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		a, err := ag.Act([]float32{0})
		if err != nil {
			t.Fatal(err)
		}
		if a != 1 {
			t.Fatalf("action: %d, expected: 1", a)
		}
	}
}

func TestActExplores(t *testing.T) {
	pr := testParams()
	on := newTableEst(3)
	on.q[0] = []float32{0.1, 0.9, 0.3}
	ag, err := NewAgent(pr, 3, on, nil)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		a, _ := ag.Act([]float32{0})
		seen[a] = true
	}
	if len(seen) != 3 {
		t.Errorf("epsilon 1 should try all actions, saw: %v", seen)
	}
}

func TestNewAgentConfig(t *testing.T) {
	pr := testParams()
	if _, err := NewAgent(pr, 0, newTableEst(2), nil); !errors.Is(err, ErrConfiguration) {
		t.Errorf("zero actions: %v", err)
	}
	if _, err := NewAgent(pr, 2, newTableEst(2), newTableEst(2)); !errors.Is(err, ErrConfiguration) {
		t.Errorf("unused target: %v", err)
	}
	pr.TargetSyncInterval = 5
	if _, err := NewAgent(pr, 2, newTableEst(2), nil); !errors.Is(err, ErrConfiguration) {
		t.Errorf("missing target: %v", err)
	}
	if _, err := NewAgent(pr, 2, newTableEst(2), &predictOnly{newTableEst(2)}); !errors.Is(err, ErrConfiguration) {
		t.Errorf("target cannot copy: %v", err)
	}
	pr.TargetSyncInterval = 0
	pr.Variant = DuelingDQN
	if _, err := NewAgent(pr, 2, newTableEst(2), nil); !errors.Is(err, ErrConfiguration) {
		t.Errorf("dueling without dueling estimator: %v", err)
	}
	du := newTableEst(2)
	du.dueling = true
	if _, err := NewAgent(pr, 2, du, nil); err != nil {
		t.Errorf("dueling estimator rejected: %v", err)
	}
}

func TestNewAgentCopiesTarget(t *testing.T) {
	pr := testParams()
	pr.TargetSyncInterval = 3
	on := newTableEst(2)
	on.q[0] = []float32{1, 2}
	tg := newTableEst(2)
	if _, err := NewAgent(pr, 2, on, tg); err != nil {
		t.Fatal(err)
	}
	q, _ := tg.Predict([]float32{0})
	if q[0] != 1 || q[1] != 2 {
		t.Errorf("target not initialized from online: %v", q)
	}
}

func TestNextValueVariants(t *testing.T) {
	for _, v := range Variants {
		pr := testParams()
		pr.Variant = v
		pr.TargetSyncInterval = 10
		on := newTableEst(3)
		on.dueling = v == DuelingDQN
		tg := newTableEst(3)
		ag, err := NewAgent(pr, 3, on, tg)
		if err != nil {
			t.Fatal(err)
		}
		on.q[5] = []float32{1, 0, 0}
		tg.q[5] = []float32{0.2, 3, 0}
		nv, err := ag.NextValue([]float32{5})
		if err != nil {
			t.Fatal(err)
		}
		// double and dueling pick the action with the online estimator
		exp := float32(3)
		if v != DQN {
			exp = 0.2
		}
		if mat32.Abs(nv-exp) > difTol {
			t.Errorf("%s next value: %v, expected: %v", v, nv, exp)
		}
	}
}

func TestReplayTargets(t *testing.T) {
	pr := testParams()
	pr.BatchSize = 1
	pr.Gamma = 0.5
	pr.EpsilonDecay = 0.5
	on := newTableEst(2)
	on.q[0] = []float32{0.5, 0.5}
	on.q[1] = []float32{2, 4}
	ag, err := NewAgent(pr, 2, on, nil)
	if err != nil {
		t.Fatal(err)
	}
	ag.Remember(replay.Transition{State: []float32{0}, Action: 1, Reward: 1, NextState: []float32{1}})
	loss, err := ag.Replay(1)
	if err != nil {
		t.Fatal(err)
	}
	if loss != 0.5 || on.trained != 1 || ag.Replays != 1 {
		t.Errorf("loss: %v  trained: %d  replays: %d", loss, on.trained, ag.Replays)
	}
	exp := []float32{0.5, 3}
	for i, v := range on.lastTg[0] {
		if mat32.Abs(v-exp[i]) > difTol {
			t.Errorf("idx: %d  target: %v  expected: %v", i, v, exp[i])
		}
	}
	if ag.Policy.Epsilon != 0.5 {
		t.Errorf("epsilon not decayed after replay: %v", ag.Policy.Epsilon)
	}

	// terminal transition ignores the next state
	ag.Memory.Reset()
	ag.Remember(replay.Transition{State: []float32{0}, Action: 0, Reward: -1, NextState: []float32{1}, Done: true})
	if _, err := ag.Replay(1); err != nil {
		t.Fatal(err)
	}
	if on.lastTg[0][0] != -1 || on.lastTg[0][1] != 0.5 {
		t.Errorf("terminal targets: %v", on.lastTg[0])
	}
}

func TestReplayInsufficient(t *testing.T) {
	pr := testParams()
	pr.BatchSize = 4
	on := newTableEst(2)
	ag, err := NewAgent(pr, 2, on, nil)
	if err != nil {
		t.Fatal(err)
	}
	ag.Remember(replay.Transition{State: []float32{0}, NextState: []float32{1}})
	_, err = ag.Replay(4)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("expected insufficient data, got: %v", err)
	}
	if on.trained != 0 || ag.Policy.Epsilon != 1 || ag.Replays != 0 {
		t.Errorf("failed replay changed state: trained %d eps %v", on.trained, ag.Policy.Epsilon)
	}
}

func TestHardSyncCadence(t *testing.T) {
	pr := testParams()
	pr.TargetSyncInterval = 2
	on := newTableEst(2)
	tg := newTableEst(2)
	ag, err := NewAgent(pr, 2, on, tg)
	if err != nil {
		t.Fatal(err)
	}
	on.q[0] = []float32{7, 8}
	ag.EndEpisode(0)
	if ag.Syncs != 0 {
		t.Errorf("synced after first episode")
	}
	if q, _ := tg.Predict([]float32{0}); q[0] != 0 {
		t.Errorf("target changed before sync: %v", q)
	}
	ag.EndEpisode(1)
	if ag.Syncs != 1 {
		t.Errorf("syncs: %d, expected: 1", ag.Syncs)
	}
	if q, _ := tg.Predict([]float32{0}); q[0] != 7 || q[1] != 8 {
		t.Errorf("target not copied: %v", q)
	}
}

func TestSyncModeChanged(t *testing.T) {
	pr := testParams()
	pr.TargetSyncInterval = 1
	on := newTableEst(2)
	on.q[0] = []float32{1, 2}
	tg := &copyOnly{predictOnly{newTableEst(2)}}
	ag, err := NewAgent(pr, 2, on, tg)
	if err != nil {
		t.Fatal(err)
	}
	ag.Params.SyncMode = SyncSoft
	if err := ag.Sync(); !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected config error for soft sync of copy-only target, got: %v", err)
	}
	if err := ag.EndEpisode(0); !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected config error at episode end, got: %v", err)
	}
	if ag.Syncs != 0 {
		t.Errorf("syncs: %d, expected 0", ag.Syncs)
	}
	ag.Params.SyncMode = SyncHard
	if err := ag.Sync(); err != nil {
		t.Fatal(err)
	}
	if ag.Syncs != 1 {
		t.Errorf("syncs: %d, expected 1", ag.Syncs)
	}
}

func TestSoftSync(t *testing.T) {
	pr := testParams()
	pr.TargetSyncInterval = 1
	pr.SyncMode = SyncSoft
	pr.Tau = 0.5
	pr.DecayOn = DecayEpisode
	pr.EpsilonDecay = 0.5
	on := newTableEst(2)
	tg := newTableEst(2)
	ag, err := NewAgent(pr, 2, on, tg)
	if err != nil {
		t.Fatal(err)
	}
	on.q[0] = []float32{2, 4}
	if err := ag.EndEpisode(0); err != nil {
		t.Fatal(err)
	}
	q, _ := tg.Predict([]float32{0})
	if mat32.Abs(q[0]-1) > difTol || mat32.Abs(q[1]-2) > difTol {
		t.Errorf("soft sync: %v, expected: [1 2]", q)
	}
	if ag.Policy.Epsilon != 0.5 {
		t.Errorf("epsilon not decayed at episode end: %v", ag.Policy.Epsilon)
	}
}
