// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dqn

import (
	"errors"
	"fmt"
)

// tableEst is a tabular estimator keyed by int(state[0]).
// Unknown states predict zeros.
type tableEst struct {
	nact    int
	q       map[int][]float32
	trained int
	lastSt  [][]float32
	lastTg  [][]float32
	dueling bool
}

func newTableEst(nact int) *tableEst {
	return &tableEst{nact: nact, q: map[int][]float32{}}
}

func (te *tableEst) Predict(state []float32) ([]float32, error) {
	if len(state) == 0 {
		return nil, errors.New("empty state")
	}
	out := make([]float32, te.nact)
	if q, ok := te.q[int(state[0])]; ok {
		copy(out, q)
	}
	return out, nil
}

func (te *tableEst) TrainStep(states, targets [][]float32) (float32, error) {
	if len(states) != len(targets) {
		return 0, fmt.Errorf("%d states, %d targets", len(states), len(targets))
	}
	te.trained++
	te.lastSt = states
	te.lastTg = targets
	return 0.5, nil
}

func (te *tableEst) CopyFrom(src Estimator) error {
	se, ok := src.(*tableEst)
	if !ok {
		return fmt.Errorf("cannot copy from %T", src)
	}
	te.q = map[int][]float32{}
	for k, v := range se.q {
		te.q[k] = append([]float32(nil), v...)
	}
	return nil
}

func (te *tableEst) Blend(src Estimator, tau float32) error {
	se, ok := src.(*tableEst)
	if !ok {
		return fmt.Errorf("cannot blend from %T", src)
	}
	for k, sv := range se.q {
		tv, has := te.q[k]
		if !has {
			tv = make([]float32, te.nact)
			te.q[k] = tv
		}
		for i := range tv {
			tv[i] = tau*sv[i] + (1-tau)*tv[i]
		}
	}
	return nil
}

func (te *tableEst) Dueling() bool { return te.dueling }

// predictOnly supports neither copy nor blend.
type predictOnly struct{ te *tableEst }

func (po *predictOnly) Predict(state []float32) ([]float32, error) { return po.te.Predict(state) }

func (po *predictOnly) TrainStep(states, targets [][]float32) (float32, error) {
	return po.te.TrainStep(states, targets)
}

// copyOnly copies but cannot blend.
type copyOnly struct{ predictOnly }

func (co *copyOnly) CopyFrom(src Estimator) error { return co.te.CopyFrom(src) }

// chainEnv walks states 0..n-1 and is done at n-1.
// Reward is 1 for action 1, else 0.
type chainEnv struct {
	n, t   int
	nact   int
	active bool
	resets int
}

func (ce *chainEnv) Reset() []float32 {
	ce.t = 0
	ce.active = true
	ce.resets++
	return []float32{0}
}

func (ce *chainEnv) Step(action int) (Outcome, error) {
	if !ce.active {
		return Outcome{}, ErrInvalidState
	}
	ce.t++
	done := ce.t >= ce.n-1
	if done {
		ce.active = false
	}
	var rew float32
	if action == 1 {
		rew = 1
	}
	return Outcome{State: []float32{float32(ce.t)}, Reward: rew, Done: done, Info: Info{InfoValue: float64(100 + ce.t)}}, nil
}

func (ce *chainEnv) NumActions() int { return ce.nact }

func testParams() Params {
	var pr Params
	pr.Defaults()
	pr.Episodes = 5
	pr.BatchSize = 2
	pr.MemoryCapacity = 50
	pr.TargetSyncInterval = 0
	return pr
}
