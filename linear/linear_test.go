// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linear

import (
	"bytes"
	"errors"
	"testing"

	"github.com/emer/tradeq/dqn"
	"github.com/goki/mat32"
	"gonum.org/v1/gonum/mat"
)

// difTol is the numerical difference tolerance for comparing vs. target values
const difTol = float32(1.0e-5)

func newNet(t *testing.T, dueling bool, seed int64) *Net {
	t.Helper()
	var par Params
	par.Defaults()
	par.LearnRate = 0.05
	par.InitScale = 0.5
	par.Dueling = dueling
	par.Seed = seed
	nt, err := New(3, 2, par)
	if err != nil {
		t.Fatal(err)
	}
	return nt
}

func cmpSlice(t *testing.T, nm string, vals, trg []float32) {
	t.Helper()
	if len(vals) != len(trg) {
		t.Fatalf("%s: len %d, expected %d", nm, len(vals), len(trg))
	}
	for i := range vals {
		if mat32.Abs(vals[i]-trg[i]) > difTol {
			t.Errorf("%s idx: %d  val: %g  trg: %g", nm, i, vals[i], trg[i])
		}
	}
}

func TestNewConfig(t *testing.T) {
	var par Params
	par.Defaults()
	if _, err := New(0, 3, par); !errors.Is(err, dqn.ErrConfiguration) {
		t.Errorf("zero obs: %v", err)
	}
	par.LearnRate = 0
	if _, err := New(2, 3, par); !errors.Is(err, dqn.ErrConfiguration) {
		t.Errorf("zero learning rate: %v", err)
	}
}

func TestPredictShape(t *testing.T) {
	nt := newNet(t, false, 1)
	q, err := nt.Predict([]float32{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(q) != 2 {
		t.Errorf("values: %d, expected 2", len(q))
	}
	if _, err := nt.Predict([]float32{1}); !errors.Is(err, ErrShape) {
		t.Errorf("expected shape error, got: %v", err)
	}
	if _, err := nt.TrainStep([][]float32{{1, 2, 3}}, [][]float32{{1}}); !errors.Is(err, ErrShape) {
		t.Errorf("expected target shape error, got: %v", err)
	}
}

func TestTrainReducesLoss(t *testing.T) {
	for _, dueling := range []bool{false, true} {
		nt := newNet(t, dueling, 2)
		states := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
		targets := [][]float32{{1, -1}, {0.5, 0}, {-1, 2}}
		first, err := nt.TrainStep(states, targets)
		if err != nil {
			t.Fatal(err)
		}
		var last float32
		for i := 0; i < 500; i++ {
			last, err = nt.TrainStep(states, targets)
			if err != nil {
				t.Fatal(err)
			}
		}
		if !(last < first/10) {
			t.Errorf("dueling %v: loss %g did not drop from %g", dueling, last, first)
		}
	}
}

func TestDuelingMeanIsValue(t *testing.T) {
	nt := newNet(t, true, 3)
	st := []float32{0.3, -1, 2}
	q, err := nt.Predict(st)
	if err != nil {
		t.Fatal(err)
	}
	x := mat.NewVecDense(4, []float64{0.3, -1, 2, 1})
	v := float32(mat.Dot(nt.Val, x))
	mn := (q[0] + q[1]) / 2
	if mat32.Abs(mn-v) > difTol {
		t.Errorf("mean q: %g, state value: %g", mn, v)
	}
	if !nt.Dueling() || newNet(t, false, 3).Dueling() {
		t.Errorf("Dueling() wrong")
	}
}

func TestCopyBlend(t *testing.T) {
	for _, dueling := range []bool{false, true} {
		st := []float32{1, 2, -1}
		a := newNet(t, dueling, 4)
		b := newNet(t, dueling, 5)
		qa, _ := a.Predict(st)
		qb, _ := b.Predict(st)

		if err := b.Blend(a, 0.5); err != nil {
			t.Fatal(err)
		}
		qm, _ := b.Predict(st)
		cmpSlice(t, "blend", qm, []float32{(qa[0] + qb[0]) / 2, (qa[1] + qb[1]) / 2})

		if err := b.CopyFrom(a); err != nil {
			t.Fatal(err)
		}
		qc, _ := b.Predict(st)
		cmpSlice(t, "copy", qc, qa)
	}
	if err := newNet(t, false, 1).CopyFrom(newNet(t, true, 1)); !errors.Is(err, ErrShape) {
		t.Errorf("copy across head types: %v", err)
	}
}

func TestWeightsRoundTrip(t *testing.T) {
	for _, dueling := range []bool{false, true} {
		st := []float32{0.5, 0.25, -2}
		a := newNet(t, dueling, 6)
		var buf bytes.Buffer
		if err := a.WriteWeights(&buf); err != nil {
			t.Fatal(err)
		}
		b := newNet(t, dueling, 7)
		if err := b.ReadWeights(&buf); err != nil {
			t.Fatal(err)
		}
		qa, _ := a.Predict(st)
		qb, _ := b.Predict(st)
		cmpSlice(t, "read weights", qb, qa)
	}
	var buf bytes.Buffer
	newNet(t, true, 1).WriteWeights(&buf)
	if err := newNet(t, false, 1).ReadWeights(&buf); !errors.Is(err, ErrShape) {
		t.Errorf("read dueling weights into plain net: %v", err)
	}
}

func TestAgentWithLinear(t *testing.T) {
	var pr dqn.Params
	pr.Defaults()
	pr.Variant = dqn.DuelingDQN
	pr.BatchSize = 4
	pr.MemoryCapacity = 16
	pr.TargetSyncInterval = 1
	pr.SyncMode = dqn.SyncSoft
	pr.Tau = 0.1
	on := newNet(t, true, 8)
	tg := newNet(t, true, 9)
	if _, err := dqn.NewAgent(pr, 2, on, tg); err != nil {
		t.Fatal(err)
	}
	st := []float32{1, 1, 1}
	qo, _ := on.Predict(st)
	qt, _ := tg.Predict(st)
	cmpSlice(t, "target init", qt, qo)
}
