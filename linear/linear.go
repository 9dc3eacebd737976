// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package linear is a linear action value estimator trained by stochastic
gradient descent on mean squared error, with an optional dueling head
that decomposes values into a state value and mean-centered action
advantages:

	Q(s, a) = V(s) + A(s, a) - mean_a' A(s, a')

It implements all of the optional dqn estimator interfaces, and is
fully deterministic given Params.Seed.
*/
package linear

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"

	"github.com/emer/tradeq/dqn"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrShape is returned for mismatched state, target or weight dimensions.
var ErrShape = errors.New("linear: shape mismatch")

// Params are the estimator parameters.
type Params struct {

	// learning rate for gradient descent
	LearnRate float32 `default:"0.001"`

	// use a dueling (value + advantage) head
	Dueling bool `default:"false"`

	// standard deviation of initial random weights -- biases start at 0
	InitScale float32 `default:"0.01"`

	// random seed for initial weights
	Seed int64 `default:"1"`
}

// Defaults sets the default values.
func (pr *Params) Defaults() {
	pr.LearnRate = 0.001
	pr.Dueling = false
	pr.InitScale = 0.01
	pr.Seed = 1
}

// Net is a linear estimator.  All weight matrices have a final bias column.
type Net struct {
	Params Params

	// number of observation inputs
	NObs int

	// number of actions
	NActions int

	// action values, NActions x NObs+1 -- nil if dueling
	Q *mat.Dense

	// state value, NObs+1 -- nil if not dueling
	Val *mat.VecDense

	// action advantages, NActions x NObs+1 -- nil if not dueling
	Adv *mat.Dense
}

// New returns a randomly initialized estimator.
func New(nObs, nActions int, par Params) (*Net, error) {
	if nObs <= 0 || nActions <= 0 {
		return nil, &dqn.ConfigError{Field: "shape", Value: [2]int{nObs, nActions}, Reason: "observations and actions must be positive"}
	}
	if par.LearnRate <= 0 {
		return nil, &dqn.ConfigError{Field: "LearnRate", Value: par.LearnRate, Reason: "must be positive"}
	}
	nt := &Net{Params: par, NObs: nObs, NActions: nActions}
	rnd := rand.New(rand.NewSource(par.Seed))
	nin := nObs + 1
	initW := func(nr int) []float64 {
		w := make([]float64, nr*nin)
		for r := 0; r < nr; r++ {
			for c := 0; c < nObs; c++ {
				w[r*nin+c] = rnd.NormFloat64() * float64(par.InitScale)
			}
		}
		return w
	}
	if par.Dueling {
		nt.Val = mat.NewVecDense(nin, initW(1))
		nt.Adv = mat.NewDense(nActions, nin, initW(nActions))
	} else {
		nt.Q = mat.NewDense(nActions, nin, initW(nActions))
	}
	return nt, nil
}

// Dueling reports whether the estimator has a dueling head.
func (nt *Net) Dueling() bool { return nt.Params.Dueling }

// input returns state with the bias input appended.
func (nt *Net) input(state []float32) (*mat.VecDense, error) {
	if len(state) != nt.NObs {
		return nil, fmt.Errorf("state has %d values, expected %d: %w", len(state), nt.NObs, ErrShape)
	}
	x := make([]float64, nt.NObs+1)
	for i, v := range state {
		x[i] = float64(v)
	}
	x[nt.NObs] = 1
	return mat.NewVecDense(len(x), x), nil
}

func (nt *Net) forward(x *mat.VecDense) []float64 {
	q := mat.NewVecDense(nt.NActions, nil)
	if !nt.Params.Dueling {
		q.MulVec(nt.Q, x)
		return q.RawVector().Data
	}
	q.MulVec(nt.Adv, x)
	qd := q.RawVector().Data
	v := mat.Dot(nt.Val, x)
	mn := floats.Sum(qd) / float64(nt.NActions)
	floats.AddConst(v-mn, qd)
	return qd
}

// Predict returns the value of each action in state.
func (nt *Net) Predict(state []float32) ([]float32, error) {
	x, err := nt.input(state)
	if err != nil {
		return nil, err
	}
	q := nt.forward(x)
	out := make([]float32, len(q))
	for i, v := range q {
		out[i] = float32(v)
	}
	return out, nil
}

// TrainStep does one gradient descent step on the mean squared error
// over all states and actions, returning the loss before the step.
func (nt *Net) TrainStep(states, targets [][]float32) (float32, error) {
	if len(states) == 0 || len(states) != len(targets) {
		return 0, fmt.Errorf("%d states and %d targets: %w", len(states), len(targets), ErrShape)
	}
	nin := nt.NObs + 1
	var dQ, dAdv *mat.Dense
	var dVal *mat.VecDense
	if nt.Params.Dueling {
		dVal = mat.NewVecDense(nin, nil)
		dAdv = mat.NewDense(nt.NActions, nin, nil)
	} else {
		dQ = mat.NewDense(nt.NActions, nin, nil)
	}
	errv := mat.NewVecDense(nt.NActions, nil)
	var sse float64
	for i, st := range states {
		x, err := nt.input(st)
		if err != nil {
			return 0, err
		}
		if len(targets[i]) != nt.NActions {
			return 0, fmt.Errorf("target %d has %d values, expected %d: %w", i, len(targets[i]), nt.NActions, ErrShape)
		}
		q := nt.forward(x)
		for a, qv := range q {
			e := qv - float64(targets[i][a])
			errv.SetVec(a, e)
			sse += e * e
		}
		if !nt.Params.Dueling {
			dQ.RankOne(dQ, 1, errv, x)
			continue
		}
		ed := errv.RawVector().Data
		dVal.AddScaledVec(dVal, floats.Sum(ed), x)
		floats.AddConst(-floats.Sum(ed)/float64(nt.NActions), ed)
		dAdv.RankOne(dAdv, 1, errv, x)
	}
	n := float64(len(states) * nt.NActions)
	lr := -2 * float64(nt.Params.LearnRate) / n
	if nt.Params.Dueling {
		nt.Val.AddScaledVec(nt.Val, lr, dVal)
		dAdv.Scale(lr, dAdv)
		nt.Adv.Add(nt.Adv, dAdv)
	} else {
		dQ.Scale(lr, dQ)
		nt.Q.Add(nt.Q, dQ)
	}
	return float32(sse / n), nil
}

func (nt *Net) same(src dqn.Estimator) (*Net, error) {
	sn, ok := src.(*Net)
	if !ok {
		return nil, fmt.Errorf("source is %T, not *linear.Net: %w", src, ErrShape)
	}
	if sn.NObs != nt.NObs || sn.NActions != nt.NActions || sn.Params.Dueling != nt.Params.Dueling {
		return nil, fmt.Errorf("source %dx%d dueling %v, dest %dx%d dueling %v: %w",
			sn.NObs, sn.NActions, sn.Params.Dueling, nt.NObs, nt.NActions, nt.Params.Dueling, ErrShape)
	}
	return sn, nil
}

// CopyFrom sets the weights to those of src, which must be a *Net of
// the same shape.
func (nt *Net) CopyFrom(src dqn.Estimator) error {
	sn, err := nt.same(src)
	if err != nil {
		return err
	}
	if nt.Params.Dueling {
		nt.Val.CopyVec(sn.Val)
		nt.Adv.Copy(sn.Adv)
	} else {
		nt.Q.Copy(sn.Q)
	}
	return nil
}

// Blend moves the weights toward those of src: w = tau * src + (1 - tau) * w.
func (nt *Net) Blend(src dqn.Estimator, tau float32) error {
	sn, err := nt.same(src)
	if err != nil {
		return err
	}
	t := float64(tau)
	if nt.Params.Dueling {
		nt.Val.ScaleVec(1-t, nt.Val)
		nt.Val.AddScaledVec(nt.Val, t, sn.Val)
		blendDense(nt.Adv, sn.Adv, t)
	} else {
		blendDense(nt.Q, sn.Q, t)
	}
	return nil
}

func blendDense(dst, src *mat.Dense, tau float64) {
	var s mat.Dense
	s.Scale(tau, src)
	dst.Scale(1-tau, dst)
	dst.Add(dst, &s)
}

// weightsJSON is the saved weights format.
type weightsJSON struct {
	NObs     int
	NActions int
	Dueling  bool
	Q        []float64 `json:",omitempty"`
	Val      []float64 `json:",omitempty"`
	Adv      []float64 `json:",omitempty"`
}

// WriteWeights writes the weights as JSON.
func (nt *Net) WriteWeights(w io.Writer) error {
	wj := weightsJSON{NObs: nt.NObs, NActions: nt.NActions, Dueling: nt.Params.Dueling}
	if nt.Params.Dueling {
		wj.Val = nt.Val.RawVector().Data
		wj.Adv = nt.Adv.RawMatrix().Data
	} else {
		wj.Q = nt.Q.RawMatrix().Data
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(&wj)
}

// ReadWeights reads weights written by WriteWeights, which must have
// the same shape.
func (nt *Net) ReadWeights(r io.Reader) error {
	var wj weightsJSON
	if err := json.NewDecoder(r).Decode(&wj); err != nil {
		return err
	}
	if wj.NObs != nt.NObs || wj.NActions != nt.NActions || wj.Dueling != nt.Params.Dueling {
		return fmt.Errorf("weights %dx%d dueling %v: %w", wj.NObs, wj.NActions, wj.Dueling, ErrShape)
	}
	nin := nt.NObs + 1
	if nt.Params.Dueling {
		if len(wj.Val) != nin || len(wj.Adv) != nt.NActions*nin {
			return fmt.Errorf("dueling weights sizes %d, %d: %w", len(wj.Val), len(wj.Adv), ErrShape)
		}
		nt.Val = mat.NewVecDense(nin, wj.Val)
		nt.Adv = mat.NewDense(nt.NActions, nin, wj.Adv)
		return nil
	}
	if len(wj.Q) != nt.NActions*nin {
		return fmt.Errorf("weights size %d: %w", len(wj.Q), ErrShape)
	}
	nt.Q = mat.NewDense(nt.NActions, nin, wj.Q)
	return nil
}

var (
	_ dqn.Estimator = (*Net)(nil)
	_ dqn.Copier    = (*Net)(nil)
	_ dqn.Blender   = (*Net)(nil)
	_ dqn.Persister = (*Net)(nil)
	_ dqn.Dueler    = (*Net)(nil)
)
