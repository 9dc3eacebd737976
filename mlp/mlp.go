// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mlp is a multi-layer perceptron action value estimator,
// built on the loom neural network library.
package mlp

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emer/tradeq/dqn"
	"github.com/openfluke/loom/nn"
)

// ErrShape is returned for mismatched state, target or network dimensions.
var ErrShape = errors.New("mlp: shape mismatch")

// DType is the loom weight data type used for saving and loading.
const DType = "float32"

// Params are the network parameters.
type Params struct {

	// number of units per hidden layer
	Hidden int `default:"32" min:"1"`

	// number of hidden to hidden layers, after the input to hidden layer
	Layers int `default:"1" min:"0"`

	// learning rate
	LearnRate float32 `default:"0.001"`
}

// Defaults sets the default values.
func (pr *Params) Defaults() {
	pr.Hidden = 32
	pr.Layers = 1
	pr.LearnRate = 0.001
}

// Net is a dense feed-forward network: input to Hidden units,
// Layers more Hidden layers, then one output unit per action.
// All layers use leaky rectification, so negative values are
// represented with a reduced slope.
type Net struct {
	Params Params

	// number of observation inputs
	NObs int

	// number of actions
	NActions int

	net *nn.Network
}

// New returns a network with freshly initialized weights.
func New(nObs, nActions int, par Params) (*Net, error) {
	switch {
	case nObs <= 0 || nActions <= 0:
		return nil, &dqn.ConfigError{Field: "shape", Value: [2]int{nObs, nActions}, Reason: "observations and actions must be positive"}
	case par.Hidden <= 0:
		return nil, &dqn.ConfigError{Field: "Hidden", Value: par.Hidden, Reason: "must be positive"}
	case par.Layers < 0:
		return nil, &dqn.ConfigError{Field: "Layers", Value: par.Layers, Reason: "must not be negative"}
	case par.LearnRate <= 0:
		return nil, &dqn.ConfigError{Field: "LearnRate", Value: par.LearnRate, Reason: "must be positive"}
	}
	nt := &Net{Params: par, NObs: nObs, NActions: nActions}
	nt.net = nt.build()
	nt.net.InitializeWeights()
	return nt, nil
}

func (nt *Net) build() *nn.Network {
	nly := nt.Params.Layers + 2
	net := nn.NewNetwork(nt.NObs, 1, 1, nly)
	net.BatchSize = 1
	net.SetLayer(0, 0, 0, nn.InitDenseLayer(nt.NObs, nt.Params.Hidden, nn.ActivationLeakyReLU))
	for li := 1; li <= nt.Params.Layers; li++ {
		net.SetLayer(0, 0, li, nn.InitDenseLayer(nt.Params.Hidden, nt.Params.Hidden, nn.ActivationLeakyReLU))
	}
	net.SetLayer(0, 0, nly-1, nn.InitDenseLayer(nt.Params.Hidden, nt.NActions, nn.ActivationLeakyReLU))
	return net
}

// Predict returns the value of each action in state.
func (nt *Net) Predict(state []float32) ([]float32, error) {
	if len(state) != nt.NObs {
		return nil, fmt.Errorf("state has %d values, expected %d: %w", len(state), nt.NObs, ErrShape)
	}
	out, _ := nt.net.ForwardCPU(state)
	if len(out) != nt.NActions {
		return nil, fmt.Errorf("network output %d values, expected %d: %w", len(out), nt.NActions, ErrShape)
	}
	q := make([]float32, nt.NActions)
	copy(q, out)
	return q, nil
}

// TrainStep trains one epoch on the batch, and returns the mean squared
// error before training.
func (nt *Net) TrainStep(states, targets [][]float32) (float32, error) {
	if len(states) == 0 || len(states) != len(targets) {
		return 0, fmt.Errorf("%d states and %d targets: %w", len(states), len(targets), ErrShape)
	}
	batches := make([]nn.TrainingBatch, len(states))
	var sse float32
	for i, st := range states {
		if len(targets[i]) != nt.NActions {
			return 0, fmt.Errorf("target %d has %d values, expected %d: %w", i, len(targets[i]), nt.NActions, ErrShape)
		}
		q, err := nt.Predict(st)
		if err != nil {
			return 0, err
		}
		for a, v := range q {
			d := v - targets[i][a]
			sse += d * d
		}
		batches[i] = nn.TrainingBatch{Input: st, Target: targets[i]}
	}
	if _, err := nt.net.Train(batches, &nn.TrainingConfig{Epochs: 1, LearningRate: nt.Params.LearnRate, LossType: "mse"}); err != nil {
		return 0, fmt.Errorf("mlp: train: %w", err)
	}
	return sse / float32(len(states)*nt.NActions), nil
}

func (nt *Net) same(src dqn.Estimator) (*Net, error) {
	sn, ok := src.(*Net)
	if !ok {
		return nil, fmt.Errorf("source is %T, not *mlp.Net: %w", src, ErrShape)
	}
	if sn.NObs != nt.NObs || sn.NActions != nt.NActions || sn.Params.Hidden != nt.Params.Hidden || sn.Params.Layers != nt.Params.Layers {
		return nil, fmt.Errorf("source architecture differs: %w", ErrShape)
	}
	return sn, nil
}

// CopyFrom replaces the network with a copy of src, which must be a *Net
// of the same architecture.
func (nt *Net) CopyFrom(src dqn.Estimator) error {
	sn, err := nt.same(src)
	if err != nil {
		return err
	}
	var sb strings.Builder
	if err := sn.WriteWeights(&sb); err != nil {
		return err
	}
	return nt.ReadWeights(strings.NewReader(sb.String()))
}

// WriteWeights writes the network in the loom JSON model format.
func (nt *Net) WriteWeights(w io.Writer) error {
	js, err := nt.net.SaveModelWithDType("q", DType)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, js)
	return err
}

// ReadWeights replaces the network with one read from r, which must have
// the same input and output sizes.
func (nt *Net) ReadWeights(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	net, _, err := nn.LoadModelWithDType(string(b), "q", DType)
	if err != nil {
		return fmt.Errorf("mlp: load: %w", err)
	}
	net.BatchSize = 1
	out, _ := net.ForwardCPU(make([]float32, nt.NObs))
	if len(out) != nt.NActions {
		return fmt.Errorf("loaded network outputs %d values, expected %d: %w", len(out), nt.NActions, ErrShape)
	}
	nt.net = net
	return nil
}

var (
	_ dqn.Estimator = (*Net)(nil)
	_ dqn.Copier    = (*Net)(nil)
	_ dqn.Persister = (*Net)(nil)
)
