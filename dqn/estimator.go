// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dqn

import "io"

// Estimator maps an observation to one value estimate per action,
// and can be trained toward given target values.
type Estimator interface {

	// Predict returns the estimated value of each action in state.
	Predict(state []float32) ([]float32, error)

	// TrainStep performs one optimization step moving the estimates for
	// states toward targets (one full action vector per state),
	// returning the loss before the update.
	TrainStep(states, targets [][]float32) (float32, error)
}

// Copier is an Estimator that can overwrite its parameters with those of
// another estimator of the same kind (hard target sync).
type Copier interface {
	CopyFrom(src Estimator) error
}

// Blender is an Estimator that can move its parameters toward those of
// another estimator: p = tau * src + (1 - tau) * p (soft target sync).
type Blender interface {
	Blend(src Estimator, tau float32) error
}

// Persister is an Estimator whose parameters can be saved and restored.
// The storage format belongs to the estimator.
type Persister interface {
	WriteWeights(w io.Writer) error
	ReadWeights(r io.Reader) error
}

// Dueler reports whether an Estimator decomposes values into
// state value and action advantage streams.
type Dueler interface {
	Dueling() bool
}

// Argmax returns the index of the largest value, the lowest such index on ties,
// and -1 for an empty slice.
func Argmax(vals []float32) int {
	mi := -1
	var mx float32
	for i, v := range vals {
		if mi < 0 || v > mx {
			mi = i
			mx = v
		}
	}
	return mi
}
