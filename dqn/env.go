// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dqn

import "errors"

// ErrInvalidState is returned by an Env that is stepped before Reset
// or after it has reported Done.
var ErrInvalidState = errors.New("env: invalid state")

// InfoValue is the Info key for the current portfolio value.
const InfoValue = "cur_val"

// Info is auxiliary information about a step, e.g., portfolio value.
type Info map[string]float64

// Outcome is the result of applying one action to an Env.
type Outcome struct {

	// observation after the action
	State []float32

	// scalar reward for the action
	Reward float32

	// true if the episode has ended -- Step fails until the next Reset
	Done bool

	// auxiliary information
	Info Info
}

// Env is an episodic environment with a fixed discrete action space
// and a fixed-length observation vector.
type Env interface {

	// Reset starts a new episode and returns the initial observation.
	Reset() []float32

	// Step applies action and advances one time step.
	// Returns ErrInvalidState if called before Reset or after Done.
	Step(action int) (Outcome, error)

	// NumActions is the number of discrete actions.
	NumActions() int
}
