// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dqn

import (
	"math/rand"

	"github.com/goki/mat32"
)

// Policy is an epsilon-greedy exploration policy whose epsilon
// decays multiplicatively toward a floor.
type Policy struct {

	// current exploration rate
	Epsilon float32

	// epsilon never decays below Floor
	Floor float32

	// multiplicative decay factor applied by Decay
	Rate float32

	rnd *rand.Rand
}

// NewPolicy returns a policy starting at the given epsilon.
func NewPolicy(start, floor, rate float32, rnd *rand.Rand) *Policy {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(1))
	}
	return &Policy{Epsilon: start, Floor: floor, Rate: rate, rnd: rnd}
}

// Decay multiplies epsilon by Rate, clamped at Floor.
func (pl *Policy) Decay() {
	pl.Epsilon = mat32.Max(pl.Floor, pl.Epsilon*pl.Rate)
}

// Explore returns true with probability Epsilon.
func (pl *Policy) Explore() bool {
	return pl.rnd.Float32() < pl.Epsilon
}

// RandomAction returns an action uniformly among n.
func (pl *Policy) RandomAction(n int) int {
	return pl.rnd.Intn(n)
}
