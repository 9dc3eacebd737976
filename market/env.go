// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package market

import (
	"errors"
	"fmt"

	"github.com/emer/emergent/v2/env"
	"github.com/emer/emergent/v2/etime"
	"github.com/emer/tradeq/dqn"
)

var (
	// ErrInvalidState is returned by Step before Reset or after Done.
	// It is the same error as dqn.ErrInvalidState.
	ErrInvalidState = dqn.ErrInvalidState

	// ErrInvalidAction is returned by Step for an action outside Actions.
	ErrInvalidAction = errors.New("market: invalid action")
)

// Info keys reported by Env.Step, in addition to dqn.InfoValue.
const (
	InfoProfits       = "profits"
	InfoPositionValue = "position_value"
	InfoPositions     = "positions"
)

// Actions are the discrete trading actions.
type Actions int32

const (
	// Hold does nothing.
	Hold Actions = iota

	// Buy opens one more position at the current close.
	Buy

	// Sell closes all open positions at the current close.
	Sell

	ActionsN
)

func (ac Actions) String() string {
	switch ac {
	case Hold:
		return "Hold"
	case Buy:
		return "Buy"
	case Sell:
		return "Sell"
	}
	return fmt.Sprintf("Actions(%d)", int32(ac))
}

// Env is a single-instrument trading environment over a fixed close price
// series.  The agent holds any number of unit positions, each opened by Buy
// at the then-current close.  Sell closes all of them, with reward equal to
// the realized profit.  Selling with nothing open is penalized by -1.
// The observation is the unrealized value of open positions followed by
// the last History close-to-close price changes (zero padded at the start).
type Env struct {

	// name of this environment, e.g., Train or Test
	Name string

	// close prices, one per time step
	Prices []float64

	// number of price changes in the observation
	History int

	// cash added to the reported portfolio value
	InitialCash float64

	// clip rewards to -1, 0, 1
	ClipReward bool

	// episode counter, incremented by Reset
	Episode env.Ctr `view:"inline"`

	// time step within the episode, which indexes Prices
	Trial env.Ctr `view:"inline"`

	active    bool
	positions []float64
	profits   float64
	posValue  float64
	hist      []float64
}

// NewEnv returns an environment on the given close prices, with clipped
// rewards.  There must be at least 2 prices, and history must be positive.
func NewEnv(name string, prices []float64, history int) (*Env, error) {
	if len(prices) < 2 {
		return nil, &dqn.ConfigError{Field: "Prices", Value: len(prices), Reason: "need at least 2 prices"}
	}
	if history <= 0 {
		return nil, &dqn.ConfigError{Field: "History", Value: history, Reason: "must be positive"}
	}
	ev := &Env{Name: name, Prices: prices, History: history, ClipReward: true}
	ev.Init(0)
	return ev, nil
}

// Init resets the counters, as at the start of a new run.
func (ev *Env) Init(run int) {
	ev.Episode.Scale = etime.Epoch
	ev.Trial.Scale = etime.Trial
	ev.Episode.Init()
	ev.Trial.Init()
	ev.Episode.Cur = -1 // first Reset = episode 0
	ev.active = false
}

// NumActions is the number of discrete actions.
func (ev *Env) NumActions() int { return int(ActionsN) }

// ObsSize is the length of the observation vector.
func (ev *Env) ObsSize() int { return ev.History + 1 }

// Steps is the number of steps in a full episode.
func (ev *Env) Steps() int { return len(ev.Prices) - 1 }

// Reset starts a new episode at the first price and returns the
// initial observation.
func (ev *Env) Reset() []float32 {
	ev.Episode.Incr()
	ev.Trial.Init()
	ev.active = true
	ev.positions = ev.positions[:0]
	ev.profits = 0
	ev.posValue = 0
	if cap(ev.hist) < ev.History {
		ev.hist = make([]float64, ev.History)
	}
	ev.hist = ev.hist[:ev.History]
	for i := range ev.hist {
		ev.hist[i] = 0
	}
	return ev.Obs()
}

// Step applies the action at the current price and advances one step.
// The episode is done when the last price is reached.
func (ev *Env) Step(action int) (dqn.Outcome, error) {
	if !ev.active {
		return dqn.Outcome{}, fmt.Errorf("market: %s: step without reset: %w", ev.Name, ErrInvalidState)
	}
	if action < 0 || action >= int(ActionsN) {
		return dqn.Outcome{}, fmt.Errorf("market: %s: action %d: %w", ev.Name, action, ErrInvalidAction)
	}
	t := ev.Trial.Cur
	cur := ev.Prices[t]
	var rew float64
	switch Actions(action) {
	case Buy:
		ev.positions = append(ev.positions, cur)
	case Sell:
		if len(ev.positions) == 0 {
			rew = -1
			break
		}
		var prof float64
		for _, p := range ev.positions {
			prof += cur - p
		}
		rew = prof
		ev.profits += prof
		ev.positions = ev.positions[:0]
	}

	ev.Trial.Incr()
	t = ev.Trial.Cur
	nxt := ev.Prices[t]
	ev.posValue = 0
	for _, p := range ev.positions {
		ev.posValue += nxt - p
	}
	copy(ev.hist, ev.hist[1:])
	ev.hist[len(ev.hist)-1] = nxt - ev.Prices[t-1]

	if ev.ClipReward {
		switch {
		case rew > 0:
			rew = 1
		case rew < 0:
			rew = -1
		}
	}
	done := t == len(ev.Prices)-1
	if done {
		ev.active = false
	}
	return dqn.Outcome{State: ev.Obs(), Reward: float32(rew), Done: done, Info: ev.Info()}, nil
}

// Obs returns the current observation.
func (ev *Env) Obs() []float32 {
	obs := make([]float32, ev.History+1)
	obs[0] = float32(ev.posValue)
	for i, h := range ev.hist {
		obs[i+1] = float32(h)
	}
	return obs
}

// Value is the current portfolio value: initial cash, realized profits
// and the unrealized value of open positions.
func (ev *Env) Value() float64 {
	return ev.InitialCash + ev.profits + ev.posValue
}

// Info returns the current portfolio information.
func (ev *Env) Info() dqn.Info {
	return dqn.Info{
		dqn.InfoValue:     ev.Value(),
		InfoProfits:       ev.profits,
		InfoPositionValue: ev.posValue,
		InfoPositions:     float64(len(ev.positions)),
	}
}

// Counter returns the counter state for the given time scale.
func (ev *Env) Counter(scale etime.Times) (cur, prv int, chg bool) {
	switch scale {
	case etime.Epoch:
		return ev.Episode.Query()
	case etime.Trial:
		return ev.Trial.Query()
	}
	return -1, -1, false
}

// String returns the current state as a string
func (ev *Env) String() string {
	return fmt.Sprintf("%s: ep %d t %d/%d pos %d val %g", ev.Name, ev.Episode.Cur, ev.Trial.Cur, ev.Steps(), len(ev.positions), ev.Value())
}

// Compile-time check that implements Env interface
var _ dqn.Env = (*Env)(nil)
