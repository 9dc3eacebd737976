// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dqn

import (
	"context"
	"fmt"

	"github.com/emer/tradeq/replay"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// EpisodeStats are the statistics of one completed episode.
type EpisodeStats struct {

	// 0-based episode index
	Episode int

	// number of environment steps taken
	Steps int

	// cumulative reward
	Reward float64

	// mean loss over the replay calls of the episode, 0 if none
	AvgLoss float64

	// number of replay calls
	Replays int

	// epsilon at the end of the episode
	Epsilon float32

	// last reported InfoValue (portfolio value), 0 if never reported
	FinalValue float64
}

func (st EpisodeStats) String() string {
	return fmt.Sprintf("episode: %d\tsteps: %d\treward: %g\tavg loss: %.6g\tepsilon: %.4f\tend value: %g",
		st.Episode+1, st.Steps, st.Reward, st.AvgLoss, st.Epsilon, st.FinalValue)
}

// Summary aggregates a set of episodes.
type Summary struct {
	Episodes   int
	MeanReward float64
	StdReward  float64
	BestReward float64
	MeanLoss   float64
	MeanValue  float64
}

// Summarize computes a Summary over stats.
func Summarize(stats []EpisodeStats) Summary {
	sm := Summary{Episodes: len(stats)}
	if len(stats) == 0 {
		return sm
	}
	rews := make([]float64, len(stats))
	loss := make([]float64, len(stats))
	vals := make([]float64, len(stats))
	for i, st := range stats {
		rews[i] = st.Reward
		loss[i] = st.AvgLoss
		vals[i] = st.FinalValue
	}
	sm.MeanReward = stat.Mean(rews, nil)
	if len(rews) > 1 {
		sm.StdReward = stat.StdDev(rews, nil)
	}
	sm.BestReward = floats.Max(rews)
	sm.MeanLoss = stat.Mean(loss, nil)
	sm.MeanValue = stat.Mean(vals, nil)
	return sm
}

// Trainer runs training episodes of an Agent in an Env.
// It is resumable at episode granularity: Train and RunEpisode always
// start a fresh episode after the last completed one.
type Trainer struct {

	// environment being trained on
	Env Env

	// agent being trained
	Agent *Agent

	// stats of every completed episode, in order
	History []EpisodeStats

	// if set, called with the stats of each completed episode
	OnEpisode func(st EpisodeStats)

	// if set, called with the number of completed episodes every
	// Params.CheckpointInterval episodes and at the end of Train
	Checkpoint func(episodes int) error

	episode  int
	lastCkpt int
}

// NewTrainer returns a trainer for agent in env.
func NewTrainer(env Env, agent *Agent) (*Trainer, error) {
	if env.NumActions() != agent.NActions {
		return nil, &ConfigError{"NActions", agent.NActions, fmt.Sprintf("environment has %d actions", env.NumActions())}
	}
	return &Trainer{Env: env, Agent: agent, lastCkpt: -1}, nil
}

// Episodes returns the number of completed episodes.
func (tr *Trainer) Episodes() int {
	return tr.episode
}

// Train runs episodes until Params.Episodes have completed in total,
// then calls the checkpoint hook.  If ctx is canceled, Train returns
// ctx.Err() after the in-flight step -- the partial episode is not
// counted, and a later Train resumes with a fresh episode.
func (tr *Trainer) Train(ctx context.Context) error {
	for tr.episode < tr.Agent.Params.Episodes {
		if _, err := tr.RunEpisode(ctx); err != nil {
			return err
		}
	}
	if tr.lastCkpt != tr.episode {
		return tr.checkpoint()
	}
	return nil
}

// RunEpisode runs one episode: Reset, then Act, Step, Remember and
// (every TrainFreq steps once memory holds a batch) Replay, until the
// environment is done or MaxSteps is reached.
func (tr *Trainer) RunEpisode(ctx context.Context) (EpisodeStats, error) {
	st := EpisodeStats{Episode: tr.episode}
	if err := ctx.Err(); err != nil {
		return st, err
	}
	ag := tr.Agent
	par := &ag.Params
	var lossSum float64
	state := tr.Env.Reset()
	for {
		act, err := ag.Act(state)
		if err != nil {
			return st, err
		}
		out, err := tr.Env.Step(act)
		if err != nil {
			return st, err
		}
		ag.Remember(replay.Transition{State: state, Action: act, Reward: out.Reward, NextState: out.State, Done: out.Done})
		st.Steps++
		st.Reward += float64(out.Reward)
		if v, has := out.Info[InfoValue]; has {
			st.FinalValue = v
		}
		state = out.State
		if ag.Memory.Len() >= par.BatchSize && st.Steps%par.TrainFreq == 0 {
			loss, err := ag.Replay(par.BatchSize)
			if err != nil {
				return st, err
			}
			lossSum += float64(loss)
			st.Replays++
		}
		if out.Done || (par.MaxSteps > 0 && st.Steps >= par.MaxSteps) {
			break
		}
		if err := ctx.Err(); err != nil {
			return st, err
		}
	}
	if st.Replays > 0 {
		st.AvgLoss = lossSum / float64(st.Replays)
	}
	if err := ag.EndEpisode(st.Episode); err != nil {
		return st, err
	}
	st.Epsilon = ag.Policy.Epsilon
	tr.episode++
	tr.History = append(tr.History, st)
	if tr.OnEpisode != nil {
		tr.OnEpisode(st)
	}
	if iv := par.CheckpointInterval; iv > 0 && tr.episode%iv == 0 {
		if err := tr.checkpoint(); err != nil {
			return st, err
		}
	}
	return st, nil
}

// Summary aggregates the training history.
func (tr *Trainer) Summary() Summary {
	return Summarize(tr.History)
}

func (tr *Trainer) checkpoint() error {
	tr.lastCkpt = tr.episode
	if tr.Checkpoint == nil {
		return nil
	}
	if err := tr.Checkpoint(tr.episode); err != nil {
		return fmt.Errorf("dqn: checkpoint after %d episodes: %w", tr.episode, err)
	}
	return nil
}

// Evaluate runs one greedy episode (no exploration, no learning) of agent
// in env, returning its stats and the InfoValue after every step.
// maxSteps > 0 caps the episode length.
func Evaluate(ctx context.Context, env Env, agent *Agent, maxSteps int) (EpisodeStats, []float64, error) {
	var st EpisodeStats
	var vals []float64
	state := env.Reset()
	for {
		if err := ctx.Err(); err != nil {
			return st, vals, err
		}
		act, err := agent.Greedy(state)
		if err != nil {
			return st, vals, err
		}
		out, err := env.Step(act)
		if err != nil {
			return st, vals, err
		}
		st.Steps++
		st.Reward += float64(out.Reward)
		if v, has := out.Info[InfoValue]; has {
			st.FinalValue = v
			vals = append(vals, v)
		}
		state = out.State
		if out.Done || (maxSteps > 0 && st.Steps >= maxSteps) {
			break
		}
	}
	st.Epsilon = 0
	return st, vals, nil
}
