// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package bridge sequences a full experiment: it loads market data from a
DataSource, splits it into training and testing periods, trains one agent
per configured variant, tests each greedily on the held out period, and
writes weights, portfolio values and a report under Config.DataDir.
Progress is reported through lifecycle notifications.
*/
package bridge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/emer/emergent/v2/etime"
	"github.com/emer/emergent/v2/looper"
	"github.com/emer/empi/v2/mpi"
	"github.com/emer/tradeq/dqn"
	"github.com/emer/tradeq/linear"
	"github.com/emer/tradeq/market"
	"github.com/emer/tradeq/mlp"
)

// NodeState is the lifecycle state of a Bridge.
type NodeState int32

const (
	// Initialization loads data and builds agents.
	Initialization NodeState = iota

	// Training trains each variant.
	Training

	// Testing evaluates each trained variant on held out data.
	Testing

	// Trading is reserved for live trading, which is not done here.
	Trading

	NodeStatesN
)

func (ns NodeState) String() string {
	switch ns {
	case Initialization:
		return "Initialization"
	case Training:
		return "Training"
	case Testing:
		return "Testing"
	case Trading:
		return "Trading"
	}
	return fmt.Sprintf("NodeState(%d)", int32(ns))
}

// DataSource supplies historical market data as a rectangular array,
// one row per time step.
type DataSource interface {
	Data() ([][]float64, error)
}

// Result is the outcome of training and testing one variant.
type Result struct {
	Variant dqn.Variant

	// stats of every training episode
	Train []dqn.EpisodeStats

	// aggregate of Train
	Summary dqn.Summary

	// stats of the greedy test episode
	Test dqn.EpisodeStats

	// portfolio value after each test step
	TestValues []float64

	// last weights file written, empty if none
	Weights string
}

// Bridge runs the experiment, see package doc.
type Bridge struct {

	// source of market data
	Source DataSource

	// configuration
	Config Config

	// if set, called on every lifecycle state change
	OnStateChange func(st NodeState)

	// if set, called after every completed training episode
	OnEpisode func(v dqn.Variant, st dqn.EpisodeStats)

	// current lifecycle state
	State NodeState

	// control loops: Train runs variants by episodes, Test runs variants
	Loops *looper.Manager

	// one result per variant, in order
	Results []*Result

	runs []*variantRun
	err  error
}

// variantRun is the training state of one variant.
type variantRun struct {
	res     *Result
	online  dqn.Estimator
	agent   *dqn.Agent
	trainer *dqn.Trainer
	test    *market.Env
}

// New returns a bridge for the given source and configuration.
func New(src DataSource, cfg Config) *Bridge {
	return &Bridge{Source: src, Config: cfg}
}

// WeightsDir is where weights are saved.
func (br *Bridge) WeightsDir() string { return filepath.Join(br.Config.DataDir, "weights") }

// PortfolioDir is where portfolio values are saved.
func (br *Bridge) PortfolioDir() string { return filepath.Join(br.Config.DataDir, "portfolio_val") }

// Run goes through Initialization, Training and Testing, returning the
// results.  A canceled ctx stops training after the in-flight step and
// returns ctx.Err() along with the partial results, which hold the
// episodes completed so far.
func (br *Bridge) Run(ctx context.Context) ([]*Result, error) {
	br.err = nil
	br.setState(Initialization)
	if err := br.Init(); err != nil {
		return nil, err
	}
	br.ConfigLoops(ctx)

	br.setState(Training)
	br.Loops.ResetAndRun(etime.Train)
	if br.err != nil {
		br.partialResults()
		return br.Results, br.err
	}

	br.setState(Testing)
	br.Loops.ResetAndRun(etime.Test)
	if br.err != nil {
		return br.Results, br.err
	}
	if br.Config.Report && mpi.WorldRank() == 0 {
		fn := filepath.Join(br.Config.DataDir, "report.html")
		if err := WriteReport(fn, br.Results); err != nil {
			return br.Results, err
		}
		mpi.Printf("Report written to: %s\n", fn)
	}
	return br.Results, nil
}

func (br *Bridge) setState(st NodeState) {
	br.State = st
	if br.OnStateChange != nil {
		br.OnStateChange(st)
	}
}

// Init validates the configuration, makes the output directories,
// loads and splits the data, and builds an agent per variant.
func (br *Bridge) Init() error {
	cfg := &br.Config
	if err := cfg.Validate(); err != nil {
		return err
	}
	vars, _ := cfg.ParseVariants()
	for _, dir := range []string{br.WeightsDir(), br.PortfolioDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	if br.Source == nil {
		return &dqn.ConfigError{Field: "Source", Value: nil, Reason: "a data source is required"}
	}
	data, err := br.Source.Data()
	if err != nil {
		return fmt.Errorf("bridge: data: %w", err)
	}
	prices, err := market.Column(data, cfg.PriceCol)
	if err != nil {
		return fmt.Errorf("bridge: data: %w", err)
	}
	if len(prices) < cfg.TrainRows+2 {
		return &dqn.ConfigError{Field: "TrainRows", Value: cfg.TrainRows, Reason: fmt.Sprintf("only %d data rows, need 2 more for testing", len(prices))}
	}
	trn, tst := prices[:cfg.TrainRows], prices[cfg.TrainRows:]
	mpi.Printf("Data: %d rows, %d train, %d test\n", len(prices), len(trn), len(tst))

	br.runs = make([]*variantRun, len(vars))
	br.Results = make([]*Result, len(vars))
	for vi, v := range vars {
		vr, err := br.newRun(v, vi, trn, tst)
		if err != nil {
			return fmt.Errorf("bridge: %s: %w", v, err)
		}
		br.runs[vi] = vr
		br.Results[vi] = vr.res
	}
	return nil
}

func (br *Bridge) newRun(v dqn.Variant, vi int, trn, tst []float64) (*variantRun, error) {
	cfg := &br.Config
	trEnv, err := market.NewEnv(etime.Train.String(), trn, cfg.History)
	if err != nil {
		return nil, err
	}
	tsEnv, err := market.NewEnv(etime.Test.String(), tst, cfg.History)
	if err != nil {
		return nil, err
	}
	trEnv.InitialCash = cfg.InitialCash
	tsEnv.InitialCash = cfg.InitialCash

	par := cfg.Params
	par.Variant = v
	par.Seed = cfg.Params.Seed + int64(vi)
	nobs := trEnv.ObsSize()
	online, err := br.NewEstimator(v, nobs, par.Seed)
	if err != nil {
		return nil, err
	}
	var target dqn.Estimator
	if par.TargetSyncInterval > 0 {
		target, err = br.NewEstimator(v, nobs, par.Seed+1000)
		if err != nil {
			return nil, err
		}
	}
	ag, err := dqn.NewAgent(par, trEnv.NumActions(), online, target)
	if err != nil {
		return nil, err
	}
	tr, err := dqn.NewTrainer(trEnv, ag)
	if err != nil {
		return nil, err
	}
	vr := &variantRun{res: &Result{Variant: v}, online: online, agent: ag, trainer: tr, test: tsEnv}
	runName := fmt.Sprintf("%s_%03d", v, vi)
	tr.Checkpoint = func(eps int) error {
		fnm, err := br.SaveWeights(online, runName, fmt.Sprintf("%05d", eps))
		if err != nil {
			return err
		}
		if fnm != "" {
			vr.res.Weights = fnm
		}
		return nil
	}
	ival := par.CheckpointInterval
	if ival == 0 {
		ival = 10
	}
	tr.OnEpisode = func(st dqn.EpisodeStats) {
		if (st.Episode+1)%ival == 0 || st.Episode+1 == par.Episodes {
			mpi.Printf("%s\t%v\n", v, st)
		}
		if br.OnEpisode != nil {
			br.OnEpisode(v, st)
		}
	}
	mpi.Printf("%s: %s estimator, replay memory capacity %d\n", v, cfg.Estimator, par.MemoryCapacity)
	return vr, nil
}

// NewEstimator returns a new estimator of the configured kind for variant v.
func (br *Bridge) NewEstimator(v dqn.Variant, nObs int, seed int64) (dqn.Estimator, error) {
	cfg := &br.Config
	switch cfg.Estimator {
	case MLP:
		if v == dqn.DuelingDQN {
			return nil, &dqn.ConfigError{Field: "Estimator", Value: cfg.Estimator, Reason: "DuelingDQN requires the linear estimator"}
		}
		return mlp.New(nObs, int(market.ActionsN), cfg.MLP)
	default:
		par := cfg.Linear
		par.Dueling = v == dqn.DuelingDQN
		par.Seed = seed
		return linear.New(nObs, int(market.ActionsN), par)
	}
}

// ConfigLoops configures the control loops.  The Train stack has a Run per
// variant and an Epoch per episode, the Test stack a Run per variant.
func (br *Bridge) ConfigLoops(ctx context.Context) {
	man := looper.NewManager()
	nvar := len(br.runs)

	man.AddStack(etime.Train).
		AddTime(etime.Run, nvar).
		AddTime(etime.Epoch, br.Config.Params.Episodes)

	man.AddStack(etime.Test).
		AddTime(etime.Run, nvar)

	stop := func() bool { return br.err != nil }
	man.GetLoop(etime.Train, etime.Epoch).IsDone.Add("Error", stop)
	man.GetLoop(etime.Train, etime.Run).IsDone.Add("Error", stop)
	man.GetLoop(etime.Test, etime.Run).IsDone.Add("Error", stop)

	man.GetLoop(etime.Train, etime.Epoch).Main.Add("RunEpisode", func() {
		if br.err != nil {
			return
		}
		vr := br.runs[br.runCtr(etime.Train)]
		if _, err := vr.trainer.RunEpisode(ctx); err != nil {
			br.err = fmt.Errorf("bridge: %s: %w", vr.res.Variant, err)
		}
	})
	man.GetLoop(etime.Train, etime.Run).OnEnd.Add("RunStats", func() {
		if br.err != nil {
			return
		}
		vr := br.runs[br.runCtr(etime.Train)]
		// completes the run with a final checkpoint
		if err := vr.trainer.Train(ctx); err != nil {
			br.err = fmt.Errorf("bridge: %s: %w", vr.res.Variant, err)
			return
		}
		vr.res.Train = vr.trainer.History
		vr.res.Summary = vr.trainer.Summary()
		sm := vr.res.Summary
		mpi.Printf("%s trained: %d episodes, mean reward %.4g (sd %.4g), best %g, replay memory %s\n",
			vr.res.Variant, sm.Episodes, sm.MeanReward, sm.StdReward, sm.BestReward, vr.agent.Memory.SizeBytes().HumanReadable())
		if err := br.SavePortfolio(vr.res.Variant, "train", trainValues(vr.res.Train)); err != nil {
			br.err = err
		}
	})
	man.GetLoop(etime.Test, etime.Run).Main.Add("Evaluate", func() {
		if br.err != nil {
			return
		}
		vr := br.runs[br.runCtr(etime.Test)]
		st, vals, err := dqn.Evaluate(ctx, vr.test, vr.agent, 0)
		if err != nil {
			br.err = fmt.Errorf("bridge: %s test: %w", vr.res.Variant, err)
			return
		}
		vr.res.Test = st
		vr.res.TestValues = vals
		mpi.Printf("%s tested: %d steps, reward %g, end value %g\n", vr.res.Variant, st.Steps, st.Reward, st.FinalValue)
		if err := br.SavePortfolio(vr.res.Variant, "test", vals); err != nil {
			br.err = err
		}
	})
	br.Loops = man
}

// partialResults fills in results of runs stopped by an error.
func (br *Bridge) partialResults() {
	for _, vr := range br.runs {
		if len(vr.res.Train) > 0 || vr.trainer.Episodes() == 0 {
			continue
		}
		vr.res.Train = vr.trainer.History
		vr.res.Summary = vr.trainer.Summary()
	}
}

func (br *Bridge) runCtr(mode etime.Modes) int {
	return br.Loops.Stacks[mode].Loops[etime.Run].Counter.Cur
}

func trainValues(stats []dqn.EpisodeStats) []float64 {
	vals := make([]float64, len(stats))
	for i, st := range stats {
		vals[i] = st.FinalValue
	}
	return vals
}
