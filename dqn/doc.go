// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package dqn provides the deep Q-learning agent and training loop, independent
of any particular function approximator or environment.

* `estimator.go` defines the minimal `Estimator` interface (Predict and
  TrainStep) that any value function approximator must satisfy, and the
  optional `Copier`, `Blender`, `Persister` and `Dueler` capabilities used for
  target estimator sync, checkpoints and the dueling variant.

* `env.go` defines the `Env` interface (Reset / Step) and the `Outcome` of a step.

* `agent.go` implements epsilon-greedy action selection, experience replay and
  Bellman targets for the `DQN`, `DoubleDQN` and `DuelingDQN` variants.
  In the double variants the online estimator selects the next action and the
  target estimator evaluates it.

* `trainer.go` drives episodes: Reset, then Act, Step, Remember and Replay
  until the environment is done, collecting per-episode statistics and
  calling an optional checkpoint hook every CheckpointInterval episodes.

All hyperparameters live in `Params`, which is passed explicitly to the
constructors -- there is no package-level state.
*/
package dqn
