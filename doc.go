// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package tradeq is the overall repository for deep Q-learning (DQN) trading
experiments implemented in the Go language (golang).

This top-level of the repository has no functional code -- everything is organized
into the following sub-repositories:

* replay: the bounded experience replay memory of Transitions, with uniform
sampling without replacement, used to decorrelate training updates.

* dqn: the core agent / training loop: the Estimator and Env contracts,
epsilon-greedy exploration, Bellman targets for the DQN, DoubleDQN and
DuelingDQN variants, target estimator sync, and per-episode statistics.

* market: a simulated stock-trading environment (hold / buy / sell) driven by
a price history, plus data sources (CSV candles, in-memory rows, random walk).

* linear, mlp: concrete value estimators.  linear is a gonum-based linear
function approximator with an optional dueling (value + advantage) head, and
mlp is a multi-layer perceptron built on loom.  Neither is known to dqn
beyond the Estimator interface.

* bridge: the orchestration shell that sequences initialization, training and
testing, reporting lifecycle notifications, saving weights and writing
portfolio logs and reports.

* examples: these actually compile into runnable programs.  examples/trader
is the place to start: it trains all three variants on either a CSV price
history or a random walk.
*/
package tradeq
