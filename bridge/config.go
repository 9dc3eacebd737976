// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridge

import (
	"strings"

	"github.com/emer/tradeq/dqn"
	"github.com/emer/tradeq/linear"
	"github.com/emer/tradeq/market"
	"github.com/emer/tradeq/mlp"
)

// Estimator kinds.
const (
	Linear = "linear"
	MLP    = "mlp"
)

// Config has the full configuration of a Bridge run.
type Config struct {

	// comma separated variants to train and test, in order
	Variants string `default:"DQN,DoubleDQN,DuelingDQN"`

	// estimator kind: linear or mlp -- DuelingDQN requires linear
	Estimator string `default:"linear"`

	// number of leading data rows used for training, the rest for testing
	TrainRows int `default:"1000"`

	// data column holding the price, default is the candle close
	PriceCol int `default:"3"`

	// number of price changes in the observation
	History int `default:"90"`

	// cash added to the reported portfolio value
	InitialCash float64 `default:"0"`

	// directory for weights, portfolio values and the report
	DataDir string `default:"data"`

	// write an HTML report of training and testing
	Report bool `default:"true"`

	// agent and training loop parameters
	Params dqn.Params `nest:"+"`

	// linear estimator parameters
	Linear linear.Params `nest:"+"`

	// mlp estimator parameters
	MLP mlp.Params `nest:"+"`
}

// Defaults sets the default values.
func (cfg *Config) Defaults() {
	cfg.Variants = "DQN,DoubleDQN,DuelingDQN"
	cfg.Estimator = Linear
	cfg.TrainRows = 1000
	cfg.PriceCol = market.ColClose
	cfg.History = 90
	cfg.InitialCash = 0
	cfg.DataDir = "data"
	cfg.Report = true
	cfg.Params.Defaults()
	cfg.Linear.Defaults()
	cfg.MLP.Defaults()
}

// ParseVariants returns the configured variants.
func (cfg *Config) ParseVariants() ([]dqn.Variant, error) {
	var vars []dqn.Variant
	for _, s := range strings.Split(cfg.Variants, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		v, err := dqn.ParseVariant(s)
		if err != nil {
			return nil, err
		}
		vars = append(vars, v)
	}
	if len(vars) == 0 {
		return nil, &dqn.ConfigError{Field: "Variants", Value: cfg.Variants, Reason: "no variants"}
	}
	return vars, nil
}

// Validate returns a *dqn.ConfigError for the first invalid setting.
func (cfg *Config) Validate() error {
	if _, err := cfg.ParseVariants(); err != nil {
		return err
	}
	switch {
	case cfg.Estimator != Linear && cfg.Estimator != MLP:
		return &dqn.ConfigError{Field: "Estimator", Value: cfg.Estimator, Reason: "must be linear or mlp"}
	case cfg.TrainRows < 2:
		return &dqn.ConfigError{Field: "TrainRows", Value: cfg.TrainRows, Reason: "need at least 2 training rows"}
	case cfg.PriceCol < 0:
		return &dqn.ConfigError{Field: "PriceCol", Value: cfg.PriceCol, Reason: "must not be negative"}
	case cfg.History <= 0:
		return &dqn.ConfigError{Field: "History", Value: cfg.History, Reason: "must be positive"}
	case cfg.DataDir == "":
		return &dqn.ConfigError{Field: "DataDir", Value: cfg.DataDir, Reason: "must be set"}
	}
	return cfg.Params.Validate()
}
