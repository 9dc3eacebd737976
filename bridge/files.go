// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridge

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/emer/empi/v2/mpi"
	"github.com/emer/etable/v2/etable"
	"github.com/emer/etable/v2/etensor"
	"github.com/emer/tradeq/dqn"
)

// WeightsFilename returns the weights file name for the given run name,
// e.g., variant and index, and counter string, e.g., episodes.
func (br *Bridge) WeightsFilename(runName, ctrString string) string {
	return filepath.Join(br.WeightsDir(), runName+"_"+ctrString+".json")
}

// SaveWeights saves the estimator weights to WeightsFilename,
// only for 0 rank MPI if running mpi.
// Returns the name of the file saved to, or empty if not saved.
func (br *Bridge) SaveWeights(est dqn.Estimator, runName, ctrString string) (string, error) {
	if mpi.WorldRank() > 0 {
		return "", nil
	}
	ps, ok := est.(dqn.Persister)
	if !ok {
		return "", nil
	}
	fnm := br.WeightsFilename(runName, ctrString)
	f, err := os.Create(fnm)
	if err != nil {
		return "", err
	}
	if err := ps.WriteWeights(f); err != nil {
		f.Close()
		return "", fmt.Errorf("bridge: saving weights to %s: %w", fnm, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return fnm, nil
}

// LoadWeights reads weights saved by SaveWeights into est.
func LoadWeights(est dqn.Estimator, fnm string) error {
	ps, ok := est.(dqn.Persister)
	if !ok {
		return fmt.Errorf("bridge: estimator %T cannot load weights", est)
	}
	f, err := os.Open(fnm)
	if err != nil {
		return err
	}
	defer f.Close()
	return ps.ReadWeights(f)
}

// PortfolioFilename returns the file name for portfolio values of variant
// in the given phase, train or test.
func (br *Bridge) PortfolioFilename(v dqn.Variant, phase string) string {
	return filepath.Join(br.PortfolioDir(), string(v)+"-"+phase+".csv")
}

// PortfolioTable returns portfolio values as a table with an int step
// column and a float64 value column.
func PortfolioTable(name string, vals []float64) *etable.Table {
	dt := etable.New(etable.Schema{
		{Name: "step", Type: etensor.INT},
		{Name: "value", Type: etensor.FLOAT64},
	}, len(vals))
	dt.SetMetaData("name", name)
	for i, val := range vals {
		dt.SetCellFloat("step", i, float64(i))
		dt.SetCellFloat("value", i, val)
	}
	return dt
}

// SavePortfolio writes portfolio values as CSV with a step column,
// only for 0 rank MPI.
func (br *Bridge) SavePortfolio(v dqn.Variant, phase string, vals []float64) error {
	if mpi.WorldRank() > 0 {
		return nil
	}
	fnm := br.PortfolioFilename(v, phase)
	f, err := os.Create(fnm)
	if err != nil {
		return err
	}
	dt := PortfolioTable(string(v)+"-"+phase, vals)
	if err := dt.WriteCSV(f, etable.Comma, etable.Headers); err != nil {
		f.Close()
		return fmt.Errorf("bridge: writing %s: %w", fnm, err)
	}
	return f.Close()
}
