// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridge

import (
	"io"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// lineChart plots one series per name, over steps 0..n-1.
func lineChart(title, xName string, names []string, series [][]float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithInitializationOpts(opts.Initialization{Theme: "shine"}),
		charts.WithXAxisOpts(opts.XAxis{Name: xName}),
	)
	n := 0
	for _, s := range series {
		n = max(n, len(s))
	}
	steps := make([]string, n)
	for i := range steps {
		steps[i] = strconv.Itoa(i)
	}
	line.SetXAxis(steps)
	for si, s := range series {
		items := make([]opts.LineData, len(s))
		for i, v := range s {
			items[i] = opts.LineData{Value: v}
		}
		line.AddSeries(names[si], items)
	}
	return line
}

// RenderReport renders charts of training rewards, training end values
// and test portfolio values of each result.
func RenderReport(w io.Writer, results []*Result) error {
	names := make([]string, len(results))
	rews := make([][]float64, len(results))
	ends := make([][]float64, len(results))
	tests := make([][]float64, len(results))
	for i, rs := range results {
		names[i] = string(rs.Variant)
		rews[i] = make([]float64, len(rs.Train))
		for j, st := range rs.Train {
			rews[i][j] = st.Reward
		}
		ends[i] = trainValues(rs.Train)
		tests[i] = rs.TestValues
	}
	page := components.NewPage()
	page.AddCharts(
		lineChart("Training reward", "episode", names, rews),
		lineChart("Training end value", "episode", names, ends),
		lineChart("Test portfolio value", "step", names, tests),
	)
	return page.Render(w)
}

// WriteReport renders the report to an HTML file.
func WriteReport(fnm string, results []*Result) error {
	f, err := os.Create(fnm)
	if err != nil {
		return err
	}
	if err := RenderReport(f, results); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
