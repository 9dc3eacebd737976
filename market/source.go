// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package market

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/emer/etable/v2/etable"
	"github.com/emer/etable/v2/etensor"
	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrNotRect is returned for market data that is empty or ragged.
var ErrNotRect = errors.New("market: data is not a non-empty rectangular array")

// Column indexes of a candle row, as returned by Candle.Row.
const (
	ColOpen = iota
	ColHigh
	ColLow
	ColClose
	ColVolume
	NCols
)

// Candle is one OHLCV bar.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Row returns the numeric fields, indexed by the Col constants.
func (cd *Candle) Row() []float64 {
	return []float64{cd.Open, cd.High, cd.Low, cd.Close, cd.Volume}
}

// CheckRect returns ErrNotRect unless rows is non-empty and every row
// has the same non-zero length.
func CheckRect(rows [][]float64) error {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return ErrNotRect
	}
	n := len(rows[0])
	for i, r := range rows {
		if len(r) != n {
			return fmt.Errorf("row %d has %d columns, expected %d: %w", i, len(r), n, ErrNotRect)
		}
	}
	return nil
}

// Column returns column col of rows.
func Column(rows [][]float64, col int) ([]float64, error) {
	if err := CheckRect(rows); err != nil {
		return nil, err
	}
	if col < 0 || col >= len(rows[0]) {
		return nil, fmt.Errorf("market: column %d out of range [0, %d)", col, len(rows[0]))
	}
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r[col]
	}
	return out, nil
}

// Rows is in-memory market data.
type Rows [][]float64

// Data returns the rows after checking they are rectangular.
func (rs Rows) Data() ([][]float64, error) {
	if err := CheckRect(rs); err != nil {
		return nil, err
	}
	return rs, nil
}

// CSVSource reads candles from a CSV file with a header row naming the
// columns time, open, high, low, close and volume, in any order.
// Headers may carry emergent type prefixes as written by WriteCandles.
// Time is RFC 3339 or unix seconds.
type CSVSource struct {
	Path string
}

// Data reads the file and returns one Candle.Row per record.
func (cs *CSVSource) Data() ([][]float64, error) {
	f, err := os.Open(cs.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cds, err := ReadCandles(f)
	if err != nil {
		return nil, fmt.Errorf("market: %s: %w", cs.Path, err)
	}
	rows := make([][]float64, len(cds))
	for i := range cds {
		rows[i] = cds[i].Row()
	}
	if err := CheckRect(rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ReadCandles parses CSV candles, see CSVSource.
func ReadCandles(r io.Reader) ([]Candle, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	hdr, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range hdr {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		_, nm := etable.EmerColType(h)
		idx[strings.ToLower(nm)] = i
	}
	names := []string{"time", "open", "high", "low", "close", "volume"}
	for _, nm := range names {
		if _, ok := idx[nm]; !ok {
			return nil, fmt.Errorf("missing column %q", nm)
		}
	}
	var cds []Candle
	for ln := 2; ; ln++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		var cd Candle
		cd.Time, err = parseTime(rec[idx["time"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", ln, err)
		}
		vals := []*float64{&cd.Open, &cd.High, &cd.Low, &cd.Close, &cd.Volume}
		for i, nm := range names[1:] {
			*vals[i], err = strconv.ParseFloat(strings.TrimSpace(rec[idx[nm]]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", ln, nm, err)
			}
		}
		cds = append(cds, cd)
	}
	return cds, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}

// CandleTable returns the candles as a table with a string time column
// and float64 open, high, low, close and volume columns.
func CandleTable(cds []Candle) *etable.Table {
	dt := etable.New(etable.Schema{
		{Name: "time", Type: etensor.STRING},
		{Name: "open", Type: etensor.FLOAT64},
		{Name: "high", Type: etensor.FLOAT64},
		{Name: "low", Type: etensor.FLOAT64},
		{Name: "close", Type: etensor.FLOAT64},
		{Name: "volume", Type: etensor.FLOAT64},
	}, len(cds))
	dt.SetMetaData("name", "Candles")
	for i := range cds {
		cd := &cds[i]
		dt.SetCellString("time", i, cd.Time.UTC().Format(time.RFC3339))
		dt.SetCellFloat("open", i, cd.Open)
		dt.SetCellFloat("high", i, cd.High)
		dt.SetCellFloat("low", i, cd.Low)
		dt.SetCellFloat("close", i, cd.Close)
		dt.SetCellFloat("volume", i, cd.Volume)
	}
	return dt
}

// WriteCandles writes candles in the format read by ReadCandles,
// with typed emergent headers, e.g., $time,#open.
func WriteCandles(w io.Writer, cds []Candle) error {
	return CandleTable(cds).WriteCSV(w, etable.Comma, etable.Headers)
}

// RandomWalk generates N candles from a geometric random walk
// with per-step log return volatility Vol, starting at Start.
// The same Seed always generates the same data.
type RandomWalk struct {
	N     int
	Start float64
	Vol   float64
	Seed  uint64
}

// Candles generates the candles, one minute apart.
func (rw *RandomWalk) Candles() []Candle {
	nrm := distuv.Normal{Mu: 0, Sigma: rw.Vol, Src: exprand.NewSource(rw.Seed)}
	t0 := time.Unix(0, 0).UTC()
	cds := make([]Candle, rw.N)
	prv := rw.Start
	for i := range cds {
		cls := prv * math.Exp(nrm.Rand())
		wick := math.Abs(nrm.Rand()) * prv
		cds[i] = Candle{
			Time:   t0.Add(time.Duration(i) * time.Minute),
			Open:   prv,
			High:   math.Max(prv, cls) + wick,
			Low:    math.Max(0, math.Min(prv, cls)-wick),
			Close:  cls,
			Volume: 1000 * (1 + math.Abs(nrm.Rand())/rw.Vol),
		}
		prv = cls
	}
	return cds
}

// Data returns the generated candles as rows.
func (rw *RandomWalk) Data() ([][]float64, error) {
	if rw.N <= 0 || rw.Start <= 0 || rw.Vol <= 0 {
		return nil, fmt.Errorf("market: random walk needs positive N, Start and Vol: %w", ErrNotRect)
	}
	cds := rw.Candles()
	rows := make([][]float64, len(cds))
	for i := range cds {
		rows[i] = cds[i].Row()
	}
	return rows, nil
}
