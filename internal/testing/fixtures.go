// Package testing provides deterministic synthetic data for package tests.
package testing

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/aristath/systemicrisk/internal/domain"
)

// Days returns n consecutive daily timestamps starting at start.
func Days(start time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out
}

// ColumnNames returns "V1".."Vn".
func ColumnNames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("V%d", i+1)
	}
	return out
}

// FactorReturns builds a T×N return matrix from a single market factor plus
// idiosyncratic noise, so the covariance has one dominant eigenvalue.
func FactorReturns(seed int64, t, n int) *domain.ReturnMatrix {
	rng := rand.New(rand.NewSource(seed))
	rows := make([][]float64, t)
	for i := range rows {
		f := rng.NormFloat64() * 0.01
		row := make([]float64, n)
		for j := range row {
			beta := 0.5 + float64(j)/float64(n)
			row[j] = beta*f + rng.NormFloat64()*0.005
		}
		rows[i] = row
	}
	return &domain.ReturnMatrix{
		Timestamps: Days(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), t),
		Columns:    ColumnNames(n),
		Rows:       rows,
	}
}

// NoiseReturns builds a T×N matrix of independent standard normal draws.
func NoiseReturns(seed int64, t, n int) *domain.ReturnMatrix {
	rng := rand.New(rand.NewSource(seed))
	rows := make([][]float64, t)
	for i := range rows {
		row := make([]float64, n)
		for j := range row {
			row[j] = rng.NormFloat64()
		}
		rows[i] = row
	}
	return &domain.ReturnMatrix{
		Timestamps: Days(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), t),
		Columns:    ColumnNames(n),
		Rows:       rows,
	}
}

// Cluster draws perCluster points around center with the given per-axis spread.
func Cluster(rng *rand.Rand, center []float64, spread float64, perCluster int) [][]float64 {
	out := make([][]float64, perCluster)
	for i := range out {
		p := make([]float64, len(center))
		for j, c := range center {
			p[j] = c + rng.NormFloat64()*spread
		}
		out[i] = p
	}
	return out
}

// WriteCSV writes a dataset file in the loader's layout: a date column followed
// by one column per variable.
func WriteCSV(path string, times []time.Time, columns []string, rows [][]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(append([]string{"date"}, columns...)); err != nil {
		return err
	}
	for i, row := range rows {
		record := make([]string, 0, len(row)+1)
		record = append(record, times[i].Format("2006-01-02"))
		for _, v := range row {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// WriteReturnsCSV writes m with WriteCSV.
func WriteReturnsCSV(path string, m *domain.ReturnMatrix) error {
	return WriteCSV(path, m.Timestamps, m.Columns, m.Rows)
}

// RegimeRows returns two labeled clusters in three columns "x", "y" and
// "recession": n rows around the origin labeled 0 followed by n rows around
// (4, 4) labeled 1.
func RegimeRows(seed int64, n int) (columns []string, rows [][]float64) {
	rng := rand.New(rand.NewSource(seed))
	for label, center := range [][]float64{{0, 0}, {4, 4}} {
		for _, p := range Cluster(rng, center, 0.5, n) {
			rows = append(rows, append(p, float64(label)))
		}
	}
	return []string{"x", "y", "recession"}, rows
}
