// Package dataset loads timestamped numeric tables and prepares them for the
// risk estimators.
package dataset

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/systemicrisk/internal/domain"
	"github.com/aristath/systemicrisk/pkg/formulas"
)

// Frame is a date-indexed column store. Missing values are NaN.
type Frame struct {
	index   []time.Time
	columns []string
	data    [][]float64 // data[column][row]
	lookup  map[string]int
}

// NewFrame builds a frame from column-major data. index must be strictly increasing.
func NewFrame(index []time.Time, columns []string, data [][]float64) (*Frame, error) {
	if len(columns) != len(data) {
		return nil, domain.NewConfigurationError("columns",
			fmt.Sprintf("%d column names for %d columns", len(columns), len(data)))
	}
	f := &Frame{index: index, columns: columns, data: data, lookup: make(map[string]int, len(columns))}
	for j, c := range columns {
		if _, dup := f.lookup[c]; dup {
			return nil, domain.NewConfigurationError("columns", fmt.Sprintf("duplicate column %q", c))
		}
		f.lookup[c] = j
		if len(data[j]) != len(index) {
			return nil, &domain.DimensionMismatchError{Variable: c, Index: -1,
				Reason: fmt.Sprintf("column has %d values for %d dates", len(data[j]), len(index))}
		}
	}
	for i := 1; i < len(index); i++ {
		if !index[i].After(index[i-1]) {
			return nil, domain.NewConfigurationError("index",
				fmt.Sprintf("date %s at row %d is not after %s", index[i].Format("2006-01-02"), i, index[i-1].Format("2006-01-02")))
		}
	}
	return f, nil
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.index) }

// Index returns the row dates.
func (f *Frame) Index() []time.Time { return f.index }

// Columns returns the column names in order.
func (f *Frame) Columns() []string { return f.columns }

// Column returns the values of a column.
func (f *Frame) Column(name string) ([]float64, bool) {
	j, ok := f.lookup[name]
	if !ok {
		return nil, false
	}
	return f.data[j], true
}

// Value returns the value at row i of a column, NaN if the column is unknown.
func (f *Frame) Value(i int, name string) float64 {
	j, ok := f.lookup[name]
	if !ok {
		return math.NaN()
	}
	return f.data[j][i]
}

// Select returns a frame with only the named columns, in the given order.
func (f *Frame) Select(columns ...string) (*Frame, error) {
	data := make([][]float64, len(columns))
	for k, c := range columns {
		col, ok := f.Column(c)
		if !ok {
			return nil, &domain.DimensionMismatchError{Variable: c, Index: -1, Reason: "column not in dataset"}
		}
		data[k] = col
	}
	return NewFrame(f.index, append([]string(nil), columns...), data)
}

// PctChange returns x[t]/x[t-periods] - 1 for every column. The first periods
// rows, and rows whose base is zero or missing, are NaN.
func (f *Frame) PctChange(periods int) *Frame {
	return f.mapColumns(func(col []float64) []float64 {
		return pctChange(col, periods)
	})
}

// PctChangeColumn applies PctChange to a single column.
func (f *Frame) PctChangeColumn(column string, periods int) (*Frame, error) {
	j, ok := f.lookup[column]
	if !ok {
		return nil, &domain.DimensionMismatchError{Variable: column, Index: -1, Reason: "column not in dataset"}
	}
	if periods < 1 {
		return nil, domain.NewConfigurationError("periods", fmt.Sprintf("must be >= 1, got %d", periods))
	}
	data := make([][]float64, len(f.data))
	copy(data, f.data)
	data[j] = pctChange(f.data[j], periods)
	return &Frame{index: f.index, columns: f.columns, data: data, lookup: f.lookup}, nil
}

func pctChange(col []float64, periods int) []float64 {
	out := make([]float64, len(col))
	for i := range col {
		if i < periods || col[i-periods] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = col[i]/col[i-periods] - 1
	}
	return out
}

// ForwardFill replaces missing values with the last observed value of the column.
func (f *Frame) ForwardFill() *Frame {
	return f.mapColumns(func(col []float64) []float64 {
		out := make([]float64, len(col))
		last := math.NaN()
		for i, v := range col {
			if !math.IsNaN(v) {
				last = v
			}
			out[i] = last
		}
		return out
	})
}

// RollingMean replaces column with its trailing mean over window rows.
func (f *Frame) RollingMean(column string, window int) (*Frame, error) {
	j, ok := f.lookup[column]
	if !ok {
		return nil, &domain.DimensionMismatchError{Variable: column, Index: -1, Reason: "column not in dataset"}
	}
	if window < 1 {
		return nil, domain.NewConfigurationError("window", fmt.Sprintf("must be >= 1, got %d", window))
	}
	data := make([][]float64, len(f.data))
	copy(data, f.data)
	data[j] = formulas.RollingMean(f.data[j], window)
	return NewFrame(f.index, f.columns, data)
}

// DropIncomplete removes rows with a missing value in any of columns, or in any
// column when none are named.
func (f *Frame) DropIncomplete(columns ...string) *Frame {
	check := make([]int, 0, len(f.columns))
	if len(columns) == 0 {
		for j := range f.columns {
			check = append(check, j)
		}
	} else {
		for _, c := range columns {
			if j, ok := f.lookup[c]; ok {
				check = append(check, j)
			}
		}
	}

	var keep []int
	for i := range f.index {
		complete := true
		for _, j := range check {
			if math.IsNaN(f.data[j][i]) {
				complete = false
				break
			}
		}
		if complete {
			keep = append(keep, i)
		}
	}
	return f.rows(keep)
}

// ReturnMatrix converts the frame to a validated ReturnMatrix.
func (f *Frame) ReturnMatrix() (*domain.ReturnMatrix, error) {
	rows := make([][]float64, f.Len())
	for i := range rows {
		row := make([]float64, len(f.columns))
		for j := range f.columns {
			row[j] = f.data[j][i]
		}
		rows[i] = row
	}
	return domain.NewReturnMatrix(append([]time.Time(nil), f.index...), append([]string(nil), f.columns...), rows)
}

// Returns converts a price frame to simple returns, dropping incomplete rows.
func (f *Frame) Returns() (*domain.ReturnMatrix, error) {
	return f.PctChange(1).DropIncomplete().ReturnMatrix()
}

func (f *Frame) mapColumns(fn func([]float64) []float64) *Frame {
	data := make([][]float64, len(f.data))
	for j, col := range f.data {
		data[j] = fn(col)
	}
	return &Frame{index: f.index, columns: f.columns, data: data, lookup: f.lookup}
}

func (f *Frame) rows(keep []int) *Frame {
	index := make([]time.Time, len(keep))
	data := make([][]float64, len(f.data))
	for j := range data {
		data[j] = make([]float64, len(keep))
	}
	for k, i := range keep {
		index[k] = f.index[i]
		for j := range data {
			data[j][k] = f.data[j][i]
		}
	}
	return &Frame{index: index, columns: f.columns, data: data, lookup: f.lookup}
}
