package domain

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestNewReturnMatrix(t *testing.T) {
	m, err := NewReturnMatrix(
		[]time.Time{day(0), day(1)},
		[]string{"a", "b"},
		[][]float64{{0.01, -0.02}, {0.03, 0.00}},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, 2, m.Width())

	d := m.Dense()
	r, c := d.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 0.03, d.At(1, 0))
}

func TestReturnMatrix_Validate(t *testing.T) {
	tests := []struct {
		name   string
		times  []time.Time
		cols   []string
		rows   [][]float64
		target error
	}{
		{"no columns", []time.Time{day(0)}, nil, [][]float64{{}}, ErrConfiguration},
		{"row count", []time.Time{day(0)}, []string{"a"}, nil, ErrConfiguration},
		{"duplicate column", []time.Time{day(0)}, []string{"a", "a"}, [][]float64{{1, 2}}, ErrConfiguration},
		{"unordered", []time.Time{day(1), day(0)}, []string{"a"}, [][]float64{{1}, {2}}, ErrConfiguration},
		{"short row", []time.Time{day(0)}, []string{"a", "b"}, [][]float64{{1}}, ErrDimensionMismatch},
		{"nan", []time.Time{day(0)}, []string{"a"}, [][]float64{{math.NaN()}}, ErrNumerical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReturnMatrix(tt.times, tt.cols, tt.rows)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), err.Error())
		})
	}
}

func TestSeriesTable(t *testing.T) {
	a := Series{Name: "a", Points: []Point{{day(0), 1}, {day(1), 2}}}
	b := Series{Name: "b", Points: []Point{{day(0), 3}, {day(1), 4}}}

	table, err := SeriesTable(a, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, table.Columns)
	assert.Equal(t, [][]float64{{1, 3}, {2, 4}}, table.Values)

	_, err = SeriesTable(a, Series{Name: "c", Points: []Point{{day(0), 1}}})
	assert.Error(t, err)
}

func TestAlignTable(t *testing.T) {
	raw := Series{Name: "raw", Points: []Point{{day(0), 1}, {day(1), 2}, {day(2), 3}}}
	std := Series{Name: "std", Points: []Point{{day(2), -1}, {day(3), 0.5}}}

	table := AlignTable(raw, std)

	require.Len(t, table.Index, 4)
	assert.True(t, table.Index[3].Equal(day(3)))
	assert.Equal(t, []string{"raw", "std"}, table.Columns)
	assert.Equal(t, 3.0, table.Values[2][0])
	assert.Equal(t, -1.0, table.Values[2][1])
	assert.True(t, math.IsNaN(table.Values[0][1]))
	assert.True(t, math.IsNaN(table.Values[3][0]))
}

func TestErrorMessages(t *testing.T) {
	numErr := &NumericalError{Op: "cholesky", Index: 4, Time: day(4), Rows: 10, Cols: 3, Err: errors.New("not positive definite")}
	assert.Equal(t, "numerical error in cholesky at index 4 (2020-01-05) [10x3]: not positive definite", numErr.Error())
	assert.True(t, errors.Is(fmtWrap(numErr), ErrNumerical))

	dimErr := &DimensionMismatchError{Variable: "spread", Index: 2}
	assert.Equal(t, `dimension mismatch at index 2: missing variable "spread"`, dimErr.Error())

	cfgErr := NewConfigurationError("window_size", "must exceed the variable count")
	assert.Equal(t, "configuration error: window_size: must exceed the variable count", cfgErr.Error())
	assert.False(t, errors.Is(cfgErr, ErrNumerical))
}

func fmtWrap(err error) error {
	return errors.Join(errors.New("estimate"), err)
}
