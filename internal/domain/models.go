// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// ReturnMatrix is an ordered set of timestamped observations over a fixed set of variables.
// Rows[t][j] is the value of Columns[j] at Timestamps[t].
type ReturnMatrix struct {
	Timestamps []time.Time `json:"timestamps" msgpack:"timestamps"`
	Columns    []string    `json:"columns" msgpack:"columns"`
	Rows       [][]float64 `json:"rows" msgpack:"rows"`
}

// NewReturnMatrix validates the inputs and returns a ReturnMatrix.
// Timestamps must be strictly increasing, every row must have one value per column
// and every value must be finite.
func NewReturnMatrix(timestamps []time.Time, columns []string, rows [][]float64) (*ReturnMatrix, error) {
	m := &ReturnMatrix{Timestamps: timestamps, Columns: columns, Rows: rows}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the ReturnMatrix invariants.
func (m *ReturnMatrix) Validate() error {
	if len(m.Columns) == 0 {
		return NewConfigurationError("columns", "return matrix has no variables")
	}
	if len(m.Timestamps) != len(m.Rows) {
		return NewConfigurationError("rows", fmt.Sprintf("%d timestamps but %d rows", len(m.Timestamps), len(m.Rows)))
	}
	seen := make(map[string]struct{}, len(m.Columns))
	for _, c := range m.Columns {
		if _, dup := seen[c]; dup {
			return NewConfigurationError("columns", fmt.Sprintf("duplicate column %q", c))
		}
		seen[c] = struct{}{}
	}
	for i, row := range m.Rows {
		if i > 0 && !m.Timestamps[i].After(m.Timestamps[i-1]) {
			return NewConfigurationError("timestamps", fmt.Sprintf("timestamp %s at row %d is not after %s",
				m.Timestamps[i].Format(time.RFC3339), i, m.Timestamps[i-1].Format(time.RFC3339)))
		}
		if len(row) != len(m.Columns) {
			return &DimensionMismatchError{Index: i, Time: m.Timestamps[i],
				Reason: fmt.Sprintf("row has %d values, expected %d", len(row), len(m.Columns))}
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return &NumericalError{Op: "validate", Index: i, Time: m.Timestamps[i], Rows: len(m.Rows), Cols: len(m.Columns),
					Err: fmt.Errorf("non-finite value %v in column %q", v, m.Columns[j])}
			}
		}
	}
	return nil
}

// Len returns the number of observations.
func (m *ReturnMatrix) Len() int { return len(m.Rows) }

// Width returns the number of variables.
func (m *ReturnMatrix) Width() int { return len(m.Columns) }

// Dense copies the observations into a T×N gonum matrix.
func (m *ReturnMatrix) Dense() *mat.Dense {
	t, n := m.Len(), m.Width()
	data := make([]float64, 0, t*n)
	for _, row := range m.Rows {
		data = append(data, row...)
	}
	return mat.NewDense(t, n, data)
}

// Point is a single timestamped value.
type Point struct {
	Time  time.Time `json:"time" msgpack:"time"`
	Value float64   `json:"value" msgpack:"value"`
}

// Series is a named, timestamp-ordered sequence of values.
type Series struct {
	Name   string  `json:"name" msgpack:"name"`
	Points []Point `json:"points" msgpack:"points"`
}

// Values returns the series values in order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// Len returns the number of points.
func (s Series) Len() int { return len(s.Points) }

// Table is the one-row-per-timestamp interchange shape consumed by renderers.
type Table struct {
	Index   []time.Time `json:"index" msgpack:"index"`
	Columns []string    `json:"columns" msgpack:"columns"`
	Values  [][]float64 `json:"values" msgpack:"values"`
}

// SeriesTable joins series that share the same index into a single table.
func SeriesTable(series ...Series) (Table, error) {
	if len(series) == 0 {
		return Table{}, nil
	}
	n := series[0].Len()
	t := Table{
		Index:   make([]time.Time, n),
		Columns: make([]string, len(series)),
		Values:  make([][]float64, n),
	}
	for j, s := range series {
		if s.Len() != n {
			return Table{}, fmt.Errorf("series %q has %d points, expected %d", s.Name, s.Len(), n)
		}
		t.Columns[j] = s.Name
	}
	for i := 0; i < n; i++ {
		t.Index[i] = series[0].Points[i].Time
		t.Values[i] = make([]float64, len(series))
		for j, s := range series {
			if !s.Points[i].Time.Equal(t.Index[i]) {
				return Table{}, fmt.Errorf("series %q is not aligned at row %d", s.Name, i)
			}
			t.Values[i][j] = s.Points[i].Value
		}
	}
	return t, nil
}

// AlignTable outer-joins series on their timestamps. Cells a series does not
// cover are NaN. Every series must be timestamp-ordered.
func AlignTable(series ...Series) Table {
	var index []time.Time
	for _, s := range series {
		index = mergeTimes(index, s.Points)
	}
	t := Table{
		Index:   index,
		Columns: make([]string, len(series)),
		Values:  make([][]float64, len(index)),
	}
	for i := range t.Values {
		t.Values[i] = make([]float64, len(series))
		for j := range t.Values[i] {
			t.Values[i][j] = math.NaN()
		}
	}
	for j, s := range series {
		t.Columns[j] = s.Name
		i := 0
		for _, p := range s.Points {
			for !index[i].Equal(p.Time) {
				i++
			}
			t.Values[i][j] = p.Value
		}
	}
	return t
}

func mergeTimes(a []time.Time, points []Point) []time.Time {
	out := make([]time.Time, 0, len(a)+len(points))
	i, j := 0, 0
	for i < len(a) || j < len(points) {
		switch {
		case j == len(points) || (i < len(a) && a[i].Before(points[j].Time)):
			out = append(out, a[i])
			i++
		case i == len(a) || points[j].Time.Before(a[i]):
			out = append(out, points[j].Time)
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}
