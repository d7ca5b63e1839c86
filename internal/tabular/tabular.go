// Package tabular serializes indicator tables for external renderers as CSV,
// JSON or MessagePack.
package tabular

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/systemicrisk/internal/domain"
)

// Format is a serialization format.
type Format string

const (
	CSV     Format = "csv"
	JSON    Format = "json"
	MsgPack Format = "msgpack"
)

// ParseFormat parses a format name; the empty string means JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return JSON, nil
	case "csv":
		return CSV, nil
	case "msgpack", "mpk":
		return MsgPack, nil
	}
	return "", fmt.Errorf("unknown format %q", s)
}

// ContentType returns the HTTP content type of the format.
func (f Format) ContentType() string {
	switch f {
	case CSV:
		return "text/csv"
	case MsgPack:
		return "application/msgpack"
	default:
		return "application/json"
	}
}

// Matrix is a labeled square matrix such as a covariance estimate.
type Matrix struct {
	Labels []string    `json:"labels" msgpack:"labels"`
	Values [][]float64 `json:"values" msgpack:"values"`
}

// SymMatrix labels a symmetric matrix.
func SymMatrix(labels []string, m mat.Symmetric) Matrix {
	n := m.SymmetricDim()
	out := Matrix{Labels: labels, Values: make([][]float64, n)}
	for i := range out.Values {
		out.Values[i] = make([]float64, n)
		for j := range out.Values[i] {
			out.Values[i][j] = m.At(i, j)
		}
	}
	return out
}

// jsonRow is one table row; missing values encode as null.
type jsonRow struct {
	Time   time.Time  `json:"time"`
	Values []*float64 `json:"values"`
}

type jsonTable struct {
	Columns []string  `json:"columns"`
	Rows    []jsonRow `json:"rows"`
}

// WriteTable writes t in format f, one row per timestamp.
func WriteTable(w io.Writer, f Format, t domain.Table) error {
	switch f {
	case CSV:
		return writeTableCSV(w, t)
	case MsgPack:
		return msgpack.NewEncoder(w).Encode(t)
	default:
		out := jsonTable{Columns: t.Columns, Rows: make([]jsonRow, len(t.Index))}
		for i, ts := range t.Index {
			out.Rows[i] = jsonRow{Time: ts, Values: nullable(t.Values[i])}
		}
		return json.NewEncoder(w).Encode(out)
	}
}

// WriteMatrix writes m in format f. CSV output has a leading label column.
func WriteMatrix(w io.Writer, f Format, m Matrix) error {
	switch f {
	case CSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(append([]string{""}, m.Labels...)); err != nil {
			return err
		}
		for i, row := range m.Values {
			if err := cw.Write(append([]string{m.Labels[i]}, formatRow(row)...)); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	case MsgPack:
		return msgpack.NewEncoder(w).Encode(m)
	default:
		return json.NewEncoder(w).Encode(m)
	}
}

// ReadTableMsgPack decodes a table written with WriteTable in MsgPack format.
func ReadTableMsgPack(r io.Reader) (domain.Table, error) {
	var t domain.Table
	if err := msgpack.NewDecoder(r).Decode(&t); err != nil {
		return domain.Table{}, fmt.Errorf("failed to decode table: %w", err)
	}
	return t, nil
}

func writeTableCSV(w io.Writer, t domain.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"date"}, t.Columns...)); err != nil {
		return err
	}
	for i, ts := range t.Index {
		if err := cw.Write(append([]string{formatTime(ts)}, formatRow(t.Values[i])...)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatTime(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}

func formatRow(values []float64) []string {
	out := make([]string, len(values))
	for j, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[j] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return out
}

func nullable(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for j := range values {
		if math.IsNaN(values[j]) || math.IsInf(values[j], 0) {
			continue
		}
		v := values[j]
		out[j] = &v
	}
	return out
}
