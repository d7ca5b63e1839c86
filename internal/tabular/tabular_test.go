package tabular

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/systemicrisk/internal/domain"
)

func sampleTable() domain.Table {
	t0 := time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)
	return domain.Table{
		Index:   []time.Time{t0, t0.AddDate(0, 0, 1)},
		Columns: []string{"turbulence", "turbulence_filtered"},
		Values:  [][]float64{{4.5, 0}, {12.25, math.NaN()}},
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{"": JSON, "JSON": JSON, "csv": CSV, "msgpack": MsgPack, "mpk": MsgPack}
	for in, want := range tests {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)

	assert.Equal(t, "text/csv", CSV.ContentType())
	assert.Equal(t, "application/msgpack", MsgPack.ContentType())
	assert.Equal(t, "application/json", JSON.ContentType())
}

func TestWriteTable_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, CSV, sampleTable()))

	expected := "date,turbulence,turbulence_filtered\n" +
		"2022-06-01,4.5,0\n" +
		"2022-06-02,12.25,\n"
	assert.Equal(t, expected, buf.String())
}

func TestWriteTable_JSONEncodesMissingAsNull(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, JSON, sampleTable()))

	var decoded struct {
		Columns []string `json:"columns"`
		Rows    []struct {
			Time   time.Time  `json:"time"`
			Values []*float64 `json:"values"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Rows, 2)
	assert.Equal(t, 12.25, *decoded.Rows[1].Values[0])
	assert.Nil(t, decoded.Rows[1].Values[1])
}

func TestWriteTable_MsgPack(t *testing.T) {
	in := sampleTable()
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, MsgPack, in))

	out, err := ReadTableMsgPack(&buf)
	require.NoError(t, err)
	assert.Equal(t, in.Columns, out.Columns)
	assert.True(t, in.Index[1].Equal(out.Index[1]))
	assert.Equal(t, 12.25, out.Values[1][0])
	assert.True(t, math.IsNaN(out.Values[1][1]))
}

func TestWriteMatrix_CSV(t *testing.T) {
	var buf bytes.Buffer
	m := Matrix{Labels: []string{"a", "b"}, Values: [][]float64{{1, 0.5}, {0.5, 2}}}
	require.NoError(t, WriteMatrix(&buf, CSV, m))
	assert.Equal(t, ",a,b\na,1,0.5\nb,0.5,2\n", buf.String())
}

func TestSymMatrix(t *testing.T) {
	m := SymMatrix([]string{"a", "b"}, mat.NewSymDense(2, []float64{1, 0.25, 0.25, 4}))
	assert.Equal(t, [][]float64{{1, 0.25}, {0.25, 4}}, m.Values)

	var buf bytes.Buffer
	require.NoError(t, WriteMatrix(&buf, JSON, m))
	assert.JSONEq(t, `{"labels":["a","b"],"values":[[1,0.25],[0.25,4]]}`, buf.String())
}
