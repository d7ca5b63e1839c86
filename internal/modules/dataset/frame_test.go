package dataset

import (
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/aristath/systemicrisk/internal/domain"
)

const pricesCSV = `date,SPX,TLT,GLD
2021-01-05,100,50,20
2021-01-04,98,51,
2021-01-06,101,49.5,20.2
2021-01-07,NA,49,20.4
2021-01-08,103,48,20.6
`

func TestReadCSV(t *testing.T) {
	f, err := ReadCSV(strings.NewReader(pricesCSV))
	require.NoError(t, err)

	assert.Equal(t, 5, f.Len())
	assert.Equal(t, []string{"SPX", "TLT", "GLD"}, f.Columns())
	// sorted by date
	assert.Equal(t, time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC), f.Index()[0])

	spx, ok := f.Column("SPX")
	require.True(t, ok)
	assert.Equal(t, 98.0, spx[0])
	assert.True(t, math.IsNaN(spx[3]))
	assert.True(t, math.IsNaN(f.Value(0, "GLD")))
	assert.True(t, math.IsNaN(f.Value(0, "missing")))
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no value columns", "date\n2021-01-01\n"},
		{"bad date", "date,a\nyesterday,1\n"},
		{"bad number", "date,a\n2021-01-01,abc\n"},
		{"duplicate date", "date,a\n2021-01-01,1\n2021-01-01,2\n"},
		{"duplicate column", "date,a,a\n2021-01-01,1,2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestReturns(t *testing.T) {
	f, err := ReadCSV(strings.NewReader(pricesCSV))
	require.NoError(t, err)

	m, err := f.Select("SPX", "TLT")
	require.NoError(t, err)
	returns, err := m.ForwardFill().Returns()
	require.NoError(t, err)

	// first row has no base; forward fill covers the NA on 01-07
	require.Equal(t, 4, returns.Len())
	assert.Equal(t, []string{"SPX", "TLT"}, returns.Columns)
	assert.InDelta(t, 100.0/98-1, returns.Rows[0][0], 1e-12)
	assert.InDelta(t, 0.0, returns.Rows[2][0], 1e-12)
	assert.InDelta(t, 103.0/101-1, returns.Rows[3][0], 1e-12)
}

func TestDropIncomplete(t *testing.T) {
	f, err := ReadCSV(strings.NewReader(pricesCSV))
	require.NoError(t, err)

	assert.Equal(t, 3, f.DropIncomplete().Len())
	assert.Equal(t, 4, f.DropIncomplete("GLD").Len())
	assert.Equal(t, 5, f.DropIncomplete("TLT").Len())
}

func TestRollingMean(t *testing.T) {
	f, err := ReadCSV(strings.NewReader(pricesCSV))
	require.NoError(t, err)

	smoothed, err := f.RollingMean("TLT", 2)
	require.NoError(t, err)
	tlt, _ := smoothed.Column("TLT")
	assert.True(t, math.IsNaN(tlt[0]))
	assert.InDelta(t, 50.5, tlt[1], 1e-12)

	// the source frame is untouched
	orig, _ := f.Column("TLT")
	assert.Equal(t, 51.0, orig[0])

	_, err = f.RollingMean("nope", 2)
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))
}

func TestSelect_UnknownColumn(t *testing.T) {
	f, err := ReadCSV(strings.NewReader(pricesCSV))
	require.NoError(t, err)

	_, err = f.Select("SPX", "VIX")
	var dimErr *domain.DimensionMismatchError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, "VIX", dimErr.Variable)
}

func TestLoadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "macro.xlsx")

	book := excelize.NewFile()
	rows := [][]interface{}{
		{"date", "spread", "recession"},
		{"2020-01-31", 1.5, 0},
		{"2020-02-29", 1.2, 0},
		{"2020-03-31", 0.4, 1},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, book.SetSheetRow("Sheet1", cell, &row))
	}
	require.NoError(t, book.SaveAs(path))
	require.NoError(t, book.Close())

	f, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, 3, f.Len())
	assert.Equal(t, []string{"spread", "recession"}, f.Columns())
	assert.Equal(t, 1.0, f.Value(2, "recession"))
	assert.InDelta(t, 0.4, f.Value(2, "spread"), 1e-12)

	_, err = LoadXLSX(path, "Missing")
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"2021-03-04", "2021-03-04T00:00:00Z", "03/04/2021"} {
		d, err := parseDate(s)
		require.NoError(t, err, s)
		assert.Equal(t, time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC), d, s)
	}

	d, err := parseDate("44259")
	require.NoError(t, err)
	assert.Equal(t, 2021, d.Year())
}
