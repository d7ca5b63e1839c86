package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/aristath/systemicrisk/internal/domain"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006",
	"1/2/06",
	"01-02-06",
	"2006-01",
	"2006.01",
}

var missingTokens = map[string]struct{}{
	"": {}, "na": {}, "n/a": {}, "nan": {}, ".": {}, "null": {}, "-": {},
}

// Load reads a CSV or XLSX file, chosen by extension. sheet is only used for
// spreadsheets and defaults to the first sheet.
func Load(path, sheet string) (*Frame, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return LoadXLSX(path, sheet)
	default:
		return LoadCSV(path)
	}
}

// LoadCSV reads a CSV file from disk.
func LoadCSV(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer file.Close()

	f, err := ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	return f, nil
}

// ReadCSV parses a header row followed by one row per date. The first column
// holds the date; the remaining columns are numeric. Rows are sorted by date.
func ReadCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	return fromRecords(records)
}

// LoadXLSX reads a sheet laid out like the CSV format.
func LoadXLSX(path, sheet string) (*Frame, error) {
	file, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer file.Close()

	if sheet == "" {
		sheets := file.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook %s has no sheets", filepath.Base(path))
		}
		sheet = sheets[0]
	}

	rows, err := file.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return fromRecords(rows)
}

type record struct {
	date   time.Time
	values []float64
}

func fromRecords(records [][]string) (*Frame, error) {
	if len(records) == 0 {
		return nil, domain.NewConfigurationError("header", "dataset is empty")
	}
	header := records[0]
	if len(header) < 2 {
		return nil, domain.NewConfigurationError("header", "need a date column and at least one value column")
	}
	columns := make([]string, len(header)-1)
	for j, h := range header[1:] {
		columns[j] = strings.TrimSpace(h)
	}

	parsed := make([]record, 0, len(records)-1)
	for i, row := range records[1:] {
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		date, err := parseDate(row[0])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		rec := record{date: date, values: make([]float64, len(columns))}
		for j := range columns {
			cell := ""
			if j+1 < len(row) {
				cell = row[j+1]
			}
			v, err := parseValue(cell)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i+2, columns[j], err)
			}
			rec.values[j] = v
		}
		parsed = append(parsed, rec)
	}

	sort.SliceStable(parsed, func(a, b int) bool { return parsed[a].date.Before(parsed[b].date) })

	index := make([]time.Time, len(parsed))
	data := make([][]float64, len(columns))
	for j := range data {
		data[j] = make([]float64, len(parsed))
	}
	for i, rec := range parsed {
		if i > 0 && rec.date.Equal(parsed[i-1].date) {
			return nil, domain.NewConfigurationError("index",
				fmt.Sprintf("duplicate date %s", rec.date.Format("2006-01-02")))
		}
		index[i] = rec.date
		for j, v := range rec.values {
			data[j][i] = v
		}
	}
	return NewFrame(index, columns, data)
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	// spreadsheet serial dates
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if _, missing := missingTokens[strings.ToLower(s)]; missing {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}
