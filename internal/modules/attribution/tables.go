package attribution

import (
	"time"

	"github.com/aristath/systemicrisk/internal/domain"
)

// Table names.
const (
	DistanceTable    = "distance"
	LikelihoodTable  = "likelihood"
	ProbabilityTable = "probability"
	ImportanceTable  = "importance"
)

// TableNames lists the tables a Result can render, in display order.
var TableNames = []string{ProbabilityTable, DistanceTable, LikelihoodTable, ImportanceTable}

// Table renders one view of the result. Regime tables have one column per
// regime; the importance table has one column per variable. ok is false for
// an unknown name.
func (r *Result) Table(name string) (domain.Table, bool) {
	switch name {
	case DistanceTable:
		return r.regimeTable(func(s RegimeScore) float64 { return s.Distance }), true
	case LikelihoodTable:
		return r.regimeTable(func(s RegimeScore) float64 { return s.Likelihood }), true
	case ProbabilityTable:
		return r.regimeTable(func(s RegimeScore) float64 { return s.Probability }), true
	case ImportanceTable:
		t := domain.Table{
			Index:   make([]time.Time, len(r.Records)),
			Columns: append([]string(nil), r.Variables...),
			Values:  make([][]float64, len(r.Records)),
		}
		for i, rec := range r.Records {
			t.Index[i] = rec.Time
			t.Values[i] = append([]float64(nil), rec.Importance...)
		}
		return t, true
	}
	return domain.Table{}, false
}

func (r *Result) regimeTable(value func(RegimeScore) float64) domain.Table {
	t := domain.Table{
		Index:   make([]time.Time, len(r.Records)),
		Columns: append([]string(nil), r.Regimes...),
		Values:  make([][]float64, len(r.Records)),
	}
	for i, rec := range r.Records {
		t.Index[i] = rec.Time
		row := make([]float64, len(rec.Scores))
		for k, s := range rec.Scores {
			row[k] = value(s)
		}
		t.Values[i] = row
	}
	return t
}
