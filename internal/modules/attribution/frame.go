package attribution

import (
	"fmt"
	"math"
	"strconv"

	"github.com/aristath/systemicrisk/internal/domain"
	"github.com/aristath/systemicrisk/internal/modules/dataset"
)

// FromFrame builds observations from a dataset frame. The label column value
// becomes the regime id ("0", "1", ...); a missing label leaves the row
// unlabeled. Missing variable values are left out of the observation so Run
// reports them as dimension mismatches.
func FromFrame(f *dataset.Frame, cfg Config) ([]Observation, error) {
	if cfg.LabelColumn == "" {
		return nil, domain.NewConfigurationError("label_column", "no regime label column")
	}
	labels, ok := f.Column(cfg.LabelColumn)
	if !ok {
		return nil, domain.NewConfigurationError("label_column",
			fmt.Sprintf("column %q not in dataset", cfg.LabelColumn))
	}

	index := f.Index()
	obs := make([]Observation, f.Len())
	for i := range obs {
		values := make(map[string]float64, len(cfg.Variables))
		for _, name := range cfg.Variables {
			if v := f.Value(i, name); !math.IsNaN(v) {
				values[name] = v
			}
		}
		obs[i] = Observation{Time: index[i], Values: values}
		if !math.IsNaN(labels[i]) {
			obs[i].Regime = strconv.FormatFloat(labels[i], 'f', -1, 64)
		}
	}
	return obs, nil
}
