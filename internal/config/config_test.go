package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/systemicrisk/internal/modules/dataset"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RISK_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 252, cfg.WindowSize)
	assert.Equal(t, 0.95, cfg.TurbulenceQuantile)
	assert.Equal(t, 21, cfg.ShortHorizon)
	assert.Equal(t, 252, cfg.LongHorizon)
	assert.Equal(t, 0.2, cfg.ComponentFraction)
	assert.False(t, cfg.Denoise)
	assert.Empty(t, cfg.ReturnDatasets)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("RISK_DATA_DIR", t.TempDir())
	t.Setenv("GO_PORT", "9100")
	t.Setenv("RISK_WINDOW_SIZE", "120")
	t.Setenv("RISK_TURBULENCE_QUANTILE", "0.9")
	t.Setenv("RISK_AR_DENOISE", "true")
	t.Setenv("RISK_DENOISE_BANDWIDTH", "0.05")
	t.Setenv("RISK_RETURN_DATASETS", "equities=spx.csv, sectors.xlsx")
	t.Setenv("RISK_ATTRIBUTION_DATASET", "macro.csv")
	t.Setenv("RISK_ATTRIBUTION_VARIABLES", "spread, yield ,growth")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, []Dataset{{Name: "equities", File: "spx.csv"}, {Name: "sectors", File: "sectors.xlsx"}}, cfg.ReturnDatasets)
	assert.Equal(t, []string{"spread", "yield", "growth"}, cfg.AttributionVars)

	ar := cfg.Absorption()
	assert.Equal(t, 120, ar.WindowSize)
	assert.True(t, ar.Denoise)
	assert.Equal(t, 0.05, ar.DenoiseConfig.Bandwidth)

	turb := cfg.Turbulence()
	assert.Equal(t, 120, turb.WindowSize)
	assert.Equal(t, 0.9, turb.Quantile)
	assert.Equal(t, 10, turb.MinPeriods)

	att := cfg.Attribution()
	assert.Equal(t, "recession", att.LabelColumn)
	assert.Equal(t, filepath.Join(cfg.DataDir, "macro.csv"), cfg.DatasetPath(cfg.AttributionDataset))
}

func TestLoad_AttributionPreparation(t *testing.T) {
	t.Setenv("RISK_DATA_DIR", t.TempDir())
	t.Setenv("RISK_ATTRIBUTION_DATASET", "macro.csv")
	t.Setenv("RISK_ATTRIBUTION_VARIABLES", "ip,payrolls,spread")
	t.Setenv("RISK_ATTRIBUTION_PCT_CHANGE", "ip:12, payrolls:12")
	t.Setenv("RISK_ATTRIBUTION_FFILL", "true")
	t.Setenv("RISK_ATTRIBUTION_SMOOTH", "spread:12")

	cfg, err := Load()
	require.NoError(t, err)

	prep := cfg.AttributionPreparation()
	assert.Equal(t, []dataset.ColumnStep{{Column: "ip", Periods: 12}, {Column: "payrolls", Periods: 12}}, prep.PctChange)
	assert.True(t, prep.ForwardFill)
	assert.Equal(t, []dataset.ColumnStep{{Column: "spread", Periods: 12}}, prep.Smooth)
	assert.Equal(t, []string{"ip", "payrolls", "spread"}, prep.Required)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"quantile out of range", map[string]string{"RISK_TURBULENCE_QUANTILE": "1.5"}},
		{"short horizon above long", map[string]string{"RISK_AR_SHORT_HORIZON": "300"}},
		{"duplicate dataset", map[string]string{"RISK_RETURN_DATASETS": "a=x.csv,a=y.csv"}},
		{"attribution without variables", map[string]string{"RISK_ATTRIBUTION_DATASET": "macro.csv"}},
		{"reserved dataset name", map[string]string{"RISK_RETURN_DATASETS": "attribution=x.csv"}},
		{"bad port", map[string]string{"GO_PORT": "70000"}},
		{"pct change without periods", map[string]string{"RISK_ATTRIBUTION_PCT_CHANGE": "ip"}},
		{"zero smoothing window", map[string]string{"RISK_ATTRIBUTION_SMOOTH": "spread:0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("RISK_DATA_DIR", t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestDatasetPath_Absolute(t *testing.T) {
	cfg := &Config{DataDir: "/data"}
	assert.Equal(t, "/tmp/x.csv", cfg.DatasetPath("/tmp/x.csv"))
	assert.Equal(t, "/data/x.csv", cfg.DatasetPath("x.csv"))
}
