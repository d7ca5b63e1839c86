// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/aristath/systemicrisk/internal/modules/absorption"
	"github.com/aristath/systemicrisk/internal/modules/attribution"
	"github.com/aristath/systemicrisk/internal/modules/dataset"
	"github.com/aristath/systemicrisk/internal/modules/denoise"
	"github.com/aristath/systemicrisk/internal/modules/turbulence"
	"github.com/aristath/systemicrisk/internal/utils"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Directory holding the input datasets (always absolute)
	LogLevel string
	Port     int
	DevMode  bool
	Workers  int // Parallel window workers (0 = GOMAXPROCS)

	// Estimator parameters
	WindowSize          int
	TurbulenceQuantile  float64
	TurbulenceMinPeriod int
	ShortHorizon        int
	LongHorizon         int
	ComponentFraction   float64
	Denoise             bool
	DenoiseBandwidth    float64

	// Inputs
	ReturnDatasets     []Dataset
	PricesAreReturns   bool   // datasets already hold returns; skip the price-to-return conversion
	AttributionDataset string // file name under DataDir, empty disables attribution
	AttributionLabel   string
	AttributionVars    []string
	AttributionRegimes []string

	// Attribution data preparation, applied before observations are built
	AttributionPctChange   []dataset.ColumnStep
	AttributionForwardFill bool
	AttributionSmooth      []dataset.ColumnStep

	RefreshSchedule string // cron expression with seconds, empty disables scheduled refresh
}

// Dataset is a named input file under DataDir.
type Dataset struct {
	Name string
	File string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("RISK_DATA_DIR", "./data")

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	datasets, err := parseDatasets(getEnv("RISK_RETURN_DATASETS", ""))
	if err != nil {
		return nil, err
	}
	pctChange, err := dataset.ParseColumnSteps(getEnvAsList("RISK_ATTRIBUTION_PCT_CHANGE", nil))
	if err != nil {
		return nil, fmt.Errorf("RISK_ATTRIBUTION_PCT_CHANGE: %w", err)
	}
	smooth, err := dataset.ParseColumnSteps(getEnvAsList("RISK_ATTRIBUTION_SMOOTH", nil))
	if err != nil {
		return nil, fmt.Errorf("RISK_ATTRIBUTION_SMOOTH: %w", err)
	}

	cfg := &Config{
		DataDir:                absDataDir,
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		Port:                   getEnvAsInt("GO_PORT", 8001),
		DevMode:                getEnvAsBool("DEV_MODE", false),
		Workers:                getEnvAsInt("RISK_WORKERS", 0),
		WindowSize:             getEnvAsInt("RISK_WINDOW_SIZE", 252),
		TurbulenceQuantile:     getEnvAsFloat("RISK_TURBULENCE_QUANTILE", 0.95),
		TurbulenceMinPeriod:    getEnvAsInt("RISK_TURBULENCE_MIN_PERIODS", 10),
		ShortHorizon:           getEnvAsInt("RISK_AR_SHORT_HORIZON", 21),
		LongHorizon:            getEnvAsInt("RISK_AR_LONG_HORIZON", 252),
		ComponentFraction:      getEnvAsFloat("RISK_AR_COMPONENT_FRACTION", 0.2),
		Denoise:                getEnvAsBool("RISK_AR_DENOISE", false),
		DenoiseBandwidth:       getEnvAsFloat("RISK_DENOISE_BANDWIDTH", denoise.DefaultBandwidth),
		ReturnDatasets:         datasets,
		PricesAreReturns:       getEnvAsBool("RISK_INPUT_IS_RETURNS", false),
		AttributionDataset:     getEnv("RISK_ATTRIBUTION_DATASET", ""),
		AttributionLabel:       getEnv("RISK_ATTRIBUTION_LABEL", "recession"),
		AttributionVars:        getEnvAsList("RISK_ATTRIBUTION_VARIABLES", nil),
		AttributionRegimes:     getEnvAsList("RISK_ATTRIBUTION_REGIMES", nil),
		AttributionPctChange:   pctChange,
		AttributionForwardFill: getEnvAsBool("RISK_ATTRIBUTION_FFILL", false),
		AttributionSmooth:      smooth,
		RefreshSchedule:        getEnv("RISK_REFRESH_SCHEDULE", "0 0 6 * * *"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration before any estimator is built
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Workers < 0 {
		return fmt.Errorf("RISK_WORKERS must be >= 0, got %d", c.Workers)
	}
	if err := c.Absorption().Validate(); err != nil {
		return err
	}
	if err := c.Turbulence().Validate(); err != nil {
		return err
	}
	for _, ds := range c.ReturnDatasets {
		if ds.Name == "attribution" {
			return fmt.Errorf("dataset name %q is reserved", ds.Name)
		}
	}
	if c.AttributionDataset != "" {
		if err := c.Attribution().Validate(); err != nil {
			return err
		}
		if c.AttributionLabel == "" {
			return fmt.Errorf("RISK_ATTRIBUTION_LABEL is required with RISK_ATTRIBUTION_DATASET")
		}
	}
	return nil
}

// Absorption returns the absorption ratio estimator configuration
func (c *Config) Absorption() absorption.Config {
	cfg := absorption.DefaultConfig()
	cfg.WindowSize = c.WindowSize
	cfg.ComponentFraction = c.ComponentFraction
	cfg.ShortHorizon = c.ShortHorizon
	cfg.LongHorizon = c.LongHorizon
	cfg.Denoise = c.Denoise
	cfg.DenoiseConfig = c.DenoiseConfig()
	return cfg
}

// Turbulence returns the turbulence estimator configuration
func (c *Config) Turbulence() turbulence.Config {
	return turbulence.Config{
		WindowSize: c.WindowSize,
		Quantile:   c.TurbulenceQuantile,
		MinPeriods: c.TurbulenceMinPeriod,
	}
}

// DenoiseConfig returns the Marcenko-Pastur fit configuration
func (c *Config) DenoiseConfig() denoise.Config {
	cfg := denoise.DefaultConfig()
	cfg.Bandwidth = c.DenoiseBandwidth
	return cfg
}

// Attribution returns the regime attribution configuration
func (c *Config) Attribution() attribution.Config {
	return attribution.Config{
		Variables:   c.AttributionVars,
		Regimes:     c.AttributionRegimes,
		LabelColumn: c.AttributionLabel,
	}
}

// AttributionPreparation returns the cleaning applied to the attribution
// dataset. Rows missing any attribution variable are dropped.
func (c *Config) AttributionPreparation() dataset.Preparation {
	return dataset.Preparation{
		PctChange:   c.AttributionPctChange,
		ForwardFill: c.AttributionForwardFill,
		Smooth:      c.AttributionSmooth,
		Required:    c.AttributionVars,
	}
}

// DatasetPath resolves a dataset file relative to DataDir
func (c *Config) DatasetPath(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(c.DataDir, file)
}

// parseDatasets parses "name=file,name=file"; a bare file uses its base name
func parseDatasets(value string) ([]Dataset, error) {
	var out []Dataset
	seen := make(map[string]bool)
	for _, item := range utils.ParseAssignments(value) {
		name, file := item.Key, item.Value
		if !item.HasEq {
			file = item.Raw
			name = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		}
		if name == "" || file == "" {
			return nil, fmt.Errorf("invalid dataset entry %q", item.Raw)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate dataset name %q", name)
		}
		seen[name] = true
		out = append(out, Dataset{Name: name, File: file})
	}
	return out, nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return utils.ParseList(value)
}
