package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/systemicrisk/internal/config"
	"github.com/aristath/systemicrisk/internal/domain"
	"github.com/aristath/systemicrisk/internal/modules/dataset"
	"github.com/aristath/systemicrisk/internal/services"
	"github.com/aristath/systemicrisk/internal/tabular"
	"github.com/aristath/systemicrisk/internal/workers"
	"github.com/aristath/systemicrisk/pkg/logger"
)

// globalOptions are the flags shared by every subcommand
type globalOptions struct {
	file      string
	sheet     string
	isReturns bool
	format    string
	workers   int
	logLevel  string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "riskctl",
		Short: "Compute systemic-risk indicators from a dataset file",
		Long: `riskctl computes the absorption ratio, financial turbulence, a
random-matrix denoised covariance and regime attribution tables from a CSV or
XLSX dataset (first column dates, remaining columns numeric).

Examples:
  riskctl absorption --file prices.csv --window 252 --fraction 0.2
  riskctl turbulence --file returns.csv --returns --quantile 0.95
  riskctl denoise --file returns.csv --returns --correlation
  riskctl attribution --file macro.xlsx --variables spread,yield --label recession`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.file, "file", "", "Dataset file (.csv or .xlsx)")
	flags.StringVar(&opts.sheet, "sheet", "", "XLSX sheet name (defaults to the first sheet)")
	flags.BoolVar(&opts.isReturns, "returns", false, "Dataset already holds returns; skip the price-to-return conversion")
	flags.StringVar(&opts.format, "format", "csv", "Output format: csv, json, msgpack")
	flags.IntVar(&opts.workers, "workers", 0, "Parallel window workers (0 = GOMAXPROCS)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	_ = root.MarkPersistentFlagRequired("file")

	root.AddCommand(
		newAbsorptionCmd(opts),
		newTurbulenceCmd(opts),
		newDenoiseCmd(opts),
		newAttributionCmd(opts),
	)
	return root
}

func (o *globalOptions) logger() zerolog.Logger {
	return logger.New(logger.Config{Level: o.logLevel, Pretty: true, Output: os.Stderr})
}

func (o *globalOptions) service() *services.RiskService {
	cfg := &config.Config{Workers: o.workers}
	return services.NewRiskService(cfg, workers.NewWorkerPool(o.workers), nil, nil, o.logger())
}

func (o *globalOptions) outputFormat() (tabular.Format, error) {
	return tabular.ParseFormat(o.format)
}

func (o *globalOptions) frame() (*dataset.Frame, error) {
	return dataset.Load(o.file, o.sheet)
}

func (o *globalOptions) returns() (*domain.ReturnMatrix, error) {
	f, err := o.frame()
	if err != nil {
		return nil, err
	}
	if o.isReturns {
		return f.DropIncomplete().ReturnMatrix()
	}
	return f.Returns()
}
