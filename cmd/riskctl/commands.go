package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aristath/systemicrisk/internal/domain"
	"github.com/aristath/systemicrisk/internal/modules/absorption"
	"github.com/aristath/systemicrisk/internal/modules/attribution"
	"github.com/aristath/systemicrisk/internal/modules/dataset"
	"github.com/aristath/systemicrisk/internal/modules/denoise"
	"github.com/aristath/systemicrisk/internal/modules/turbulence"
	"github.com/aristath/systemicrisk/internal/tabular"
)

func newAbsorptionCmd(opts *globalOptions) *cobra.Command {
	cfg := absorption.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "absorption",
		Short: "Rolling absorption ratio and its standardized shift",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.outputFormat()
			if err != nil {
				return err
			}
			m, err := opts.returns()
			if err != nil {
				return err
			}
			res, err := opts.service().ComputeAbsorption(cmd.Context(), m, cfg)
			if err != nil {
				return err
			}
			return tabular.WriteTable(cmd.OutOrStdout(), format, domain.AlignTable(res.Raw, res.Standardized))
		},
	}

	f := cmd.Flags()
	f.IntVar(&cfg.WindowSize, "window", cfg.WindowSize, "Rolling window size")
	f.Float64Var(&cfg.ComponentFraction, "fraction", cfg.ComponentFraction, "Fraction of eigenvectors treated as absorbing")
	f.IntVar(&cfg.Components, "components", 0, "Explicit number of eigenvectors (overrides --fraction)")
	f.IntVar(&cfg.ShortHorizon, "short", cfg.ShortHorizon, "Short standardization horizon")
	f.IntVar(&cfg.LongHorizon, "long", cfg.LongHorizon, "Long standardization horizon")
	f.BoolVar(&cfg.Denoise, "denoise", false, "Denoise each window covariance before decomposition")
	f.Float64Var(&cfg.DenoiseConfig.Bandwidth, "bandwidth", cfg.DenoiseConfig.Bandwidth, "Kernel bandwidth of the noise fit")
	return cmd
}

func newTurbulenceCmd(opts *globalOptions) *cobra.Command {
	cfg := turbulence.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "turbulence",
		Short: "Rolling financial turbulence with expanding-quantile filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.outputFormat()
			if err != nil {
				return err
			}
			m, err := opts.returns()
			if err != nil {
				return err
			}
			res, err := opts.service().ComputeTurbulence(cmd.Context(), m, cfg)
			if err != nil {
				return err
			}
			return tabular.WriteTable(cmd.OutOrStdout(), format, domain.AlignTable(res.Raw, res.Threshold, res.Filtered))
		},
	}

	f := cmd.Flags()
	f.IntVar(&cfg.WindowSize, "window", cfg.WindowSize, "Rolling window size")
	f.Float64Var(&cfg.Quantile, "quantile", cfg.Quantile, "Expanding quantile used as the turbulence threshold")
	f.IntVar(&cfg.MinPeriods, "min-periods", cfg.MinPeriods, "Values required before the threshold is defined")
	return cmd
}

func newDenoiseCmd(opts *globalOptions) *cobra.Command {
	cfg := denoise.DefaultConfig()
	var correlation bool

	cmd := &cobra.Command{
		Use:   "denoise",
		Short: "Marcenko-Pastur denoised covariance of the whole sample",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.outputFormat()
			if err != nil {
				return err
			}
			m, err := opts.returns()
			if err != nil {
				return err
			}
			res, err := opts.service().ComputeDenoise(m, cfg)
			if err != nil {
				return err
			}
			if res.Fallback {
				cmd.PrintErrln("warning: noise fit did not converge, covariance left unchanged")
			}
			out := tabular.SymMatrix(m.Columns, res.Covariance)
			if correlation {
				out = tabular.SymMatrix(m.Columns, res.Correlation)
			}
			return tabular.WriteMatrix(cmd.OutOrStdout(), format, out)
		},
	}

	f := cmd.Flags()
	f.Float64Var(&cfg.Bandwidth, "bandwidth", cfg.Bandwidth, "Kernel bandwidth of the noise fit")
	f.BoolVar(&correlation, "correlation", false, "Write the denoised correlation instead of the covariance")
	return cmd
}

func newAttributionCmd(opts *globalOptions) *cobra.Command {
	var (
		label     string
		variables []string
		regimes   []string
		table     string
		pctChange []string
		smooth    []string
		ffill     bool
	)

	cmd := &cobra.Command{
		Use:   "attribution",
		Short: "Regime probabilities and variable importance per observation",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.outputFormat()
			if err != nil {
				return err
			}
			raw, err := opts.frame()
			if err != nil {
				return err
			}
			prep := dataset.Preparation{ForwardFill: ffill, Required: variables}
			if prep.PctChange, err = dataset.ParseColumnSteps(pctChange); err != nil {
				return fmt.Errorf("--pct-change: %w", err)
			}
			if prep.Smooth, err = dataset.ParseColumnSteps(smooth); err != nil {
				return fmt.Errorf("--smooth: %w", err)
			}
			frame, err := prep.Apply(raw)
			if err != nil {
				return err
			}
			cfg := attribution.Config{Variables: variables, Regimes: regimes, LabelColumn: label}
			obs, err := attribution.FromFrame(frame, cfg)
			if err != nil {
				return err
			}
			res, err := opts.service().ComputeAttribution(cmd.Context(), obs, cfg)
			if err != nil {
				return err
			}
			t, ok := res.Table(table)
			if !ok {
				return fmt.Errorf("unknown table %q (one of %s)", table, strings.Join(attribution.TableNames, ", "))
			}
			return tabular.WriteTable(cmd.OutOrStdout(), format, t)
		},
	}

	f := cmd.Flags()
	f.StringVar(&label, "label", "recession", "Column holding the regime label")
	f.StringSliceVar(&variables, "variables", nil, "Attribution variables")
	f.StringSliceVar(&regimes, "regimes", nil, "Known regime labels (derived from the data when empty)")
	f.StringVar(&table, "table", attribution.ProbabilityTable, "Output table: "+strings.Join(attribution.TableNames, ", "))
	f.StringSliceVar(&pctChange, "pct-change", nil, "Growth rates to apply first, as column:periods")
	f.BoolVar(&ffill, "ffill", false, "Forward-fill missing values after growth rates")
	f.StringSliceVar(&smooth, "smooth", nil, "Trailing means to apply after filling, as column:periods")
	_ = cmd.MarkFlagRequired("variables")
	return cmd
}
