// Package attribution explains regime probabilities with regime-conditional
// Gaussian models: every observation is scored against each regime's mean and
// covariance, and the resulting posterior sensitivity is apportioned across the
// input variables.
package attribution

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/systemicrisk/internal/domain"
	"github.com/aristath/systemicrisk/internal/workers"
)

var logTwoPi = math.Log(2 * math.Pi)

// Observation is one labeled input row. An empty Regime marks an unlabeled
// observation: it is scored but does not contribute to the regime statistics.
type Observation struct {
	Time   time.Time          `json:"time"`
	Values map[string]float64 `json:"values"`
	Regime string             `json:"regime,omitempty"`
}

// Config selects the attribution inputs.
type Config struct {
	Variables   []string // attribution variables, in output column order
	Regimes     []string // known regime set; derived from the labels when empty
	LabelColumn string   // column holding the regime label when building from a frame
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if len(c.Variables) == 0 {
		return domain.NewConfigurationError("variables", "no attribution variables")
	}
	if dup := firstDuplicate(c.Variables); dup != "" {
		return domain.NewConfigurationError("variables", fmt.Sprintf("duplicate variable %q", dup))
	}
	if dup := firstDuplicate(c.Regimes); dup != "" {
		return domain.NewConfigurationError("regimes", fmt.Sprintf("duplicate regime %q", dup))
	}
	for _, r := range c.Regimes {
		if r == "" {
			return domain.NewConfigurationError("regimes", "empty regime label")
		}
	}
	return nil
}

// RegimeStatistics is the Gaussian model of one regime.
type RegimeStatistics struct {
	Regime       string
	Observations int
	Mean         []float64
	Covariance   *mat.SymDense

	chol   mat.Cholesky
	logDet float64
}

// RegimeScore is one observation scored against one regime.
type RegimeScore struct {
	Regime        string  `json:"regime" msgpack:"regime"`
	Distance      float64 `json:"distance" msgpack:"distance"` // squared Mahalanobis distance
	LogLikelihood float64 `json:"log_likelihood" msgpack:"log_likelihood"`
	Likelihood    float64 `json:"likelihood" msgpack:"likelihood"`
	Probability   float64 `json:"probability" msgpack:"probability"`
}

// Record is the attribution of a single observation.
type Record struct {
	Time        time.Time     `json:"time" msgpack:"time"`
	Regime      string        `json:"regime,omitempty" msgpack:"regime,omitempty"`
	Scores      []RegimeScore `json:"scores" msgpack:"scores"` // in Result.Regimes order
	Sensitivity []float64     `json:"sensitivity" msgpack:"sensitivity"`
	Importance  []float64     `json:"importance" msgpack:"importance"`
}

// Result is the output of an attribution run.
type Result struct {
	Regimes   []string
	Variables []string
	Stats     []*RegimeStatistics
	StdDevs   []float64 // per-variable sample standard deviation over all observations
	Records   []Record
}

// Engine runs regime attribution.
type Engine struct {
	cfg  Config
	pool *workers.WorkerPool
	log  zerolog.Logger
}

// NewEngine creates an attribution engine.
func NewEngine(cfg Config, pool *workers.WorkerPool, log zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if pool == nil {
		pool = workers.NewWorkerPool(0)
	}
	return &Engine{
		cfg:  cfg,
		pool: pool,
		log:  log.With().Str("component", "regime_attribution").Logger(),
	}, nil
}

// Run fits one Gaussian per regime and attributes every observation.
func (e *Engine) Run(ctx context.Context, obs []Observation) (*Result, error) {
	start := time.Now()
	n := len(e.cfg.Variables)

	x, err := e.design(obs)
	if err != nil {
		return nil, err
	}
	regimes, err := e.regimes(obs)
	if err != nil {
		return nil, err
	}

	stats := make([]*RegimeStatistics, len(regimes))
	for i, r := range regimes {
		s, err := fitRegime(r, obs, x, n)
		if err != nil {
			return nil, err
		}
		stats[i] = s
	}

	std := make([]float64, n)
	for j := range std {
		std[j] = stat.StdDev(mat.Col(nil, j, x), nil)
	}

	records := make([]Record, len(obs))
	err = e.pool.Run(ctx, len(obs), func(_ context.Context, i int) error {
		rec, err := score(mat.Row(nil, i, x), stats, std)
		if err != nil {
			return &domain.NumericalError{Op: "attribution", Index: i, Time: obs[i].Time, Rows: len(obs), Cols: n, Err: err}
		}
		rec.Time = obs[i].Time
		rec.Regime = obs[i].Regime
		records[i] = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Int("observations", len(obs)).
		Int("variables", n).
		Strs("regimes", regimes).
		Dur("elapsed", time.Since(start)).
		Msg("Regime attribution computed")

	return &Result{
		Regimes:   regimes,
		Variables: append([]string(nil), e.cfg.Variables...),
		Stats:     stats,
		StdDevs:   std,
		Records:   records,
	}, nil
}

// design extracts the T×N matrix of attribution variables.
func (e *Engine) design(obs []Observation) (*mat.Dense, error) {
	if len(obs) == 0 {
		return nil, domain.NewConfigurationError("observations", "no observations")
	}
	n := len(e.cfg.Variables)
	x := mat.NewDense(len(obs), n, nil)
	for i, o := range obs {
		if i > 0 && !o.Time.After(obs[i-1].Time) {
			return nil, domain.NewConfigurationError("observations",
				fmt.Sprintf("observation %d at %s is not after the previous one", i, o.Time.Format(time.RFC3339)))
		}
		for j, name := range e.cfg.Variables {
			v, ok := o.Values[name]
			if !ok {
				return nil, &domain.DimensionMismatchError{Variable: name, Index: i, Time: o.Time}
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &domain.NumericalError{Op: "validate", Index: i, Time: o.Time, Rows: len(obs), Cols: n,
					Err: fmt.Errorf("non-finite value %v for %q", v, name)}
			}
			x.Set(i, j, v)
		}
	}
	return x, nil
}

// regimes returns the configured regime set, or the sorted distinct labels.
func (e *Engine) regimes(obs []Observation) ([]string, error) {
	if len(e.cfg.Regimes) > 0 {
		known := make(map[string]struct{}, len(e.cfg.Regimes))
		for _, r := range e.cfg.Regimes {
			known[r] = struct{}{}
		}
		for i, o := range obs {
			if o.Regime == "" {
				continue
			}
			if _, ok := known[o.Regime]; !ok {
				return nil, domain.NewConfigurationError("regimes",
					fmt.Sprintf("observation %d has unknown regime %q", i, o.Regime))
			}
		}
		return append([]string(nil), e.cfg.Regimes...), nil
	}

	seen := make(map[string]struct{})
	var out []string
	for _, o := range obs {
		if o.Regime == "" {
			continue
		}
		if _, ok := seen[o.Regime]; !ok {
			seen[o.Regime] = struct{}{}
			out = append(out, o.Regime)
		}
	}
	if len(out) == 0 {
		return nil, domain.NewConfigurationError("regimes", "empty regime set")
	}
	sort.Strings(out)
	return out, nil
}

func fitRegime(regime string, obs []Observation, x *mat.Dense, n int) (*RegimeStatistics, error) {
	var rows []int
	for i, o := range obs {
		if o.Regime == regime {
			rows = append(rows, i)
		}
	}
	if len(rows) <= n {
		return nil, &domain.NumericalError{Op: "regime_covariance", Index: -1, Rows: len(rows), Cols: n,
			Err: fmt.Errorf("regime %q has %d observations, need more than %d", regime, len(rows), n)}
	}

	sub := mat.NewDense(len(rows), n, nil)
	for k, i := range rows {
		sub.SetRow(k, mat.Row(nil, i, x))
	}

	s := &RegimeStatistics{
		Regime:       regime,
		Observations: len(rows),
		Mean:         make([]float64, n),
		Covariance:   mat.NewSymDense(n, nil),
	}
	for j := 0; j < n; j++ {
		s.Mean[j] = stat.Mean(mat.Col(nil, j, sub), nil)
	}
	stat.CovarianceMatrix(s.Covariance, sub, nil)

	if ok := s.chol.Factorize(s.Covariance); !ok {
		return nil, &domain.NumericalError{Op: "regime_covariance", Index: -1, Rows: len(rows), Cols: n,
			Err: fmt.Errorf("covariance for regime %q is not positive definite", regime)}
	}
	s.logDet = s.chol.LogDet()
	return s, nil
}

// score evaluates one observation against every regime.
func score(x []float64, stats []*RegimeStatistics, std []float64) (Record, error) {
	n := len(x)
	regimes := len(stats)
	rec := Record{Scores: make([]RegimeScore, regimes)}

	logL := make([]float64, regimes)
	scores := make([]*mat.VecDense, regimes)
	for r, s := range stats {
		diff := mat.NewVecDense(n, nil)
		for j := range x {
			diff.SetVec(j, x[j]-s.Mean[j])
		}
		sr := mat.NewVecDense(n, nil)
		if err := s.chol.SolveVecTo(sr, diff); err != nil {
			return Record{}, fmt.Errorf("solve regime %q: %w", s.Regime, err)
		}
		d := math.Max(mat.Dot(diff, sr), 0)

		logL[r] = -0.5*float64(n)*logTwoPi - 0.5*s.logDet - 0.5*d
		scores[r] = sr
		rec.Scores[r] = RegimeScore{
			Regime:        s.Regime,
			Distance:      d,
			LogLikelihood: logL[r],
			Likelihood:    math.Exp(logL[r]),
		}
	}

	norm := floats.LogSumExp(logL)
	if math.IsInf(norm, 0) || math.IsNaN(norm) {
		return Record{}, fmt.Errorf("likelihoods do not normalize")
	}
	posterior := make([]float64, regimes)
	for r := range posterior {
		posterior[r] = math.Exp(logL[r] - norm)
		rec.Scores[r].Probability = posterior[r]
	}

	rec.Sensitivity = Sensitivity(posterior, scores)
	importance, err := Importance(rec.Sensitivity, std)
	if err != nil {
		return Record{}, err
	}
	rec.Importance = importance
	return rec, nil
}

// Sensitivity aggregates the per-regime sensitivity of the posterior to the
// observation:
//
//	sens_r = (1/|R|)·| P_r·Σ_{z≠r} P_z·s_z − (1 − P_r·s_r) |   (elementwise)
//
// and returns Σ_r sens_r.
func Sensitivity(posterior []float64, scores []*mat.VecDense) []float64 {
	regimes := len(posterior)
	if regimes == 0 {
		return nil
	}
	n := scores[0].Len()
	total := make([]float64, n)
	for r := range posterior {
		for j := 0; j < n; j++ {
			other := 0.0
			for z := range posterior {
				if z != r {
					other += posterior[z] * scores[z].AtVec(j)
				}
			}
			self := 1 - posterior[r]*scores[r].AtVec(j)
			total[j] += math.Abs(posterior[r]*other-self) / float64(regimes)
		}
	}
	return total
}

// Importance scales sensitivity by the per-variable standard deviation and
// normalizes the result so its absolute values sum to one.
func Importance(sensitivity, std []float64) ([]float64, error) {
	if len(sensitivity) != len(std) {
		return nil, fmt.Errorf("sensitivity has %d entries, std has %d", len(sensitivity), len(std))
	}
	out := make([]float64, len(sensitivity))
	floats.MulTo(out, sensitivity, std)
	total := floats.Norm(out, 1)
	if total == 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return nil, fmt.Errorf("importance cannot be normalized (total %v)", total)
	}
	floats.Scale(1/total, out)
	return out, nil
}

func firstDuplicate(values []string) string {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			return v
		}
		seen[v] = struct{}{}
	}
	return ""
}
