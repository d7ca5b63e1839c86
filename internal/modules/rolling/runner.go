// Package rolling drives sliding-window statistics over a ReturnMatrix.
package rolling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/systemicrisk/internal/domain"
	"github.com/aristath/systemicrisk/internal/workers"
)

// Window is a contiguous block of rows [Start, End) of a ReturnMatrix.
type Window struct {
	Index int
	Start int
	End   int
	Time  time.Time  // timestamp of the last row
	Data  mat.Matrix // (End-Start)×N read-only view
}

// Last returns the final observation of the window.
func (w Window) Last() []float64 {
	r, c := w.Data.Dims()
	out := make([]float64, c)
	mat.Row(out, r-1, w.Data)
	return out
}

// StatFunc computes one scalar statistic for a window.
type StatFunc func(w Window) (float64, error)

// Runner evaluates a StatFunc over every window of a ReturnMatrix in parallel.
type Runner struct {
	pool *workers.WorkerPool
	log  zerolog.Logger
}

// NewRunner creates a runner backed by pool.
func NewRunner(pool *workers.WorkerPool, log zerolog.Logger) *Runner {
	if pool == nil {
		pool = workers.NewWorkerPool(0)
	}
	return &Runner{
		pool: pool,
		log:  log.With().Str("component", "rolling_runner").Logger(),
	}
}

// ValidateWindow checks that windowSize exceeds the variable count and fits in the data.
func ValidateWindow(m *domain.ReturnMatrix, windowSize int) error {
	if windowSize <= m.Width() {
		return domain.NewConfigurationError("window_size",
			fmt.Sprintf("window size %d must exceed the variable count %d", windowSize, m.Width()))
	}
	if windowSize > m.Len() {
		return domain.NewConfigurationError("window_size",
			fmt.Sprintf("window size %d exceeds the %d available observations", windowSize, m.Len()))
	}
	return nil
}

// WindowCount returns T-W+1.
func WindowCount(observations, windowSize int) int {
	if windowSize <= 0 || observations < windowSize {
		return 0
	}
	return observations - windowSize + 1
}

// Run produces one value per window, indexed by the timestamp of each window's last row.
// Window i spans observations [i, i+windowSize).
func (r *Runner) Run(ctx context.Context, m *domain.ReturnMatrix, windowSize int, name string, fn StatFunc) (domain.Series, error) {
	if err := ValidateWindow(m, windowSize); err != nil {
		return domain.Series{}, err
	}

	dense := m.Dense()
	n := m.Width()
	count := WindowCount(m.Len(), windowSize)
	points := make([]domain.Point, count)

	start := time.Now()
	err := r.pool.Run(ctx, count, func(_ context.Context, i int) error {
		w := Window{
			Index: i,
			Start: i,
			End:   i + windowSize,
			Time:  m.Timestamps[i+windowSize-1],
			Data:  dense.Slice(i, i+windowSize, 0, n),
		}
		v, err := fn(w)
		if err != nil {
			return wrapWindowError(name, w, n, err)
		}
		points[i] = domain.Point{Time: w.Time, Value: v}
		return nil
	})
	if err != nil {
		return domain.Series{}, err
	}

	r.log.Debug().
		Str("statistic", name).
		Int("windows", count).
		Int("window_size", windowSize).
		Int("variables", n).
		Dur("elapsed", time.Since(start)).
		Msg("Rolling statistic computed")

	return domain.Series{Name: name, Points: points}, nil
}

func wrapWindowError(name string, w Window, cols int, err error) error {
	var numErr *domain.NumericalError
	if errors.As(err, &numErr) && numErr.Index < 0 {
		// fill in the window position the statistic could not know
		numErr.Index = w.Index
		numErr.Time = w.Time
		return err
	}
	if errors.Is(err, domain.ErrNumerical) || errors.Is(err, domain.ErrConfiguration) ||
		errors.Is(err, domain.ErrDimensionMismatch) || errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &domain.NumericalError{
		Op:    name,
		Index: w.Index,
		Time:  w.Time,
		Rows:  w.End - w.Start,
		Cols:  cols,
		Err:   err,
	}
}
