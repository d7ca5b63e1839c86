package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/systemicrisk/internal/services"
)

// Refresher recomputes the indicator snapshot
type Refresher interface {
	Refresh(ctx context.Context, trigger string) (*services.Snapshot, error)
}

// RefreshJob recomputes every configured dataset
type RefreshJob struct {
	log       zerolog.Logger
	refresher Refresher
	timeout   time.Duration
	trigger   string
}

// NewRefreshJob creates a new RefreshJob. A zero timeout means no limit.
func NewRefreshJob(refresher Refresher, timeout time.Duration) *RefreshJob {
	return &RefreshJob{
		log:       zerolog.Nop(),
		refresher: refresher,
		timeout:   timeout,
		trigger:   "schedule",
	}
}

// SetLogger sets the logger for the job
func (j *RefreshJob) SetLogger(log zerolog.Logger) {
	j.log = log.With().Str("job", j.Name()).Logger()
}

// WithTrigger returns a copy of the job that reports the given trigger
func (j *RefreshJob) WithTrigger(trigger string) *RefreshJob {
	c := *j
	c.trigger = trigger
	return &c
}

// Name returns the job name
func (j *RefreshJob) Name() string {
	return "refresh_snapshot"
}

// Run executes the refresh
func (j *RefreshJob) Run() error {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	snap, err := j.refresher.Refresh(ctx, j.trigger)
	if err != nil {
		return err
	}

	j.log.Info().
		Str("snapshot_id", snap.ID.String()).
		Str("trigger", j.trigger).
		Int("datasets", len(snap.Datasets)).
		Int("failed", len(snap.Errors)).
		Msg("Refresh job completed")
	return nil
}
