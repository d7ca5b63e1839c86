package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/systemicrisk/internal/services"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Run() error {
	j.runs.Add(1)
	return j.err
}

func (j *countingJob) Name() string { return "counting" }

func TestScheduler_AddJobAndEntries(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{}

	require.NoError(t, s.AddJob("0 0 6 * * *", job))
	assert.Error(t, s.AddJob("not a schedule", job))

	s.Start()
	defer s.Stop()

	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "counting", entries[0].Job)
	assert.Equal(t, "0 0 6 * * *", entries[0].Schedule)
	assert.Equal(t, 6, entries[0].Next.Hour())
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{err: errors.New("failing jobs keep their schedule")}
	require.NoError(t, s.AddJob("@every 1s", job))

	s.Start()
	assert.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{}
	require.NoError(t, s.RunNow(job))
	assert.Equal(t, int32(1), job.runs.Load())
}

type fakeRefresher struct {
	trigger  string
	deadline bool
	err      error
}

func (f *fakeRefresher) Refresh(ctx context.Context, trigger string) (*services.Snapshot, error) {
	f.trigger = trigger
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return nil, f.err
	}
	return &services.Snapshot{ID: uuid.New()}, nil
}

func TestRefreshJob(t *testing.T) {
	r := &fakeRefresher{}
	job := NewRefreshJob(r, time.Minute)
	job.SetLogger(zerolog.Nop())

	assert.Equal(t, "refresh_snapshot", job.Name())
	require.NoError(t, job.Run())
	assert.Equal(t, "schedule", r.trigger)
	assert.True(t, r.deadline)

	require.NoError(t, job.WithTrigger("startup").Run())
	assert.Equal(t, "startup", r.trigger)

	noLimit := NewRefreshJob(r, 0)
	require.NoError(t, noLimit.Run())
	assert.False(t, r.deadline)

	r.err = errors.New("all datasets failed")
	assert.EqualError(t, job.Run(), "all datasets failed")
}
