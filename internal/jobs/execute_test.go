package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrepare(t *testing.T) {
	now := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)

	job := &AnalysisJob{}
	Prepare(job, now)
	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, now, job.CreatedAt)
	assert.Equal(t, DefaultMaxRetries, job.MaxRetries)

	kept := &AnalysisJob{JobID: "j1", Status: JobStatusRetrying, CreatedAt: now.Add(-time.Hour), MaxRetries: 1}
	Prepare(kept, now)
	assert.Equal(t, "j1", kept.JobID)
	assert.Equal(t, JobStatusRetrying, kept.Status)
	assert.Equal(t, now.Add(-time.Hour), kept.CreatedAt)
	assert.Equal(t, 1, kept.MaxRetries)
}

func TestExecute(t *testing.T) {
	ok := func(context.Context, *AnalysisJob) error { return nil }
	fail := func(context.Context, *AnalysisJob) error { return errors.New("boom") }

	tests := []struct {
		name       string
		handler    JobHandler
		retryCount int
		wantRetry  bool
		wantStatus JobStatus
		wantError  string
	}{
		{"success", ok, 0, false, JobStatusCompleted, ""},
		{"failure with budget", fail, 0, true, JobStatusRetrying, "boom"},
		{"failure without budget", fail, 2, false, JobStatusFailed, "boom"},
		{"permanent failure", func(context.Context, *AnalysisJob) error { return Permanent(errors.New("bad request")) }, 0, false, JobStatusFailed, "bad request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &AnalysisJob{JobID: "j1", MaxRetries: 2, RetryCount: tt.retryCount, Error: "previous"}
			retry := Execute(context.Background(), nil, job, tt.handler)

			assert.Equal(t, tt.wantRetry, retry)
			assert.Equal(t, tt.wantStatus, job.Status)
			assert.Equal(t, tt.wantError, job.Error)
			assert.NotNil(t, job.StartedAt)
			assert.NotNil(t, job.CompletedAt)
		})
	}
}

func TestResetForRetryAndDelay(t *testing.T) {
	now := time.Now()
	job := &AnalysisJob{Status: JobStatusRetrying, StartedAt: &now, CompletedAt: &now}
	ResetForRetry(job)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)

	assert.Equal(t, 3*time.Second, RetryDelay(time.Second, 3))
}

func TestPermanent(t *testing.T) {
	base := errors.New("invalid")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
	assert.Nil(t, Permanent(nil))
}
