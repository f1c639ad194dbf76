package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/finance-insights/internal/logger"
)

// Execute runs one attempt of job and records the outcome in store, which
// may be nil. It reports whether the job should be re-enqueued; in that case
// the job has already been moved to JobStatusRetrying with its counter
// incremented.
func Execute(ctx context.Context, store JobStore, job *AnalysisJob, handler JobHandler) (retry bool) {
	log := logger.FromContext(ctx).With().
		Str("job_id", job.JobID).
		Str("user_id", job.Request.UserID).
		Str("kind", string(job.Request.Kind)).
		Logger()

	now := time.Now()
	job.Status = JobStatusRunning
	job.StartedAt = &now
	job.CompletedAt = nil
	save(ctx, store, job)

	err := handler(logger.WithContext(ctx, log), job)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	switch {
	case err == nil:
		job.Status = JobStatusCompleted
		job.Error = ""
		log.Info().Dur("duration", completedAt.Sub(now)).Msg("Analysis job completed")
	case job.RetryCount < job.MaxRetries && !IsPermanent(err):
		job.RetryCount++
		job.Status = JobStatusRetrying
		job.Error = err.Error()
		retry = true
		log.Warn().Err(err).Int("retry_count", job.RetryCount).Msg("Analysis job failed, will retry")
	default:
		job.Status = JobStatusFailed
		job.Error = err.Error()
		log.Error().Err(err).Int("retry_count", job.RetryCount).Msg("Analysis job failed")
	}

	save(ctx, store, job)
	return retry
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked by Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// RetryDelay is the pause before the n-th retry of a job.
func RetryDelay(base time.Duration, retryCount int) time.Duration {
	return time.Duration(retryCount) * base
}

// ResetForRetry returns a retrying job to the pending state.
func ResetForRetry(job *AnalysisJob) {
	job.Status = JobStatusPending
	job.StartedAt = nil
	job.CompletedAt = nil
}

func save(ctx context.Context, store JobStore, job *AnalysisJob) {
	if store == nil {
		return
	}
	if err := store.SaveJob(ctx, job); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to save job state")
	}
}
