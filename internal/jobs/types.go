// Package jobs runs analyses asynchronously. Requests are published to a
// queue, executed by workers and tracked in a JobStore so clients can poll
// for the result.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/google/uuid"
)

// DefaultMaxRetries is applied to jobs published without a retry budget.
const DefaultMaxRetries = 3

// ErrJobNotFound is returned by JobStore lookups for unknown IDs.
var ErrJobNotFound = errors.New("job not found")

// ErrQueueClosed is returned when publishing to a stopped queue.
var ErrQueueClosed = errors.New("queue is closed")

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the analysis ran and produced a result.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed and will not be retried.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is waiting to be retried.
	JobStatusRetrying JobStatus = "retrying"
)

// AnalysisJob is one queued analysis request.
type AnalysisJob struct {
	JobID   string                 `json:"job_id"`
	Request domain.AnalysisRequest `json:"request"`
	Status  JobStatus              `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Result is set once the analysis has run, successful or not.
	Result *domain.AnalysisResult `json:"result,omitempty"`

	Error      string `json:"error,omitempty"`
	RetryCount int    `json:"retry_count"`
	MaxRetries int    `json:"max_retries"`
}

// Prepare fills the ID, status, creation time and retry budget of a job
// about to be published.
func Prepare(job *AnalysisJob, now time.Time) {
	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = DefaultMaxRetries
	}
}

// Publisher enqueues analysis jobs.
type Publisher interface {
	PublishAnalysis(ctx context.Context, job *AnalysisJob) error
	Close() error
}

// Consumer runs a handler over queued jobs.
type Consumer interface {
	// Start launches the workers and returns immediately.
	Start(ctx context.Context, handler JobHandler) error
	// Stop stops consuming and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. Returning an error marks the attempt as
// failed; the queue retries it while the job has budget left.
type JobHandler func(ctx context.Context, job *AnalysisJob) error

// JobStore persists job state across workers and API requests.
type JobStore interface {
	SaveJob(ctx context.Context, job *AnalysisJob) error
	GetJob(ctx context.Context, jobID string) (*AnalysisJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*AnalysisJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs. Zero fields match
// everything.
type JobFilter struct {
	UserID string
	Kind   domain.AnalysisKind
	Status JobStatus

	Limit  int
	Offset int
}

// Match reports whether job passes the filter's field criteria.
func (f JobFilter) Match(job *AnalysisJob) bool {
	if f.UserID != "" && job.Request.UserID != f.UserID {
		return false
	}
	if f.Kind != "" && job.Request.Kind != f.Kind {
		return false
	}
	if f.Status != "" && job.Status != f.Status {
		return false
	}
	return true
}

// Page applies Offset and Limit to an already filtered slice.
func (f JobFilter) Page(list []*AnalysisJob) []*AnalysisJob {
	if f.Offset > 0 {
		if f.Offset >= len(list) {
			return []*AnalysisJob{}
		}
		list = list[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(list) {
		list = list[:f.Limit]
	}
	return list
}
