package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/finance-insights/internal/jobs"
	"github.com/dvloznov/finance-insights/internal/logger"
)

// DefaultWorkers is the number of concurrent workers started by Start.
const DefaultWorkers = 5

// Queue is an in-memory job publisher and consumer backed by a channel.
// It is safe for concurrent use and suits single-instance deployments and
// tests; multi-instance deployments use the Redis queue.
type Queue struct {
	jobChan    chan *jobs.AnalysisJob
	closeChan  chan struct{}
	wg         sync.WaitGroup
	mu         sync.RWMutex
	store      jobs.JobStore
	closed     bool
	workers    int
	retryDelay time.Duration
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can be queued before PublishAnalysis blocks.
func NewQueue(bufferSize int, store jobs.JobStore) *Queue {
	return &Queue{
		jobChan:    make(chan *jobs.AnalysisJob, bufferSize),
		closeChan:  make(chan struct{}),
		store:      store,
		workers:    DefaultWorkers,
		retryDelay: time.Second,
	}
}

// PublishAnalysis implements jobs.Publisher.
func (q *Queue) PublishAnalysis(ctx context.Context, job *jobs.AnalysisJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return jobs.ErrQueueClosed
	}

	jobs.Prepare(job, time.Now())

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("PublishAnalysis: save job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return jobs.ErrQueueClosed
	}
}

// Start implements jobs.Consumer.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return jobs.ErrQueueClosed
	}

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			if jobs.Execute(ctx, q.store, job, handler) {
				q.scheduleRetry(ctx, job)
			}
		}
	}
}

func (q *Queue) scheduleRetry(ctx context.Context, job *jobs.AnalysisJob) {
	time.AfterFunc(jobs.RetryDelay(q.retryDelay, job.RetryCount), func() {
		jobs.ResetForRetry(job)
		if err := q.PublishAnalysis(ctx, job); err != nil {
			q.abandonRetry(ctx, job, err)
		}
	})
}

// abandonRetry fails a job whose retry could not be queued, typically
// because the queue stopped while the retry was pending.
func (q *Queue) abandonRetry(ctx context.Context, job *jobs.AnalysisJob, err error) {
	log := logger.FromContext(ctx)
	log.Warn().Err(err).Str("job_id", job.JobID).Int("retry_count", job.RetryCount).Msg("Could not requeue job, marking it failed")

	now := time.Now()
	job.Status = jobs.JobStatusFailed
	job.CompletedAt = &now
	if job.Error != "" {
		job.Error = fmt.Sprintf("%s (retry abandoned: %v)", job.Error, err)
	} else {
		job.Error = fmt.Sprintf("retry abandoned: %v", err)
	}

	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(context.WithoutCancel(ctx), job); err != nil {
		log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to save abandoned job")
	}
}

// Stop implements jobs.Consumer. It waits for in-flight jobs until ctx is done.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements jobs.Publisher.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
