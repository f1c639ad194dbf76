package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/finance-insights/internal/jobs"
	"github.com/dvloznov/finance-insights/internal/logger"
	"github.com/redis/go-redis/v9"
)

// Defaults for NewQueue.
const (
	DefaultWorkers     = 2
	DefaultPollTimeout = 5 * time.Second
	DefaultRetryDelay  = 5 * time.Second
)

// Queue pushes jobs onto a Redis list and pops them with BRPOP. Jobs that
// exhaust their retries are pushed to a dead letter list.
type Queue struct {
	client redis.Cmdable
	store  jobs.JobStore
	prefix string

	Workers     int
	PollTimeout time.Duration
	RetryDelay  time.Duration

	mu        sync.RWMutex
	closed    bool
	closeChan chan struct{}
	wg        sync.WaitGroup
}

// NewQueue creates a queue. store may be nil when job state is not tracked.
func NewQueue(client redis.Cmdable, store jobs.JobStore, prefix string) *Queue {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Queue{
		client:      client,
		store:       store,
		prefix:      prefix,
		Workers:     DefaultWorkers,
		PollTimeout: DefaultPollTimeout,
		RetryDelay:  DefaultRetryDelay,
		closeChan:   make(chan struct{}),
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
	return q.push(ctx, QueueKey(q.prefix), job)
}

func (q *Queue) push(ctx context.Context, key string, job *jobs.AnalysisJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("push: marshal: %w", err)
	}
	if err := q.client.LPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("push %s: %w", key, err)
	}
	return nil
}

// Len returns the number of queued jobs.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, QueueKey(q.prefix)).Result()
}

// Start implements jobs.Consumer.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return jobs.ErrQueueClosed
	}

	for i := 0; i < q.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()
	log := logger.FromContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		default:
		}

		job, err := q.pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("Error popping from Redis queue")
			q.sleep(ctx, time.Second)
			continue
		}
		if job == nil {
			continue
		}

		if !jobs.Execute(ctx, q.store, job, handler) {
			if job.Status == jobs.JobStatusFailed {
				if err := q.push(ctx, DeadLetterKey(q.prefix), job); err != nil {
					log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to dead-letter job")
				}
			}
			continue
		}

		// The retry is pushed even when shutdown cut the delay short, so
		// another worker picks it up.
		q.sleep(ctx, jobs.RetryDelay(q.RetryDelay, job.RetryCount))
		jobs.ResetForRetry(job)
		if err := q.push(context.WithoutCancel(ctx), QueueKey(q.prefix), job); err != nil {
			log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to re-enqueue job")
		}
	}
}

// pop waits up to PollTimeout for a job. It returns nil, nil on timeout.
func (q *Queue) pop(ctx context.Context) (*jobs.AnalysisJob, error) {
	res, err := q.client.BRPop(ctx, q.PollTimeout, QueueKey(q.prefix)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	job, err := decodeJob([]byte(res[1]))
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Invalid job payload in queue")
		return nil, nil
	}
	return job, nil
}

func (q *Queue) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	case <-q.closeChan:
	}
}

// Stop implements jobs.Consumer. A worker blocked in BRPOP notices the stop
// after at most PollTimeout.
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
