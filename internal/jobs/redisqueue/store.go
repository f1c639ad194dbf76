package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/finance-insights/internal/jobs"
	"github.com/redis/go-redis/v9"
)

// DefaultJobTTL bounds how long finished job state is kept.
const DefaultJobTTL = 7 * 24 * time.Hour

// Store is a JobStore on Redis. Each job is a JSON string; an index sorted
// set keeps listing ordered by creation time.
type Store struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewStore returns a store using prefix for every key.
func NewStore(client redis.Cmdable, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, ttl: DefaultJobTTL}
}

// SaveJob implements jobs.JobStore.
func (s *Store) SaveJob(ctx context.Context, job *jobs.AnalysisJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("SaveJob: marshal: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, JobKey(s.prefix, job.JobID), data, s.ttl)
		pipe.ZAdd(ctx, IndexKey(s.prefix), redis.Z{
			Score:  float64(job.CreatedAt.UnixNano()),
			Member: job.JobID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("SaveJob: %w", err)
	}
	return nil
}

// GetJob implements jobs.JobStore.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.AnalysisJob, error) {
	data, err := s.client.Get(ctx, JobKey(s.prefix, jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("GetJob %s: %w", jobID, jobs.ErrJobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetJob %s: %w", jobID, err)
	}
	return decodeJob(data)
}

// ListJobs implements jobs.JobStore. Jobs are returned newest first; index
// entries whose state has expired are pruned.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.AnalysisJob, error) {
	ids, err := s.client.ZRevRange(ctx, IndexKey(s.prefix), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("ListJobs: index: %w", err)
	}
	if len(ids) == 0 {
		return []*jobs.AnalysisJob{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = JobKey(s.prefix, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("ListJobs: load: %w", err)
	}

	result := []*jobs.AnalysisJob{}
	var expired []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		job, err := decodeJob([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("ListJobs: %w", err)
		}
		if filter.Match(job) {
			result = append(result, job)
		}
	}

	if len(expired) > 0 {
		s.client.ZRem(ctx, IndexKey(s.prefix), expired...)
	}

	return filter.Page(result), nil
}

// UpdateJobStatus implements jobs.JobStore.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("UpdateJobStatus: %w", err)
	}
	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}
	return s.SaveJob(ctx, job)
}

func decodeJob(data []byte) (*jobs.AnalysisJob, error) {
	var job jobs.AnalysisJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

var _ jobs.JobStore = (*Store)(nil)
