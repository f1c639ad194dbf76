// Package redisqueue implements the job queue and job store on Redis so the
// API and any number of workers can share them.
package redisqueue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Key layout.
const (
	DefaultPrefix = "insights"

	queueSuffix      = ":queue:analysis"
	deadLetterSuffix = ":queue:failed"
	jobSuffix        = ":job:"
	indexSuffix      = ":jobs"
)

// Connect opens a client for url. A value that is not a redis:// URL is used
// as a plain host:port address.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		opt = &redis.Options{Addr: url}
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Connect: ping %s: %w", opt.Addr, err)
	}
	return client, nil
}

// QueueKey is the list analysis jobs are pushed to.
func QueueKey(prefix string) string { return prefix + queueSuffix }

// DeadLetterKey collects jobs that exhausted their retries.
func DeadLetterKey(prefix string) string { return prefix + deadLetterSuffix }

// JobKey holds the JSON state of one job.
func JobKey(prefix, jobID string) string { return prefix + jobSuffix + jobID }

// IndexKey is a sorted set of job IDs scored by creation time.
func IndexKey(prefix string) string { return prefix + indexSuffix }
