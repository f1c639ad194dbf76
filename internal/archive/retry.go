package archive

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dvloznov/finance-insights/internal/domain"
)

// Retrying retries failed saves with exponential backoff.
type Retrying struct {
	next       Archive
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

// WithRetry wraps next so each Save is attempted up to maxRetries+1 times.
func WithRetry(next Archive, maxRetries uint64) *Retrying {
	return &Retrying{
		next:       next,
		maxRetries: maxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 30 * time.Second
			return b
		},
	}
}

// Save implements Archive. Encoding errors are not retried.
func (r *Retrying) Save(ctx context.Context, result *domain.AnalysisResult) error {
	op := func() error {
		err := r.next.Save(ctx, result)
		var typeErr *json.UnsupportedTypeError
		if errors.As(err, &typeErr) {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), r.maxRetries), ctx)
	return backoff.Retry(op, b)
}

// Close implements Archive.
func (r *Retrying) Close() error {
	return r.next.Close()
}
