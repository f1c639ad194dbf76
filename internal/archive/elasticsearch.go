package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/rs/zerolog"
)

const (
	esIndex = "analysis-runs"
	esFlush = 64 * 1024
)

// ElasticsearchV8 indexes results through a bulk indexer. Documents are
// flushed in the background and on Close.
type ElasticsearchV8 struct {
	es  *elasticsearch.Client
	bi  esutil.BulkIndexer
	log zerolog.Logger
}

type esDocument struct {
	*domain.AnalysisResult
	Timestamp string `json:"@timestamp"`
}

// NewElasticsearchV8 connects to addresses, defaulting to localhost:9200.
func NewElasticsearchV8(ctx context.Context, log zerolog.Logger, addresses ...string) (*ElasticsearchV8, error) {
	if len(addresses) == 0 {
		addresses = []string{"http://localhost:9200"}
	}

	retryBackoff := backoff.NewExponentialBackOff()

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,

		// Retry on 429 TooManyRequests statuses
		RetryOnStatus: []int{502, 503, 504, 429},

		RetryBackoff: func(i int) time.Duration {
			if i == 1 {
				retryBackoff.Reset()
			}
			return retryBackoff.NextBackOff()
		},

		MaxRetries: 5,
	})
	if err != nil {
		return nil, fmt.Errorf("NewElasticsearchV8: client: %w", err)
	}

	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Index:         esIndex,
		FlushBytes:    esFlush,
		Client:        es,
		NumWorkers:    2,
		FlushInterval: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("NewElasticsearchV8: bulk indexer: %w", err)
	}

	res, err := es.Indices.Create(esIndex, es.Indices.Create.WithContext(ctx))
	if err != nil {
		log.Warn().Err(err).Str("index", esIndex).Msg("attempted to create index")
	} else {
		res.Body.Close()
	}

	return &ElasticsearchV8{es: es, bi: bi, log: log}, nil
}

// Save implements Archive. Indexing failures surface in the log and in the
// stats returned by Close.
func (e *ElasticsearchV8) Save(ctx context.Context, result *domain.AnalysisResult) error {
	data, err := json.Marshal(esDocument{AnalysisResult: result, Timestamp: result.AnalyzedAt})
	if err != nil {
		return fmt.Errorf("ElasticsearchV8.Save: marshal: %w", err)
	}

	err = e.bi.Add(ctx, esutil.BulkIndexerItem{
		Action:     "index",
		DocumentID: result.ID.String(),
		Body:       bytes.NewReader(data),
		OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
			ev := e.log.Error().Str("analysis_id", item.DocumentID)
			if err != nil {
				ev.Err(err).Msg("failed to index analysis result")
			} else {
				ev.Str("type", res.Error.Type).Str("reason", res.Error.Reason).Msg("failed to index analysis result")
			}
		},
	})
	if err != nil {
		return fmt.Errorf("ElasticsearchV8.Save: add: %w", err)
	}
	return nil
}

// Close flushes pending documents.
func (e *ElasticsearchV8) Close() error {
	if err := e.bi.Close(context.Background()); err != nil {
		return fmt.Errorf("ElasticsearchV8.Close: %w", err)
	}
	stats := e.bi.Stats()
	if stats.NumFailed > 0 {
		return fmt.Errorf("ElasticsearchV8.Close: failed indexing %d docs", stats.NumFailed)
	}
	e.log.Info().Uint64("indexed", stats.NumFlushed).Msg("analysis results indexed")
	return nil
}
