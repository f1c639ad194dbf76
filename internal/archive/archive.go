// Package archive stores finished analysis results, raw model text
// included, for audit. The backend is chosen by URI.
package archive

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/finance-insights/internal/domain"
	infraBQ "github.com/dvloznov/finance-insights/internal/infra/bigquery"
	"github.com/rs/zerolog"
)

// Archive persists analysis results.
type Archive interface {
	Save(ctx context.Context, result *domain.AnalysisResult) error
	Close() error
}

// URI schemes understood by Open.
const (
	SchemeJSONFile = "jsonfile:"
	SchemeGCS      = "gs://"
	SchemeES8      = "es8:"
	SchemeBigQuery = "bq:"
	SchemeNone     = "none"
)

// Open returns the archive for uri:
//
//	jsonfile:runs.jsonl
//	gs://bucket/prefix
//	es8:http://localhost:9200[,http://other:9200]
//	bq:project.dataset
//	none
func Open(ctx context.Context, uri string, log zerolog.Logger) (Archive, error) {
	switch {
	case uri == "" || uri == SchemeNone:
		return Nop{}, nil
	case strings.HasPrefix(uri, SchemeJSONFile):
		return nonNil(NewJSONFile(strings.TrimPrefix(uri, SchemeJSONFile)))
	case strings.HasPrefix(uri, SchemeGCS):
		return nonNil(NewGCSArchive(ctx, uri))
	case strings.HasPrefix(uri, SchemeES8):
		return nonNil(NewElasticsearchV8(ctx, log, splitAddresses(strings.TrimPrefix(uri, SchemeES8))...))
	case strings.HasPrefix(uri, SchemeBigQuery):
		project, dataset, err := parseBigQueryTarget(strings.TrimPrefix(uri, SchemeBigQuery))
		if err != nil {
			return nil, err
		}
		return nonNil(infraBQ.NewBigQueryInsightsRepository(ctx, project, dataset))
	default:
		return nil, fmt.Errorf("Open: unsupported archive URI %q", uri)
	}
}

// nonNil keeps a nil concrete pointer from becoming a non-nil Archive.
func nonNil[T Archive](a T, err error) (Archive, error) {
	if err != nil {
		return nil, err
	}
	return a, nil
}

func splitAddresses(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func parseBigQueryTarget(s string) (string, string, error) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid BigQuery archive target %q, want project.dataset", s)
	}
	return parts[0], parts[1], nil
}

// Nop discards results.
type Nop struct{}

func (Nop) Save(context.Context, *domain.AnalysisResult) error { return nil }

func (Nop) Close() error { return nil }
