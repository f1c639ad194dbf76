package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/finance-insights/internal/domain"
)

// GCSArchive writes each result as a JSON object in a bucket.
// It assumes Application Default Credentials are configured.
type GCSArchive struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSArchive creates an archive for a gs://bucket/prefix URI.
func NewGCSArchive(ctx context.Context, uri string) (*GCSArchive, error) {
	bucket, prefix, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSArchive: create storage client: %w", err)
	}
	return &GCSArchive{client: client, bucket: bucket, prefix: prefix}, nil
}

// ParseGCSURI splits gs://bucket/prefix. The prefix may be empty.
func ParseGCSURI(uri string) (bucket, prefix string, err error) {
	if !strings.HasPrefix(uri, SchemeGCS) {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	trimmed := strings.TrimPrefix(uri, SchemeGCS)
	parts := strings.SplitN(trimmed, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no bucket): %s", uri)
	}
	if len(parts) == 2 {
		prefix = strings.Trim(parts[1], "/")
	}
	return parts[0], prefix, nil
}

// ObjectName returns prefix/user/YYYY-MM-DD/kind-id.json for result.
func ObjectName(prefix string, result *domain.AnalysisResult) string {
	day := "undated"
	if len(result.AnalyzedAt) >= 10 {
		day = result.AnalyzedAt[:10]
	}
	user := result.UserID
	if user == "" {
		user = "anonymous"
	}
	return path.Join(prefix, user, day, fmt.Sprintf("%s-%s.json", result.Kind, result.ID))
}

// Save implements Archive.
func (a *GCSArchive) Save(ctx context.Context, result *domain.AnalysisResult) error {
	name := ObjectName(a.prefix, result)
	w := a.client.Bucket(a.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/json"

	if err := json.NewEncoder(w).Encode(result); err != nil {
		_ = w.Close()
		return fmt.Errorf("GCSArchive.Save: encode %s: %w", name, err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("GCSArchive.Save: finalize upload %s: %w", name, err)
	}
	return nil
}

// Close implements Archive.
func (a *GCSArchive) Close() error {
	return a.client.Close()
}
