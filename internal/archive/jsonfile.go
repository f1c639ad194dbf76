package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/dvloznov/finance-insights/internal/domain"
)

// JSONFile appends one JSON document per line to a local file.
type JSONFile struct {
	mu       sync.Mutex
	filename string
}

// NewJSONFile creates an archive writing to filename.
func NewJSONFile(filename string) (*JSONFile, error) {
	if filename == "" {
		return nil, fmt.Errorf("NewJSONFile: empty filename")
	}
	return &JSONFile{filename: filename}, nil
}

// Save implements Archive.
func (f *JSONFile) Save(ctx context.Context, result *domain.AnalysisResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("JSONFile.Save: marshal: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	fh, err := os.OpenFile(f.filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("JSONFile.Save: open: %w", err)
	}
	if _, err := fh.Write(append(data, '\n')); err != nil {
		fh.Close()
		return fmt.Errorf("JSONFile.Save: write: %w", err)
	}
	return fh.Close()
}

// ReadAll returns every archived result in file order.
func (f *JSONFile) ReadAll() ([]*domain.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fh, err := os.Open(f.filename)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("JSONFile.ReadAll: open: %w", err)
	}
	defer fh.Close()

	var out []*domain.AnalysisResult
	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var r domain.AnalysisResult
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("JSONFile.ReadAll: line %d: %w", len(out)+1, err)
		}
		out = append(out, &r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("JSONFile.ReadAll: %w", err)
	}
	return out, nil
}

// Close implements Archive.
func (f *JSONFile) Close() error { return nil }
