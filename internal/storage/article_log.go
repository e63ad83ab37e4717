package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ArticleLog keeps the month-partitioned article files the analysis
// notebooks consume: one JSON array per outlet and month at
// articles/{outlet}/{YYYY}/{MM}.json. Appends merge into the existing
// array instead of overwriting it.
type ArticleLog struct {
	rootDir string
	mu      sync.Mutex
}

// NewArticleLog creates the log rooted at rootDir.
func NewArticleLog(rootDir string) (*ArticleLog, error) {
	articlesDir := filepath.Join(rootDir, "articles")
	if err := os.MkdirAll(articlesDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create articles directory: %w", err)
	}
	return &ArticleLog{rootDir: rootDir}, nil
}

// Append adds records to the outlet's file for the given month and
// returns the file path. Existing records stay untouched.
func (a *ArticleLog) Append(outlet string, month time.Time, records []interface{}) (string, error) {
	if len(records) == 0 {
		return a.monthPath(outlet, month), nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	path := a.monthPath(outlet, month)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create month directory: %w", err)
	}

	existing := make([]json.RawMessage, 0, len(records))
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &existing); err != nil {
			return "", fmt.Errorf("existing article file %s is corrupt: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read article file: %w", err)
	}

	for _, record := range records {
		raw, err := json.Marshal(record)
		if err != nil {
			return "", fmt.Errorf("failed to marshal article record: %w", err)
		}
		existing = append(existing, raw)
	}

	data, err := json.Marshal(existing)
	if err != nil {
		return "", fmt.Errorf("failed to marshal article file: %w", err)
	}

	if err := atomicWriteFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// Read returns the raw records stored for the outlet and month. A
// missing file yields an empty slice.
func (a *ArticleLog) Read(outlet string, month time.Time) ([]json.RawMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := os.ReadFile(a.monthPath(outlet, month))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read article file: %w", err)
	}

	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse article file: %w", err)
	}
	return records, nil
}

func (a *ArticleLog) monthPath(outlet string, month time.Time) string {
	return filepath.Join(a.rootDir, "articles", outlet,
		fmt.Sprintf("%04d", month.Year()), fmt.Sprintf("%02d.json", int(month.Month())))
}
