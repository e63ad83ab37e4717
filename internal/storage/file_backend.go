package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/civiclab-mx/observatorio/pkg/document"
	"github.com/rs/zerolog/log"
)

// FileBackend stores one JSON file per document under a date-partitioned
// tree: documents/{outlet}/year=YYYY/month=MM/day=DD/{id}.json. It is
// the primary backend: fast, inspectable with plain tools, and easy to
// re-read into the analysis notebooks.
type FileBackend struct {
	rootDir          string
	index            *DocumentIndex
	metricsCollector MetricsCollector
}

// NewFileBackend creates the backend rooted at rootDir and rebuilds the
// in-memory index from the files already on disk.
func NewFileBackend(rootDir string, metrics MetricsCollector) (*FileBackend, error) {
	documentsDir := filepath.Join(rootDir, "documents")
	if err := os.MkdirAll(documentsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create documents directory: %w", err)
	}

	fb := &FileBackend{
		rootDir:          rootDir,
		index:            NewDocumentIndex(),
		metricsCollector: metrics,
	}

	if err := fb.rebuildIndex(); err != nil {
		return nil, fmt.Errorf("failed to rebuild document index: %w", err)
	}

	log.Info().
		Str("root", rootDir).
		Int("documents", fb.index.Size()).
		Msg("File backend initialized")

	return fb, nil
}

func (f *FileBackend) StoreDocument(ctx context.Context, doc *document.Document) (string, error) {
	start := time.Now()
	path, err := f.storeDocumentFile(doc)

	f.recordMetric("store", start, err == nil, err)
	return path, err
}

func (f *FileBackend) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	start := time.Now()

	path, exists := f.index.Get(id)
	if !exists {
		err := fmt.Errorf("document not found: %s", id)
		f.recordMetric("get", start, false, err)
		return nil, err
	}

	doc, err := f.loadDocumentFile(path)
	f.recordMetric("get", start, err == nil, err)
	return doc, err
}

func (f *FileBackend) DeleteDocument(ctx context.Context, id string) error {
	start := time.Now()

	path, exists := f.index.Get(id)
	if !exists {
		err := fmt.Errorf("document not found: %s", id)
		f.recordMetric("delete", start, false, err)
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		f.recordMetric("delete", start, false, err)
		return fmt.Errorf("failed to delete document file: %w", err)
	}

	f.index.Remove(id)
	f.recordMetric("delete", start, true, nil)
	return nil
}

// ListDocuments returns documents matching the filters, newest first.
// Supported filter keys: type, outlet, year, month, limit.
func (f *FileBackend) ListDocuments(ctx context.Context, filters map[string]string) ([]*document.Document, error) {
	start := time.Now()

	limit := 0
	if raw, ok := filters["limit"]; ok {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	documents := make([]*document.Document, 0)
	for _, meta := range f.index.GetAllDocuments() {
		if !f.pathMetadataMatches(meta, filters) {
			continue
		}

		doc, err := f.loadDocumentFile(meta.Path)
		if err != nil {
			log.Warn().Err(err).Str("path", meta.Path).Msg("Skipping unreadable document")
			continue
		}

		if !documentMatchesFilters(doc, filters) {
			continue
		}

		documents = append(documents, doc)
	}

	sort.Slice(documents, func(i, j int) bool {
		return documents[i].PartitionDate().After(documents[j].PartitionDate())
	})

	if limit > 0 && len(documents) > limit {
		documents = documents[:limit]
	}

	f.recordMetric("list", start, true, nil)
	return documents, nil
}

func (f *FileBackend) Exists(ctx context.Context, id string) (bool, error) {
	_, exists := f.index.Get(id)
	return exists, nil
}

// MergeBranch is a no-op: the file tree has no branches.
func (f *FileBackend) MergeBranch(ctx context.Context, branchName string) error {
	log.Debug().Str("branch", branchName).Msg("Merge requested on file backend (no-op)")
	return nil
}

func (f *FileBackend) Health(ctx context.Context) error {
	start := time.Now()

	info, err := os.Stat(filepath.Join(f.rootDir, "documents"))
	if err == nil && !info.IsDir() {
		err = fmt.Errorf("documents path is not a directory")
	}

	f.recordMetric("health", start, err == nil, err)
	return err
}

func (f *FileBackend) Close() error {
	return nil
}

// IndexSize reports how many documents the in-memory index tracks.
func (f *FileBackend) IndexSize() int {
	return f.index.Size()
}

// storeDocumentFile writes the document JSON atomically: first to a
// temp file in the target directory, then renamed into place so readers
// never observe a partial document.
func (f *FileBackend) storeDocumentFile(doc *document.Document) (string, error) {
	if err := doc.Validate(); err != nil {
		return "", fmt.Errorf("document validation failed: %w", err)
	}

	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	relPath := doc.StoragePath()
	fullPath := filepath.Join(f.rootDir, relPath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create partition directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), "."+doc.ID+".tmp-")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, fullPath); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to move document into place: %w", err)
	}

	f.index.Add(doc.ID, fullPath, &DocumentMetadata{
		ID:          doc.ID,
		Path:        fullPath,
		Type:        doc.Source.Type,
		Outlet:      doc.Source.Outlet,
		PublishedAt: doc.PartitionDate(),
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	})

	return relPath, nil
}

func (f *FileBackend) loadDocumentFile(path string) (*document.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document file: %w", err)
	}

	var doc document.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse document file: %w", err)
	}

	return &doc, nil
}

// rebuildIndex walks the documents tree and registers every JSON file,
// deriving outlet and partition date from the path so common filters
// can skip loading files.
func (f *FileBackend) rebuildIndex() error {
	documentsDir := filepath.Join(f.rootDir, "documents")

	return filepath.WalkDir(documentsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}

		docID := extractDocIDFromPath(path)
		if docID == "" {
			return nil
		}

		meta := &DocumentMetadata{ID: docID, Path: path}
		if rel, relErr := filepath.Rel(documentsDir, path); relErr == nil {
			fillMetadataFromPartition(meta, rel)
		}

		f.index.Add(docID, path, meta)
		return nil
	})
}

// fillMetadataFromPartition parses {outlet}/year=YYYY/month=MM/day=DD
// out of a relative document path.
func fillMetadataFromPartition(meta *DocumentMetadata, relPath string) {
	parts := strings.Split(filepath.ToSlash(relPath), "/")
	if len(parts) < 4 {
		return
	}

	meta.Outlet = parts[0]

	var year, month, day int
	for _, part := range parts[1:] {
		if v, ok := strings.CutPrefix(part, "year="); ok {
			year, _ = strconv.Atoi(v)
		} else if v, ok := strings.CutPrefix(part, "month="); ok {
			month, _ = strconv.Atoi(v)
		} else if v, ok := strings.CutPrefix(part, "day="); ok {
			day, _ = strconv.Atoi(v)
		}
	}

	if year > 0 && month > 0 && day > 0 {
		meta.PublishedAt = time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	}
}

// pathMetadataMatches applies the filters that can be answered from the
// path-derived metadata alone. The outlet segment doubles as the type
// for gazette documents, so a type filter only rules a candidate out
// when the segment contradicts it.
func (f *FileBackend) pathMetadataMatches(meta *DocumentMetadata, filters map[string]string) bool {
	if outlet, ok := filters["outlet"]; ok && meta.Outlet != "" && meta.Outlet != outlet {
		return false
	}

	if !meta.PublishedAt.IsZero() {
		if year, ok := filters["year"]; ok {
			if y, err := strconv.Atoi(year); err == nil && meta.PublishedAt.Year() != y {
				return false
			}
		}
		if month, ok := filters["month"]; ok {
			if m, err := strconv.Atoi(month); err == nil && int(meta.PublishedAt.Month()) != m {
				return false
			}
		}
	}

	return true
}

// documentMatchesFilters applies the filters against the loaded
// document, covering fields the path cannot answer.
func documentMatchesFilters(doc *document.Document, filters map[string]string) bool {
	if docType, ok := filters["type"]; ok && doc.Source.Type != docType {
		return false
	}
	if outlet, ok := filters["outlet"]; ok && doc.Source.Outlet != outlet {
		return false
	}

	date := doc.PartitionDate()
	if year, ok := filters["year"]; ok {
		if y, err := strconv.Atoi(year); err == nil && date.Year() != y {
			return false
		}
	}
	if month, ok := filters["month"]; ok {
		if m, err := strconv.Atoi(month); err == nil && int(date.Month()) != m {
			return false
		}
	}

	return true
}

func (f *FileBackend) recordMetric(operation string, start time.Time, success bool, err error) {
	if f.metricsCollector != nil {
		f.metricsCollector.RecordMetric(StorageMetrics{
			OperationType: operation,
			Duration:      time.Since(start).Nanoseconds(),
			Success:       success,
			Backend:       "file",
			Error:         err,
		})
	}
}
