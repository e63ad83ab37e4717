package storage

import (
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DocumentIndex maintains an in-memory index of document IDs to their storage paths
// This provides O(1) lookups instead of searching through the filesystem
type DocumentIndex struct {
	mu       sync.RWMutex
	index    map[string]string // docID -> path mapping
	metadata map[string]*DocumentMetadata
}

// DocumentMetadata caches frequently accessed document metadata
type DocumentMetadata struct {
	ID          string
	Path        string
	Type        string
	Outlet      string
	PublishedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastAccess  time.Time
}

// NewDocumentIndex creates a new document index
func NewDocumentIndex() *DocumentIndex {
	return &DocumentIndex{
		index:    make(map[string]string),
		metadata: make(map[string]*DocumentMetadata),
	}
}

// Add adds a document to the index
func (di *DocumentIndex) Add(docID, path string, meta *DocumentMetadata) {
	di.mu.Lock()
	defer di.mu.Unlock()

	di.index[docID] = path
	if meta != nil {
		meta.LastAccess = time.Now()
		di.metadata[docID] = meta
	}
}

// Get retrieves a document path from the index
func (di *DocumentIndex) Get(docID string) (string, bool) {
	di.mu.RLock()
	defer di.mu.RUnlock()

	path, exists := di.index[docID]
	if exists {
		if meta, ok := di.metadata[docID]; ok && meta != nil {
			meta.LastAccess = time.Now()
		}
	}
	return path, exists
}

// GetMetadata retrieves cached metadata for a document
func (di *DocumentIndex) GetMetadata(docID string) (*DocumentMetadata, bool) {
	di.mu.RLock()
	defer di.mu.RUnlock()

	meta, exists := di.metadata[docID]
	if exists && meta != nil {
		meta.LastAccess = time.Now()
	}
	return meta, exists
}

// Remove removes a document from the index
func (di *DocumentIndex) Remove(docID string) {
	di.mu.Lock()
	defer di.mu.Unlock()

	delete(di.index, docID)
	delete(di.metadata, docID)
}

// Size returns the number of documents in the index
func (di *DocumentIndex) Size() int {
	di.mu.RLock()
	defer di.mu.RUnlock()

	return len(di.index)
}

// Clear removes all entries from the index
func (di *DocumentIndex) Clear() {
	di.mu.Lock()
	defer di.mu.Unlock()

	di.index = make(map[string]string)
	di.metadata = make(map[string]*DocumentMetadata)
}

// RebuildFromPaths rebuilds the index from a list of document file paths
// laid out as documents/{outlet}/year=YYYY/month=MM/day=DD/{id}.json.
func (di *DocumentIndex) RebuildFromPaths(paths []string) {
	di.mu.Lock()
	defer di.mu.Unlock()

	di.index = make(map[string]string)
	di.metadata = make(map[string]*DocumentMetadata)

	for _, path := range paths {
		docID := extractDocIDFromPath(path)
		if docID != "" {
			di.index[docID] = path
		}
	}
}

// GetAllDocuments returns all document metadata in the index
func (di *DocumentIndex) GetAllDocuments() []*DocumentMetadata {
	di.mu.RLock()
	defer di.mu.RUnlock()

	results := make([]*DocumentMetadata, 0, len(di.index))
	for docID, path := range di.index {
		if meta, ok := di.metadata[docID]; ok && meta != nil {
			results = append(results, meta)
		} else {
			results = append(results, &DocumentMetadata{
				ID:   docID,
				Path: path,
			})
		}
	}

	return results
}

// GetAllDocumentIDs returns all document IDs in the index
func (di *DocumentIndex) GetAllDocumentIDs() []string {
	di.mu.RLock()
	defer di.mu.RUnlock()

	ids := make([]string, 0, len(di.index))
	for docID := range di.index {
		ids = append(ids, docID)
	}
	return ids
}

// extractDocIDFromPath extracts the document ID from a stored JSON path.
// The ID is the file name without its .json extension.
func extractDocIDFromPath(path string) string {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ".json") {
		return ""
	}

	return strings.TrimSuffix(base, ".json")
}
