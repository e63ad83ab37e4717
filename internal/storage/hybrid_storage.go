package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/civiclab-mx/observatorio/internal/pipeline"
	"github.com/civiclab-mx/observatorio/pkg/document"
	"github.com/rs/zerolog/log"
)

// HybridStorageConfig defines configuration for the hybrid storage system
type HybridStorageConfig struct {
	// Primary backend for reads and writes ("file" or "git")
	PrimaryBackend string `json:"primary_backend"`

	// Keep a commit-per-document git archive alongside the primary tree
	EnableGitArchive bool `json:"enable_git_archive"`

	// Mirror stored documents into MongoDB in background batches
	EnableMongoMirror bool `json:"enable_mongo_mirror"`

	// Mongo connection settings, only read when the mirror is enabled
	MongoURI        string `json:"mongo_uri,omitempty"`
	MongoDatabase   string `json:"mongo_database,omitempty"`
	MongoCollection string `json:"mongo_collection,omitempty"`

	// Timeout for individual backend operations
	OperationTimeout time.Duration `json:"operation_timeout"`

	// Flush queued mirror writes on a background ticker
	EnableSync bool `json:"enable_sync"`

	// Interval between background mirror flushes
	SyncInterval time.Duration `json:"sync_interval"`
}

// DefaultHybridConfig returns sensible defaults for hybrid storage
func DefaultHybridConfig() *HybridStorageConfig {
	return &HybridStorageConfig{
		PrimaryBackend:    "file",
		EnableGitArchive:  true,
		EnableMongoMirror: false,
		MongoCollection:   "documents",
		OperationTimeout:  30 * time.Second,
		EnableSync:        true,
		SyncInterval:      5 * time.Minute,
	}
}

// HybridStorage layers the storage backends: a file tree serves reads
// and writes, a git repository keeps an auditable archive, and an
// optional MongoDB mirror feeds the analysis notebooks. The archive is
// written asynchronously after a successful primary store; the mirror
// is queued and flushed in batches.
type HybridStorage struct {
	fileBackend      StorageBackend
	gitBackend       StorageBackend
	mongoBackend     *MongoBackend
	config           *HybridStorageConfig
	metricsCollector MetricsCollector

	// Optional event bus; stored documents are announced on it
	eventBus *pipeline.EventBus

	// Mirror queue, drained by the background sync loop
	mirrorMutex sync.Mutex
	mirrorQueue []*document.Document

	// Background sync control
	syncTicker *time.Ticker
	syncStop   chan bool
}

// NewHybridStorage creates the layered storage system. dataRoot holds
// the primary file tree, gitRepoPath the archive repository.
func NewHybridStorage(dataRoot, gitRepoPath string, config *HybridStorageConfig, metrics MetricsCollector) (*HybridStorage, error) {
	if config == nil {
		config = DefaultHybridConfig()
	}

	fileBackend, err := NewFileBackend(dataRoot, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file backend: %w", err)
	}

	hs := &HybridStorage{
		fileBackend:      fileBackend,
		config:           config,
		metricsCollector: metrics,
		syncStop:         make(chan bool, 1),
	}

	if config.EnableGitArchive {
		gitBackend, err := NewGitBackend(gitRepoPath, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize git archive: %w", err)
		}
		hs.gitBackend = gitBackend
	}

	if config.EnableMongoMirror {
		if config.MongoURI == "" {
			log.Warn().Msg("Mongo mirror enabled without a URI, mirror disabled")
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), config.OperationTimeout)
			mongoBackend, err := NewMongoBackend(ctx, config.MongoURI, config.MongoDatabase, config.MongoCollection, metrics)
			cancel()
			if err != nil {
				return nil, fmt.Errorf("failed to initialize mongo mirror: %w", err)
			}
			hs.mongoBackend = mongoBackend
		}
	}

	if config.EnableSync && hs.mongoBackend != nil {
		hs.startBackgroundSync()
	}

	return hs, nil
}

// StoreDocument writes to the primary backend, then archives and
// queues the mirror write.
func (h *HybridStorage) StoreDocument(ctx context.Context, doc *document.Document) (string, error) {
	start := time.Now()

	timeoutCtx, cancel := context.WithTimeout(ctx, h.config.OperationTimeout)
	defer cancel()

	ref, err := h.primaryBackend().StoreDocument(timeoutCtx, doc)
	if err != nil {
		h.recordHybridMetric("store", start, false, "primary_failed")
		return "", err
	}
	h.recordHybridMetric("store", start, true, "primary_success")

	if h.gitBackend != nil && h.config.PrimaryBackend != "git" {
		go h.archiveDocument(doc)
	}

	if h.mongoBackend != nil {
		h.enqueueMirror(doc)
	}

	h.publishStored(doc, ref)
	return ref, nil
}

// SetEventBus wires an event bus; every successful store is announced
// as a document.stored event.
func (h *HybridStorage) SetEventBus(bus *pipeline.EventBus) {
	h.eventBus = bus
}

// GetEventBus returns the wired event bus, or nil.
func (h *HybridStorage) GetEventBus() *pipeline.EventBus {
	return h.eventBus
}

func (h *HybridStorage) publishStored(doc *document.Document, ref string) {
	if h.eventBus == nil {
		return
	}

	event := pipeline.NewDocumentEvent(pipeline.EventDocumentStored, doc)
	event.Metadata["ref"] = ref
	event.Metadata["backend"] = h.config.PrimaryBackend

	if err := h.eventBus.Publish(event); err != nil {
		log.Warn().Err(err).Str("document_id", doc.ID).Msg("Failed to publish store event")
	}
}

// GetDocument reads from the primary backend and falls back to the git
// archive on a miss.
func (h *HybridStorage) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	start := time.Now()

	timeoutCtx, cancel := context.WithTimeout(ctx, h.config.OperationTimeout)
	defer cancel()

	doc, err := h.primaryBackend().GetDocument(timeoutCtx, id)
	if err != nil && h.gitBackend != nil && h.config.PrimaryBackend != "git" {
		log.Debug().
			Err(err).
			Str("id", id).
			Msg("Primary backend miss, trying git archive")

		doc, err = h.gitBackend.GetDocument(timeoutCtx, id)
		if err == nil {
			h.recordHybridMetric("get", start, true, "archive_hit")
			return doc, nil
		}
		h.recordHybridMetric("get", start, false, "both_missed")
		return nil, err
	}

	h.recordHybridMetric("get", start, err == nil, "primary")
	return doc, err
}

// DeleteDocument removes a document from every layer that has it.
func (h *HybridStorage) DeleteDocument(ctx context.Context, id string) error {
	start := time.Now()

	timeoutCtx, cancel := context.WithTimeout(ctx, h.config.OperationTimeout)
	defer cancel()

	err := h.primaryBackend().DeleteDocument(timeoutCtx, id)

	if h.gitBackend != nil && h.config.PrimaryBackend != "git" {
		if archiveErr := h.gitBackend.DeleteDocument(timeoutCtx, id); archiveErr != nil {
			log.Warn().Err(archiveErr).Str("id", id).Msg("Failed to delete document from git archive")
		}
	}
	if h.mongoBackend != nil {
		if mirrorErr := h.mongoBackend.DeleteDocument(timeoutCtx, id); mirrorErr != nil {
			log.Warn().Err(mirrorErr).Str("id", id).Msg("Failed to delete document from mongo mirror")
		}
	}

	h.recordHybridMetric("delete", start, err == nil, "primary")
	return err
}

// ListDocuments lists documents from the primary backend
func (h *HybridStorage) ListDocuments(ctx context.Context, filters map[string]string) ([]*document.Document, error) {
	start := time.Now()

	timeoutCtx, cancel := context.WithTimeout(ctx, h.config.OperationTimeout)
	defer cancel()

	documents, err := h.primaryBackend().ListDocuments(timeoutCtx, filters)
	h.recordHybridMetric("list", start, err == nil, "primary")
	return documents, err
}

// Exists checks the primary backend, then the git archive.
func (h *HybridStorage) Exists(ctx context.Context, id string) (bool, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, h.config.OperationTimeout)
	defer cancel()

	exists, err := h.primaryBackend().Exists(timeoutCtx, id)
	if err == nil && exists {
		return true, nil
	}

	if h.gitBackend != nil && h.config.PrimaryBackend != "git" {
		return h.gitBackend.Exists(timeoutCtx, id)
	}
	return exists, err
}

// MergeBranch delegates to the git archive when one is configured.
func (h *HybridStorage) MergeBranch(ctx context.Context, branchName string) error {
	start := time.Now()

	timeoutCtx, cancel := context.WithTimeout(ctx, h.config.OperationTimeout)
	defer cancel()

	backend := h.primaryBackend()
	if h.gitBackend != nil {
		backend = h.gitBackend
	}

	err := backend.MergeBranch(timeoutCtx, branchName)
	h.recordHybridMetric("merge", start, err == nil, "archive")
	return err
}

// Health requires the primary backend to be healthy. Archive and
// mirror failures degrade to warnings so harvesting keeps running.
func (h *HybridStorage) Health(ctx context.Context) error {
	start := time.Now()

	timeoutCtx, cancel := context.WithTimeout(ctx, h.config.OperationTimeout)
	defer cancel()

	if err := h.primaryBackend().Health(timeoutCtx); err != nil {
		h.recordHybridMetric("health", start, false, "primary_unhealthy")
		return fmt.Errorf("primary backend unhealthy: %w", err)
	}

	if h.gitBackend != nil {
		if err := h.gitBackend.Health(timeoutCtx); err != nil {
			log.Warn().Err(err).Msg("Git archive unhealthy")
		}
	}
	if h.mongoBackend != nil {
		if err := h.mongoBackend.Health(timeoutCtx); err != nil {
			log.Warn().Err(err).Msg("Mongo mirror unhealthy")
		}
	}

	h.recordHybridMetric("health", start, true, "primary_healthy")
	return nil
}

// GetStats returns statistics about the hybrid storage system
func (h *HybridStorage) GetStats() map[string]interface{} {
	h.mirrorMutex.Lock()
	queued := len(h.mirrorQueue)
	h.mirrorMutex.Unlock()

	stats := map[string]interface{}{
		"config":           h.config,
		"git_archive":      h.gitBackend != nil,
		"mongo_mirror":     h.mongoBackend != nil,
		"mirror_queue_len": queued,
	}

	if fileBackend, ok := h.fileBackend.(*FileBackend); ok {
		stats["indexed_documents"] = fileBackend.IndexSize()
	}

	return stats
}

// Close stops background sync, flushes the mirror queue and closes all
// backends.
func (h *HybridStorage) Close() error {
	if h.syncTicker != nil {
		h.syncTicker.Stop()
		h.syncStop <- true
		close(h.syncStop)
	}

	if h.mongoBackend != nil {
		h.flushMirrorQueue()
	}

	var firstErr error
	for _, backend := range []StorageBackend{h.fileBackend, h.gitBackend} {
		if backend == nil {
			continue
		}
		if err := backend.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if h.mongoBackend != nil {
		if err := h.mongoBackend.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Internal helper methods

func (h *HybridStorage) primaryBackend() StorageBackend {
	if h.config.PrimaryBackend == "git" && h.gitBackend != nil {
		return h.gitBackend
	}
	return h.fileBackend
}

func (h *HybridStorage) recordHybridMetric(operation string, start time.Time, success bool, result string) {
	if h.metricsCollector != nil {
		h.metricsCollector.RecordMetric(StorageMetrics{
			OperationType: operation,
			Duration:      time.Since(start).Nanoseconds(),
			Success:       success,
			Backend:       fmt.Sprintf("hybrid_%s", result),
			Error:         nil,
		})
	}
}

func (h *HybridStorage) archiveDocument(doc *document.Document) {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.OperationTimeout)
	defer cancel()

	if _, err := h.gitBackend.StoreDocument(ctx, doc); err != nil {
		log.Warn().
			Err(err).
			Str("document_id", doc.ID).
			Msg("Failed to archive document in git")
	} else {
		log.Debug().
			Str("document_id", doc.ID).
			Msg("Document archived in git")
	}
}

func (h *HybridStorage) enqueueMirror(doc *document.Document) {
	h.mirrorMutex.Lock()
	h.mirrorQueue = append(h.mirrorQueue, doc)
	queued := len(h.mirrorQueue)
	h.mirrorMutex.Unlock()

	// Without the background loop, flush as soon as a batch fills up.
	if !h.config.EnableSync && queued >= mongoBatchSize {
		h.flushMirrorQueue()
	}
}

func (h *HybridStorage) startBackgroundSync() {
	h.syncTicker = time.NewTicker(h.config.SyncInterval)

	go func() {
		for {
			select {
			case <-h.syncTicker.C:
				h.flushMirrorQueue()
			case <-h.syncStop:
				return
			}
		}
	}()
}

// flushMirrorQueue drains the queued documents into the mongo mirror.
// Failed batches are requeued for the next flush.
func (h *HybridStorage) flushMirrorQueue() {
	h.mirrorMutex.Lock()
	pending := h.mirrorQueue
	h.mirrorQueue = nil
	h.mirrorMutex.Unlock()

	if len(pending) == 0 || h.mongoBackend == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.OperationTimeout)
	defer cancel()

	stored, err := h.mongoBackend.StoreDocuments(ctx, pending)
	if err != nil {
		log.Warn().
			Err(err).
			Int("stored", stored).
			Int("pending", len(pending)).
			Msg("Mirror flush failed, requeueing remainder")

		h.mirrorMutex.Lock()
		h.mirrorQueue = append(pending[stored:], h.mirrorQueue...)
		h.mirrorMutex.Unlock()
		return
	}

	log.Debug().Int("stored", stored).Msg("Mirror flush completed")
}
