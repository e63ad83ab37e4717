package processing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/civiclab-mx/observatorio/internal/pipeline"
	"github.com/civiclab-mx/observatorio/internal/storage"
	"github.com/civiclab-mx/observatorio/pkg/document"
)

// ContentProcessorConfig configures the background cleaning stage.
type ContentProcessorConfig struct {
	Enabled           bool          `json:"enabled"`
	Workers           int           `json:"workers"`
	QueueSize         int           `json:"queue_size"`
	ProcessingTimeout time.Duration `json:"processing_timeout"`
	StrictMode        bool          `json:"strict_mode"`
	EnabledRules      []string      `json:"enabled_rules,omitempty"`
	DisabledRules     []string      `json:"disabled_rules,omitempty"`
}

func DefaultContentProcessorConfig() *ContentProcessorConfig {
	return &ContentProcessorConfig{
		Enabled:           true,
		Workers:           4,
		QueueSize:         64,
		ProcessingTimeout: 30 * time.Second,
	}
}

// ContentProcessorStats tracks what the processor has done so far.
type ContentProcessorStats struct {
	DocumentsProcessed  int64         `json:"documents_processed"`
	DocumentsRedacted   int64         `json:"documents_redacted"`
	DocumentsFailed     int64         `json:"documents_failed"`
	TotalBytesProcessed int64         `json:"total_bytes_processed"`
	TotalBytesRemoved   int64         `json:"total_bytes_removed"`
	AverageProcessTime  time.Duration `json:"average_process_time"`
	LastProcessed       time.Time     `json:"last_processed"`
	QueueSize           int           `json:"queue_size"`
}

// ContentProcessor cleans and redacts documents as they are stored. It
// subscribes to stored-document events, queues the documents, and a small
// worker pool runs the cleaner and writes the result back.
type ContentProcessor struct {
	config       *ContentProcessorConfig
	cleaner      *ContentCleaner
	storage      storage.StorageBackend
	eventBus     *pipeline.EventBus
	subscription *pipeline.Subscription

	queue  chan *document.Document
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	stats ContentProcessorStats
}

// NewContentProcessor wires the processor to the event bus and starts its
// workers. The cleaner decides what cleaning and redaction happen; the
// processor only moves documents through it.
func NewContentProcessor(cleaner *ContentCleaner, store storage.StorageBackend, eventBus *pipeline.EventBus, config *ContentProcessorConfig) (*ContentProcessor, error) {
	if cleaner == nil {
		return nil, fmt.Errorf("content processor requires a cleaner")
	}
	if store == nil {
		return nil, fmt.Errorf("content processor requires a storage backend")
	}
	if config == nil {
		config = DefaultContentProcessorConfig()
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	cp := &ContentProcessor{
		config:   config,
		cleaner:  cleaner,
		storage:  store,
		eventBus: eventBus,
		queue:    make(chan *document.Document, config.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	cp.cleaner.SetStrictMode(config.StrictMode)
	for _, name := range config.DisabledRules {
		cp.cleaner.DisableRule(name)
	}
	for _, name := range config.EnabledRules {
		cp.cleaner.EnableRule(name)
	}

	if config.Enabled && eventBus != nil {
		if err := cp.subscribe(); err != nil {
			cancel()
			return nil, err
		}
	}

	for i := 0; i < config.Workers; i++ {
		cp.wg.Add(1)
		go cp.worker(i)
	}

	log.Info().
		Bool("enabled", config.Enabled).
		Int("workers", config.Workers).
		Strs("rules", cp.cleaner.GetEnabledRules()).
		Msg("Content processor started")
	return cp, nil
}

func (cp *ContentProcessor) subscribe() error {
	handler := func(ctx context.Context, event *pipeline.DocumentEvent) error {
		if event.Document == nil || event.Document.ID == "" {
			return nil
		}
		// Already-cleaned documents come back through the stored event
		// after the processor writes them; do not loop.
		if event.Document.Content.Metadata["cleaned"] == "true" {
			return nil
		}
		select {
		case cp.queue <- event.Document:
			return nil
		case <-ctx.Done():
			cp.recordFailure()
			log.Warn().
				Str("document_id", event.Document.ID).
				Int("queue_size", len(cp.queue)).
				Msg("Dropped document, processing queue full")
			return ctx.Err()
		}
	}

	sub, err := cp.eventBus.Subscribe([]pipeline.EventType{pipeline.EventDocumentStored}, handler, cp.config.QueueSize)
	if err != nil {
		return err
	}
	cp.subscription = sub
	return nil
}

// Enqueue submits a document for cleaning outside the event path.
func (cp *ContentProcessor) Enqueue(ctx context.Context, doc *document.Document) error {
	select {
	case cp.queue <- doc:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-cp.ctx.Done():
		return fmt.Errorf("content processor is shutting down")
	}
}

func (cp *ContentProcessor) worker(workerID int) {
	defer cp.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Int("worker_id", workerID).
				Interface("panic", r).
				Msg("Content processor worker panic recovered")
		}
	}()

	for {
		select {
		case doc := <-cp.queue:
			if doc != nil {
				cp.process(doc)
			}
		case <-cp.ctx.Done():
			return
		}
	}
}

func (cp *ContentProcessor) process(doc *document.Document) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(cp.ctx, cp.config.ProcessingTimeout)
	defer cancel()

	result, err := cp.cleaner.CleanDocument(ctx, doc)
	if err != nil {
		cp.recordFailure()
		cp.publishFailure(doc, "cleaning", err)
		log.Error().Err(err).Str("document_id", doc.ID).Msg("Failed to clean document")
		return
	}

	if _, err := cp.storage.StoreDocument(ctx, doc); err != nil {
		cp.recordFailure()
		cp.publishFailure(doc, "store", err)
		log.Error().Err(err).Str("document_id", doc.ID).Msg("Failed to store cleaned document")
		return
	}

	if cp.eventBus != nil {
		event := pipeline.NewDocumentEvent(pipeline.EventDocumentCleaned, doc)
		event.Metadata["bytes_removed"] = result.BytesRemoved
		event.Metadata["rules_applied"] = result.RulesApplied
		if err := cp.eventBus.Publish(event); err != nil {
			log.Warn().Err(err).Str("document_id", doc.ID).Msg("Failed to publish cleaned event")
		}
		if result.Redacted {
			if err := cp.eventBus.Publish(pipeline.NewDocumentEvent(pipeline.EventDocumentRedacted, doc)); err != nil {
				log.Warn().Err(err).Str("document_id", doc.ID).Msg("Failed to publish redacted event")
			}
		}
	}

	cp.recordSuccess(result, time.Since(start))
	log.Debug().
		Str("document_id", doc.ID).
		Int("bytes_removed", result.BytesRemoved).
		Bool("redacted", result.Redacted).
		Msg("Document cleaned")
}

func (cp *ContentProcessor) publishFailure(doc *document.Document, stage string, cause error) {
	if cp.eventBus == nil {
		return
	}
	event := pipeline.NewDocumentEvent(pipeline.EventProcessingFailed, doc)
	event.Error = cause.Error()
	event.Metadata["stage"] = stage
	if err := cp.eventBus.Publish(event); err != nil {
		log.Warn().Err(err).Str("document_id", doc.ID).Msg("Failed to publish failure event")
	}
}

func (cp *ContentProcessor) recordSuccess(result *CleaningResult, elapsed time.Duration) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.stats.DocumentsProcessed++
	if result.Redacted {
		cp.stats.DocumentsRedacted++
	}
	cp.stats.TotalBytesProcessed += int64(result.OriginalLength)
	cp.stats.TotalBytesRemoved += int64(result.BytesRemoved)
	cp.stats.LastProcessed = time.Now()

	n := cp.stats.DocumentsProcessed
	cp.stats.AverageProcessTime = (cp.stats.AverageProcessTime*time.Duration(n-1) + elapsed) / time.Duration(n)
}

func (cp *ContentProcessor) recordFailure() {
	cp.mu.Lock()
	cp.stats.DocumentsFailed++
	cp.mu.Unlock()
}

// GetStats returns a snapshot of the processor counters.
func (cp *ContentProcessor) GetStats() ContentProcessorStats {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	stats := cp.stats
	stats.QueueSize = len(cp.queue)
	return stats
}

// Close unsubscribes and drains the workers.
func (cp *ContentProcessor) Close() {
	if cp.subscription != nil && cp.eventBus != nil {
		if err := cp.eventBus.Unsubscribe(cp.subscription.ID); err != nil {
			log.Warn().Err(err).Msg("Failed to unsubscribe content processor")
		}
	}
	cp.cancel()

	done := make(chan struct{})
	go func() {
		cp.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Timeout waiting for content processor workers")
	}

	if remaining := len(cp.queue); remaining > 0 {
		log.Warn().Int("remaining", remaining).Msg("Discarding queued documents on shutdown")
	}
	log.Info().Msg("Content processor stopped")
}
