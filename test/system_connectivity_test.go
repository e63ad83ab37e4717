package test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civiclab-mx/observatorio/internal/harvest"
	"github.com/civiclab-mx/observatorio/internal/harvest/news"
	"github.com/civiclab-mx/observatorio/internal/nlp"
	"github.com/civiclab-mx/observatorio/internal/pipeline"
	"github.com/civiclab-mx/observatorio/internal/presentation"
	"github.com/civiclab-mx/observatorio/internal/processing"
	"github.com/civiclab-mx/observatorio/internal/storage"
	"github.com/civiclab-mx/observatorio/pkg/document"
	"github.com/civiclab-mx/observatorio/pkg/extractor"
	"github.com/civiclab-mx/observatorio/pkg/placenames"
	"github.com/civiclab-mx/observatorio/pkg/ratelimit"
)

func newConnectivityStorage(t *testing.T) *storage.HybridStorage {
	t.Helper()

	tempDir := t.TempDir()
	config := storage.DefaultHybridConfig()
	config.EnableSync = false

	hs, err := storage.NewHybridStorage(
		filepath.Join(tempDir, "data"),
		filepath.Join(tempDir, "archive"),
		config,
		storage.NewSimpleMetricsCollector(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { hs.Close() })
	return hs
}

// TestSystemConnectivity verifies every layer can be constructed the way
// the server mains construct it and that the seams between them hold.
func TestSystemConnectivity(t *testing.T) {
	ctx := context.Background()

	t.Run("storage layer", func(t *testing.T) {
		hybridStorage := newConnectivityStorage(t)

		testDoc := &document.Document{
			ID: document.NewID("https://example.org/conn-test"),
			Source: document.Source{
				Type:   "html",
				Outlet: "jornada",
				URL:    "https://example.org/conn-test",
			},
			Content: document.Content{
				Text:     "Storage connectivity check",
				Metadata: map[string]string{"title": "Conectividad"},
			},
			PublishedAt: time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC),
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}

		ref, err := hybridStorage.StoreDocument(ctx, testDoc)
		require.NoError(t, err)
		assert.NotEmpty(t, ref)

		retrieved, err := hybridStorage.GetDocument(ctx, testDoc.ID)
		require.NoError(t, err)
		assert.Equal(t, testDoc.Content.Text, retrieved.Content.Text)

		docs, err := hybridStorage.ListDocuments(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, docs, 1)

		require.NoError(t, hybridStorage.Health(ctx))
	})

	t.Run("event bus wiring", func(t *testing.T) {
		hybridStorage := newConnectivityStorage(t)

		eventBus := pipeline.NewEventBus(100, 2)
		defer eventBus.Close()

		hybridStorage.SetEventBus(eventBus)
		assert.Same(t, eventBus, hybridStorage.GetEventBus())

		received := make(chan *pipeline.DocumentEvent, 10)
		_, err := eventBus.Subscribe(
			[]pipeline.EventType{pipeline.EventDocumentStored},
			func(ctx context.Context, event *pipeline.DocumentEvent) error {
				received <- event
				return nil
			}, 10)
		require.NoError(t, err)

		doc := &document.Document{
			ID: document.NewID("https://example.org/evento"),
			Source: document.Source{
				Type:   "html",
				Outlet: "proceso",
				URL:    "https://example.org/evento",
			},
			Content:   document.Content{Text: "Documento para el bus"},
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		_, err = hybridStorage.StoreDocument(ctx, doc)
		require.NoError(t, err)

		select {
		case event := <-received:
			assert.Equal(t, pipeline.EventDocumentStored, event.Type)
			require.NotNil(t, event.Document)
			assert.Equal(t, doc.ID, event.Document.ID)
		case <-time.After(2 * time.Second):
			t.Fatal("stored event not received")
		}
	})

	t.Run("harvest layer", func(t *testing.T) {
		limiter := ratelimit.NewSourceRateLimiter()
		limiter.Register("ingest", time.Millisecond)

		// Preloaded and registered sources pass; unknown ones fail fast.
		require.NoError(t, limiter.WaitForSource(ctx, "ingest"))
		err := limiter.WaitForSource(ctx, "desconocido")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown source")

		fetcher, err := harvest.NewFetcher(nil, limiter, harvest.NewCompliance(nil))
		require.NoError(t, err)

		checkpoints, err := storage.NewCheckpoints(t.TempDir())
		require.NoError(t, err)

		sources, err := news.BuildSources(
			[]string{"jornada", "proceso", "economista", "financiero", "animalpolitico"},
			fetcher, checkpoints)
		require.NoError(t, err)
		require.Len(t, sources, 5)
		for _, src := range sources {
			assert.NotEmpty(t, src.Name())
		}

		_, err = news.BuildSources([]string{"reforma"}, fetcher, checkpoints)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown outlet")
	})

	t.Run("processing layer", func(t *testing.T) {
		hybridStorage := newConnectivityStorage(t)

		eventBus := pipeline.NewEventBus(32, 1)
		defer eventBus.Close()

		redactor, err := placenames.New(placenames.DefaultConfig())
		require.NoError(t, err)
		cleaner := processing.NewContentCleaner(redactor)
		assert.NotEmpty(t, cleaner.GetEnabledRules())

		doc := &document.Document{
			ID: document.NewID("https://example.org/limpieza"),
			Source: document.Source{
				Type: "html",
				URL:  "https://example.org/limpieza",
			},
			Content: document.Content{
				Text: "Obras   en el Estado de Jalisco.\n\n\n\nFin.",
			},
		}
		result, err := cleaner.CleanDocument(ctx, doc)
		require.NoError(t, err)
		assert.True(t, result.Redacted)
		assert.Contains(t, doc.Content.Redacted, "[ESTADO]")
		assert.NotContains(t, doc.Content.Text, "   ")

		processor, err := processing.NewContentProcessor(cleaner, hybridStorage, eventBus, nil)
		require.NoError(t, err)
		processor.Close()
	})

	t.Run("nlp layer", func(t *testing.T) {
		preprocessor := nlp.NewPreprocessor(nlp.DefaultConfig())
		tokens := preprocessor.Tokens("El Congreso aprobó el presupuesto para carreteras.")
		assert.NotEmpty(t, tokens)
		assert.Contains(t, tokens, "congreso")
	})

	t.Run("extractor engine", func(t *testing.T) {
		engine := extractor.NewEngine()

		text, metadata, err := engine.Extract(ctx, []byte("Hola desde el texto plano"), "text/plain")
		require.NoError(t, err)
		assert.Equal(t, "Hola desde el texto plano", text)
		assert.NotNil(t, metadata)

		text, _, err = engine.Extract(ctx, []byte("<html><body><p>Hola desde HTML</p></body></html>"), "text/html")
		require.NoError(t, err)
		assert.Contains(t, text, "Hola desde HTML")
	})

	t.Run("presentation layer", func(t *testing.T) {
		hybridStorage := newConnectivityStorage(t)

		browser := presentation.NewAPI(presentation.NewRenderer(nil), hybridStorage, nil)
		rec := httptest.NewRecorder()
		browser.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/health", nil))
		assert.Equal(t, 200, rec.Code)
	})
}

// TestInterfaceCompatibility pins the seams the mains rely on: the
// hybrid store must keep satisfying both the backend interface the
// harvesters write through and the archive interface the browser reads
// through.
func TestInterfaceCompatibility(t *testing.T) {
	hybridStorage := newConnectivityStorage(t)

	var backend storage.StorageBackend = hybridStorage
	assert.NotNil(t, backend)

	var archive presentation.Archive = hybridStorage
	assert.NotNil(t, archive)
}
