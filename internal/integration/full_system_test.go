package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civiclab-mx/observatorio/internal/pipeline"
	"github.com/civiclab-mx/observatorio/internal/presentation"
	"github.com/civiclab-mx/observatorio/internal/processing"
	"github.com/civiclab-mx/observatorio/internal/storage"
	"github.com/civiclab-mx/observatorio/pkg/document"
	"github.com/civiclab-mx/observatorio/pkg/placenames"
)

// TestFullSystemIntegration wires the stack the way cmd/server does,
// minus Temporal: hybrid storage with the git archive, the event bus,
// the background content processor, and the archive browser on top. A
// raw document goes in; only a redacted one may come out over HTTP.
func TestFullSystemIntegration(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()

	metrics := storage.NewSimpleMetricsCollector()
	storageConfig := storage.DefaultHybridConfig()
	storageConfig.EnableSync = false

	store, err := storage.NewHybridStorage(
		filepath.Join(tempDir, "data"),
		filepath.Join(tempDir, "archive"),
		storageConfig,
		metrics,
	)
	require.NoError(t, err)
	defer store.Close()

	bus := pipeline.NewEventBus(64, 2)
	defer bus.Close()
	store.SetEventBus(bus)

	redactor, err := placenames.New(placenames.DefaultConfig())
	require.NoError(t, err)

	processor, err := processing.NewContentProcessor(
		processing.NewContentCleaner(redactor), store, bus, nil)
	require.NoError(t, err)
	defer processor.Close()

	browser := presentation.NewAPI(presentation.NewRenderer(nil), store, nil)
	handler := browser.Handler()

	get := func(t *testing.T, path string) *httptest.ResponseRecorder {
		t.Helper()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		return rec
	}

	raw := &document.Document{
		ID: document.NewID("https://pleno.senado.gob.mx/sesion/123"),
		Source: document.Source{
			Type:   "html",
			Outlet: "gaceta",
			URL:    "https://pleno.senado.gob.mx/sesion/123",
		},
		Content: document.Content{
			Text:     "La comisión aprobó recursos para el Estado de Jalisco.",
			Metadata: map[string]string{"title": "Dictamen de presupuesto"},
		},
		PublishedAt: time.Date(2023, 3, 14, 0, 0, 0, 0, time.UTC),
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	t.Run("stored document is cleaned and redacted", func(t *testing.T) {
		_, err := store.StoreDocument(ctx, raw)
		require.NoError(t, err)

		// The stored event reaches the processor through the bus; the
		// processor writes the cleaned copy back under the same ID.
		require.Eventually(t, func() bool {
			doc, err := store.GetDocument(ctx, raw.ID)
			return err == nil && doc.Content.Metadata["cleaned"] == "true"
		}, 5*time.Second, 20*time.Millisecond)

		doc, err := store.GetDocument(ctx, raw.ID)
		require.NoError(t, err)
		assert.Contains(t, doc.Content.Redacted, "[ESTADO]")
		assert.NotContains(t, doc.Content.Redacted, "Jalisco")
		assert.Contains(t, doc.Content.Text, "Jalisco")
	})

	t.Run("browser serves only the redacted copy", func(t *testing.T) {
		rec := get(t, "/api/v1/documents/"+raw.ID)
		require.Equal(t, 200, rec.Code)
		assert.Contains(t, rec.Body.String(), "[ESTADO]")
		assert.NotContains(t, rec.Body.String(), "Jalisco")

		rec = get(t, "/api/v1/documents/"+raw.ID+"?format=html")
		require.Equal(t, 200, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		assert.NotContains(t, rec.Body.String(), "Jalisco")
	})

	t.Run("search finds the redacted document", func(t *testing.T) {
		rec := get(t, "/api/v1/search?q=recursos")
		require.Equal(t, 200, rec.Code)

		var results presentation.RenderedSearch
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
		require.Equal(t, 1, results.TotalHits)
		require.Len(t, results.Results, 1)
		assert.Equal(t, raw.ID, results.Results[0].Document.ID)
		assert.NotContains(t, results.Results[0].Document.Content, "Jalisco")
	})

	t.Run("concurrent stores and listing", func(t *testing.T) {
		numDocs := 10
		errChan := make(chan error, numDocs)

		for i := 0; i < numDocs; i++ {
			url := fmt.Sprintf("https://www.jornada.com.mx/nota-%03d", i)
			doc := &document.Document{
				ID: document.NewID(url),
				Source: document.Source{
					Type:   "html",
					Outlet: "jornada",
					URL:    url,
				},
				Content: document.Content{
					Text:     fmt.Sprintf("Nota número %d sobre el congreso.", i),
					Metadata: map[string]string{"title": fmt.Sprintf("Nota %d", i)},
				},
				PublishedAt: time.Date(2023, 5, 1+i, 0, 0, 0, 0, time.UTC),
				CreatedAt:   time.Now().UTC(),
				UpdatedAt:   time.Now().UTC(),
			}
			go func(d *document.Document) {
				_, err := store.StoreDocument(ctx, d)
				errChan <- err
			}(doc)
		}

		for i := 0; i < numDocs; i++ {
			assert.NoError(t, <-errChan)
		}

		docs, err := store.ListDocuments(ctx, map[string]string{"outlet": "jornada"})
		require.NoError(t, err)
		assert.Len(t, docs, numDocs)

		rec := get(t, "/api/v1/documents?outlet=jornada&page_size=5")
		require.Equal(t, 200, rec.Code)
		var collection presentation.RenderedCollection
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &collection))
		assert.Equal(t, numDocs, collection.TotalCount)
		assert.Len(t, collection.Documents, 5)
	})

	t.Run("system stats", func(t *testing.T) {
		busStats := bus.GetStats()
		assert.Greater(t, busStats.EventsPublished, int64(0))
		assert.Greater(t, busStats.ActiveSubscribers, int64(0))

		processorStats := processor.GetStats()
		assert.GreaterOrEqual(t, processorStats.DocumentsProcessed, int64(1))
		assert.GreaterOrEqual(t, processorStats.DocumentsRedacted, int64(1))

		storageStats := store.GetStats()
		assert.Equal(t, true, storageStats["git_archive"])

		rec := get(t, "/api/v1/statistics")
		require.Equal(t, 200, rec.Code)
		var stats map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		assert.GreaterOrEqual(t, stats["total_documents"], float64(11))
	})
}
