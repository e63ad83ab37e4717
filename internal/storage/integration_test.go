package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/civiclab-mx/observatorio/pkg/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHybridStorageIntegration tests the layered storage with the file
// primary and git archive
func TestHybridStorageIntegration(t *testing.T) {
	tempDir := t.TempDir()
	dataRoot := filepath.Join(tempDir, "data")
	gitRepoPath := filepath.Join(tempDir, "archive")

	metrics := NewSimpleMetricsCollector()

	config := &HybridStorageConfig{
		PrimaryBackend:   "file",
		EnableGitArchive: true,
		OperationTimeout: 10 * time.Second,
		EnableSync:       false,
	}

	hybridStorage, err := NewHybridStorage(dataRoot, gitRepoPath, config, metrics)
	require.NoError(t, err)
	defer hybridStorage.Close()

	testDoc := &document.Document{
		ID: "test-doc-001",
		Source: document.Source{
			Type:   "html",
			Outlet: "jornada",
			URL:    "https://example.com/test.html",
		},
		Content: document.Content{
			Raw:      []byte("<html><body>Hola</body></html>"),
			Text:     "Hola",
			Metadata: map[string]string{"title": "Test Document"},
		},
		PublishedAt: time.Date(2022, 1, 15, 0, 0, 0, 0, time.UTC),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	ctx := context.Background()

	t.Run("StoreDocument", func(t *testing.T) {
		ref, err := hybridStorage.StoreDocument(ctx, testDoc)
		assert.NoError(t, err)
		assert.NotEmpty(t, ref)
	})

	t.Run("GetDocument", func(t *testing.T) {
		retrievedDoc, err := hybridStorage.GetDocument(ctx, testDoc.ID)
		assert.NoError(t, err)
		assert.NotNil(t, retrievedDoc)
		assert.Equal(t, testDoc.ID, retrievedDoc.ID)
		assert.Equal(t, testDoc.Source.Type, retrievedDoc.Source.Type)
		assert.Equal(t, testDoc.Content.Text, retrievedDoc.Content.Text)
	})

	t.Run("ListDocuments", func(t *testing.T) {
		docs, err := hybridStorage.ListDocuments(ctx, map[string]string{"outlet": "jornada"})
		assert.NoError(t, err)
		assert.Len(t, docs, 1)
		assert.Equal(t, testDoc.ID, docs[0].ID)
	})

	t.Run("Exists", func(t *testing.T) {
		exists, err := hybridStorage.Exists(ctx, testDoc.ID)
		assert.NoError(t, err)
		assert.True(t, exists)

		exists, err = hybridStorage.Exists(ctx, "no-such-doc")
		assert.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Health", func(t *testing.T) {
		err := hybridStorage.Health(ctx)
		assert.NoError(t, err)
	})

	t.Run("GetStats", func(t *testing.T) {
		stats := hybridStorage.GetStats()
		assert.NotNil(t, stats)
		assert.NotNil(t, stats["config"])
		assert.Equal(t, true, stats["git_archive"])
		assert.Equal(t, false, stats["mongo_mirror"])
	})
}

// TestArchiveFallback tests that reads fall back to the git archive
// when the primary tree loses a document
func TestArchiveFallback(t *testing.T) {
	tempDir := t.TempDir()

	config := &HybridStorageConfig{
		PrimaryBackend:   "file",
		EnableGitArchive: true,
		OperationTimeout: 10 * time.Second,
		EnableSync:       false,
	}

	hybridStorage, err := NewHybridStorage(
		filepath.Join(tempDir, "data"),
		filepath.Join(tempDir, "archive"),
		config,
		NewSimpleMetricsCollector(),
	)
	require.NoError(t, err)
	defer hybridStorage.Close()

	testDoc := &document.Document{
		ID: "fallback-test-001",
		Source: document.Source{
			Type:   "html",
			Outlet: "proceso",
			URL:    "https://example.com/fallback.html",
		},
		Content: document.Content{
			Text:     "Fallback test document",
			Metadata: make(map[string]string),
		},
		PublishedAt: time.Date(2022, 4, 2, 0, 0, 0, 0, time.UTC),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	ctx := context.Background()

	_, err = hybridStorage.StoreDocument(ctx, testDoc)
	require.NoError(t, err)

	// Archiving runs in the background after the primary store.
	require.Eventually(t, func() bool {
		exists, err := hybridStorage.gitBackend.Exists(ctx, testDoc.ID)
		return err == nil && exists
	}, 5*time.Second, 50*time.Millisecond, "document should reach the git archive")

	// Drop the document from the primary tree only.
	require.NoError(t, hybridStorage.fileBackend.DeleteDocument(ctx, testDoc.ID))

	doc, err := hybridStorage.GetDocument(ctx, testDoc.ID)
	require.NoError(t, err)
	assert.Equal(t, testDoc.ID, doc.ID)
	assert.Equal(t, testDoc.Content.Text, doc.Content.Text)
}

// TestHybridWithoutArchive tests the file-only configuration
func TestHybridWithoutArchive(t *testing.T) {
	config := &HybridStorageConfig{
		PrimaryBackend:   "file",
		EnableGitArchive: false,
		OperationTimeout: 10 * time.Second,
		EnableSync:       false,
	}

	tempDir := t.TempDir()
	hybridStorage, err := NewHybridStorage(
		filepath.Join(tempDir, "data"),
		filepath.Join(tempDir, "archive"),
		config,
		NewSimpleMetricsCollector(),
	)
	require.NoError(t, err)
	defer hybridStorage.Close()

	ctx := context.Background()

	numDocs := 5
	for i := 0; i < numDocs; i++ {
		doc := &document.Document{
			ID: fmt.Sprintf("file-only-%03d", i),
			Source: document.Source{
				Type:   "html",
				Outlet: "economista",
				URL:    fmt.Sprintf("https://example.com/file-only-%d.html", i),
			},
			Content: document.Content{
				Text:     fmt.Sprintf("File-only test document #%d", i),
				Metadata: make(map[string]string),
			},
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		_, err := hybridStorage.StoreDocument(ctx, doc)
		require.NoError(t, err)
	}

	docs, err := hybridStorage.ListDocuments(ctx, map[string]string{"outlet": "economista"})
	require.NoError(t, err)
	assert.Len(t, docs, numDocs)

	require.NoError(t, hybridStorage.Health(ctx))

	summary := NewSimpleMetricsCollector().GetMetricsSummary()
	assert.NotNil(t, summary)
}

// TestMongoBackend exercises the mirror against a live deployment.
// Skipped unless MONGO_TEST_URI is set.
func TestMongoBackend(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backend, err := NewMongoBackend(ctx, uri, "observatorio_test", "documents_test", NewSimpleMetricsCollector())
	require.NoError(t, err)
	defer backend.Close()

	doc := &document.Document{
		ID: document.NewID("https://example.com/mongo-test"),
		Source: document.Source{
			Type:   "html",
			Outlet: "financiero",
			URL:    "https://example.com/mongo-test",
		},
		Content: document.Content{
			Text:     "Mongo mirror test document",
			Metadata: map[string]string{"title": "Mirror"},
		},
		PublishedAt: time.Date(2022, 7, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	_, err = backend.StoreDocument(ctx, doc)
	require.NoError(t, err)
	defer backend.DeleteDocument(ctx, doc.ID)

	exists, err := backend.Exists(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	retrieved, err := backend.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Content.Text, retrieved.Content.Text)

	// Storing the same ID again must stay an update, not a duplicate.
	stored, err := backend.StoreDocuments(ctx, []*document.Document{doc})
	require.NoError(t, err)
	assert.Equal(t, 1, stored)
}
