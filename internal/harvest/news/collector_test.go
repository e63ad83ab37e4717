package news

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civiclab-mx/observatorio/internal/storage"
	"github.com/civiclab-mx/observatorio/pkg/extractor"
)

type stubSource struct {
	name      string
	articles  []Article
	listErr   error
	saveCalls int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) List(ctx context.Context, from, to time.Time) ([]Article, error) {
	out := make([]Article, len(s.articles))
	copy(out, s.articles)
	return out, s.listErr
}

func (s *stubSource) SaveProgress() error {
	s.saveCalls++
	return nil
}

// stubParserSource parses bodies itself instead of going through the
// extraction engine.
type stubParserSource struct {
	stubSource
}

func (s *stubParserSource) ParseArticle(page []byte, article *Article) error {
	article.Body = strings.TrimSpace(string(page))
	return nil
}

func newTestCollector(t *testing.T, src Source, config *CollectorConfig) (*Collector, storage.StorageBackend, *storage.Checkpoints, *storage.ArticleLog) {
	t.Helper()
	store, err := storage.NewFileBackend(t.TempDir(), storage.NewSimpleMetricsCollector())
	require.NoError(t, err)
	checkpoints := newTestCheckpoints(t)
	articleLog, err := storage.NewArticleLog(t.TempDir())
	require.NoError(t, err)
	collector, err := NewCollector([]Source{src}, newTestFetcher(t, src.Name()), store, checkpoints, articleLog, extractor.NewEngine(), config)
	require.NoError(t, err)
	return collector, store, checkpoints, articleLog
}

func TestCollectorRun(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/a1" {
			w.Write([]byte("Cuerpo uno"))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	published := day(2024, time.March, 5)
	src := &stubParserSource{stubSource{
		name: "stub",
		articles: []Article{
			{ID: "n1", Outlet: "stub", Section: "politica", URL: server.URL + "/a1", Title: "Uno", PublishedAt: published},
			{ID: "n2", Outlet: "stub", Section: "politica", URL: server.URL + "/a2", Title: "Dos", PublishedAt: published},
			{ID: "n3", Outlet: "stub", Section: "politica", URL: server.URL + "/a3", Title: "Tres", PublishedAt: published, Body: "Ya tengo cuerpo"},
		},
	}}

	collector, store, checkpoints, articleLog := newTestCollector(t, src, nil)
	ctx := context.Background()

	stats, err := collector.Run(ctx, day(2024, time.January, 1), day(2024, time.December, 31))
	require.NoError(t, err)
	st := stats["stub"]
	require.NotNil(t, st)
	assert.Equal(t, 3, st.ArticlesListed)
	assert.Equal(t, 3, st.ArticlesStored)
	assert.Equal(t, 1, st.BodyFailures)
	assert.Equal(t, 0, st.StoreFailures)
	assert.Equal(t, 0, st.ArticlesSkipped)

	doc, err := store.GetDocument(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "Cuerpo uno", doc.Content.Text)

	// The 404 article is kept, with the failure in its metadata.
	failed, err := store.GetDocument(ctx, "n2")
	require.NoError(t, err)
	assert.Empty(t, failed.Content.Text)
	assert.Contains(t, failed.Content.Metadata["error_message"], "status 404")

	records, err := articleLog.Read("stub", day(2024, time.March, 1))
	require.NoError(t, err)
	assert.Len(t, records, 3)

	ids, err := checkpoints.ProcessedIDs("stub", "articles")
	require.NoError(t, err)
	assert.True(t, ids["n1"] && ids["n2"] && ids["n3"])
	assert.Equal(t, 1, src.saveCalls)

	// A second run over the same window stores nothing new.
	stats, err = collector.Run(ctx, day(2024, time.January, 1), day(2024, time.December, 31))
	require.NoError(t, err)
	assert.Equal(t, 3, stats["stub"].ArticlesSkipped)
	assert.Equal(t, 0, stats["stub"].ArticlesStored)

	last := collector.LastStats()
	assert.Equal(t, 3, last["stub"].ArticlesSkipped)
}

func TestCollectorExtractsWithoutParser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body><main><p>Hola mundo</p></main></body></html>"))
	}))
	defer server.Close()

	src := &stubSource{
		name: "stub",
		articles: []Article{
			{ID: "n1", Outlet: "stub", URL: server.URL + "/p", PublishedAt: day(2024, time.March, 5)},
		},
	}

	collector, store, _, _ := newTestCollector(t, src, nil)
	ctx := context.Background()

	stats, err := collector.Run(ctx, day(2024, time.January, 1), day(2024, time.December, 31))
	require.NoError(t, err)
	assert.Equal(t, 1, stats["stub"].ArticlesStored)
	assert.Equal(t, 0, stats["stub"].BodyFailures)

	doc, err := store.GetDocument(ctx, "n1")
	require.NoError(t, err)
	assert.Contains(t, doc.Content.Text, "Hola mundo")
}

func TestCollectorKeepFailedFalse(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	src := &stubParserSource{stubSource{
		name: "stub",
		articles: []Article{
			{ID: "n1", Outlet: "stub", URL: server.URL + "/x", PublishedAt: day(2024, time.March, 5)},
		},
	}}

	config := DefaultCollectorConfig()
	config.KeepFailed = false
	collector, store, _, _ := newTestCollector(t, src, config)
	ctx := context.Background()

	stats, err := collector.Run(ctx, day(2024, time.January, 1), day(2024, time.December, 31))
	require.NoError(t, err)
	assert.Equal(t, 1, stats["stub"].BodyFailures)
	assert.Equal(t, 0, stats["stub"].ArticlesStored)

	exists, err := store.Exists(ctx, "n1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCollectorDropsUndatedArticles(t *testing.T) {
	src := &stubParserSource{stubSource{
		name: "stub",
		articles: []Article{
			{ID: "n1", Outlet: "stub", URL: "https://example.org/x", Body: "Texto"},
		},
	}}

	collector, _, _, _ := newTestCollector(t, src, nil)

	stats, err := collector.Run(context.Background(), day(2024, time.January, 1), day(2024, time.December, 31))
	require.NoError(t, err)
	assert.Equal(t, 1, stats["stub"].StoreFailures)
	assert.Equal(t, 0, stats["stub"].ArticlesStored)

	// A store failure keeps the listing checkpoint where it was.
	assert.Equal(t, 0, src.saveCalls)
}

func TestCollectorWindowFilter(t *testing.T) {
	src := &stubParserSource{stubSource{
		name: "stub",
		articles: []Article{
			{ID: "old", Outlet: "stub", URL: "https://example.org/old", Body: "Texto", PublishedAt: day(2017, time.June, 1)},
		},
	}}

	collector, store, _, _ := newTestCollector(t, src, nil)
	ctx := context.Background()

	stats, err := collector.Run(ctx, day(2018, time.January, 1), day(2024, time.December, 31))
	require.NoError(t, err)
	assert.Equal(t, 1, stats["stub"].ArticlesSkipped)
	assert.Equal(t, 0, stats["stub"].ArticlesStored)

	exists, err := store.Exists(ctx, "old")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, 1, src.saveCalls)
}

func TestCollectorKeepsPartialResultsOnListError(t *testing.T) {
	src := &stubParserSource{stubSource{
		name: "stub",
		articles: []Article{
			{ID: "n1", Outlet: "stub", URL: "https://example.org/n1", Body: "Texto", PublishedAt: day(2024, time.March, 5)},
		},
		listErr: errors.New("section boom"),
	}}

	collector, store, _, _ := newTestCollector(t, src, nil)
	ctx := context.Background()

	stats, err := collector.Run(ctx, day(2024, time.January, 1), day(2024, time.December, 31))
	require.NoError(t, err)
	assert.Equal(t, "section boom", stats["stub"].ListError)
	assert.Equal(t, 1, stats["stub"].ArticlesStored)

	exists, err := store.Exists(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, exists)
}
