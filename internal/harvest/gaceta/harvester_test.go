package gaceta

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civiclab-mx/observatorio/internal/harvest"
	"github.com/civiclab-mx/observatorio/internal/storage"
	"github.com/civiclab-mx/observatorio/pkg/document"
	"github.com/civiclab-mx/observatorio/pkg/extractor"
	"github.com/civiclab-mx/observatorio/pkg/ratelimit"
)

func testFetcher(t *testing.T) *harvest.Fetcher {
	t.Helper()

	config := harvest.DefaultFetcherConfig()
	config.MaxRetries = 2
	config.RetryBaseWait = time.Millisecond
	config.RespectRobots = false

	limiter := ratelimit.NewSourceRateLimiter()
	limiter.Register("gaceta", 0)

	fetcher, err := harvest.NewFetcher(config, limiter, nil)
	require.NoError(t, err)
	return fetcher
}

func testStore(t *testing.T) *storage.FileBackend {
	t.Helper()
	store, err := storage.NewFileBackend(t.TempDir(), storage.NewSimpleMetricsCollector())
	require.NoError(t, err)
	return store
}

func testConfig(serverURL string) *Config {
	cfg := DefaultConfig()
	cfg.IndexURLTemplate = serverURL + "/index?leg=%d&tipo=%s"
	cfg.PageQueryTemplate = "&pagina=%d&registros=%d"
	cfg.BaseURL = serverURL
	cfg.BaseURLV2 = serverURL
	cfg.Types = []string{"iniciativas"}
	cfg.Legislatures = []LegislatureWindow{{
		Number: 65,
		Start:  time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2024, 8, 31, 0, 0, 0, 0, time.UTC),
	}}
	return cfg
}

func listingRowFull(href, title, summary, date, author string) string {
	return fmt.Sprintf(`<tr>
<td><a href="%s">%s</a></td>
<td>%s</td>
<td>%s</td>
<td><p>%s</p></td>
<td></td><td></td><td></td><td>En comisiones</td><td></td>
<td><a href="%s">Ver documento</a></td>
</tr>`, href, title, summary, date, author, href)
}

func listingRowReduced(href, title, summary, date, author string) string {
	return fmt.Sprintf(`<tr>
<td><a href="%s">%s</a></td>
<td>%s</td>
<td>%s</td>
<td><p>%s</p></td>
<td></td><td></td><td></td><td>Resuelto</td><td></td>
<td>Sin documento</td>
</tr>`, href, title, summary, date, author)
}

func listingPage(totalPages int, rows ...string) string {
	page := `<html><body><div class="panel-heading"><p>Página 1 de ` +
		fmt.Sprintf("%d", totalPages) + `, registros del 1 al 250</p></div><table><thead><tr><th>Asunto</th></tr></thead><tbody>`
	for _, r := range rows {
		page += r
	}
	return page + `</tbody></table></body></html>`
}

func TestHarvestStoresPublications(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/index", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(listingPage(1,
			listingRowFull("/pub/1", "Iniciativa uno", "Resumen uno", "2022/03/15", "Autora Uno (MORENA)"),
			listingRowFull("/pub/2", "Iniciativa dos", "Resumen dos", "2023/05/20", "Autor Dos (PAN)"),
			listingRowReduced("/pub/3", "Proposicion tres", "Resumen tres", "2022/08/01", "Autora Tres (PRI)"),
			listingRowFull("/pub/4", "Fuera de ventana", "Resumen cuatro", "2020/01/01", "Autor Cuatro (PRD)"),
		)))
	})
	mux.HandleFunc("/pub/1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div class="container-fluid bg-content main"><div class="panel-group">
<div class="panel panel-default"></div>
<div class="panel panel-default"></div>
<div class="panel panel-default"><div class="panel-heading">Contenido</div>
<div class="panel-body"><p>Texto completo de la iniciativa uno</p></div></div>
</div></div></body></html>`))
	})
	mux.HandleFunc("/pub/2", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div class="container-fluid main">
<div class="card-header">Archivos para descargar:</div>
<div class="card-body"><a href="/adjunto/2.pdf">PDF</a></div>
</div></body></html>`))
	})
	// Attachment is gone: the publication falls back to its summary.
	mux.HandleFunc("/adjunto/2.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	store := testStore(t)
	harvester := NewHarvester(testFetcher(t), store, extractor.NewEngine(), nil, testConfig(server.URL))

	ctx := context.Background()
	stats, err := harvester.Harvest(ctx,
		time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 8, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, 1, stats.PagesProcessed)
	assert.Equal(t, 3, stats.PublicationsSeen, "out-of-window row must not count")
	assert.Equal(t, 3, stats.PublicationsStored)
	assert.Equal(t, 0, stats.PublicationsSkipped)
	assert.Equal(t, 0, stats.Failures)

	doc1, err := store.GetDocument(ctx, document.NewID(server.URL+"/pub/1"))
	require.NoError(t, err)
	assert.Contains(t, doc1.Content.Text, "iniciativa uno")
	assert.Equal(t, "Iniciativa uno", doc1.Content.Metadata["title"])
	assert.Equal(t, "Autora Uno (MORENA)", doc1.Content.Metadata["authors"])
	assert.Equal(t, "gaceta", doc1.Source.Outlet)

	doc2, err := store.GetDocument(ctx, document.NewID(server.URL+"/pub/2"))
	require.NoError(t, err)
	assert.Equal(t, "Resumen dos", doc2.Content.Text, "missing attachment keeps the summary")

	doc3, err := store.GetDocument(ctx, document.NewID(server.URL+"/pub/3"))
	require.NoError(t, err)
	assert.Equal(t, "Resumen tres", doc3.Content.Text, "reduced records keep the summary")

	// A second run finds everything already stored.
	stats, err = harvester.Harvest(ctx,
		time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 8, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.PublicationsStored)
	assert.Equal(t, 3, stats.PublicationsSkipped)
}

func TestHarvestPagination(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/index", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pagina") == "2" {
			w.Write([]byte(listingPage(2,
				listingRowFull("/pub/b", "Segunda", "Resumen b", "2022/02/02", "Autor B (PAN)"))))
			return
		}
		w.Write([]byte(listingPage(2,
			listingRowFull("/pub/a", "Primera", "Resumen a", "2022/01/01", "Autor A (MORENA)"))))
	})
	textPage := func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div class="container-fluid bg-content main"><div class="panel-group">
<div class="panel panel-default"></div>
<div class="panel panel-default"></div>
<div class="panel panel-default"><div class="panel-body">Texto</div></div>
</div></div></body></html>`))
	}
	mux.HandleFunc("/pub/a", textPage)
	mux.HandleFunc("/pub/b", textPage)

	store := testStore(t)
	harvester := NewHarvester(testFetcher(t), store, extractor.NewEngine(), nil, testConfig(server.URL))

	stats, err := harvester.Harvest(context.Background(),
		time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 8, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, 2, stats.PagesProcessed)
	assert.Equal(t, 2, stats.PublicationsStored)
}

func TestHarvestCapturesExtractionFailures(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/index", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(listingPage(1,
			listingRowFull("/pub/roto", "Con adjunto roto", "Resumen roto", "2022/06/01", "Autor (PVEM)"))))
	})
	mux.HandleFunc("/pub/roto", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div class="container-fluid main">
<div class="card-header">Archivos para descargar:</div>
<div class="card-body"><a href="/adjunto/roto.pdf">PDF</a></div>
</div></body></html>`))
	})
	mux.HandleFunc("/adjunto/roto.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("esto no es un pdf"))
	})

	capture, err := harvest.NewErrorCapture(t.TempDir())
	require.NoError(t, err)

	store := testStore(t)
	harvester := NewHarvester(testFetcher(t), store, extractor.NewEngine(), capture, testConfig(server.URL))

	stats, err := harvester.Harvest(context.Background(),
		time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 8, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, 0, stats.PublicationsStored)
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, int64(1), capture.Count(), "broken attachment leaves a diagnostic dump")

	exists, err := store.Exists(context.Background(), document.NewID(server.URL+"/pub/roto"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestHarvestSkipsNonOverlappingLegislatures(t *testing.T) {
	harvester := NewHarvester(testFetcher(t), testStore(t), extractor.NewEngine(), nil, testConfig("http://127.0.0.1:1"))

	// Range entirely before the configured window: nothing is fetched,
	// so the unreachable server never matters.
	stats, err := harvester.Harvest(context.Background(),
		time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.PagesProcessed)
	assert.Equal(t, 0, stats.Failures)
}
