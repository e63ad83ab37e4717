package news

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civiclab-mx/observatorio/pkg/document"
)

const jornadaEdition = `<html><body>
<div class="main-sections"><table><tbody><tr>
<td><a href="politica">Política</a></td>
<td><a href="opinion">Opinión</a></td>
<td><a href="cartones">Cartones</a></td>
<td class="sflinktd"><a href="https://otra.edicion/">Ediciones</a></td>
</tr></tbody></table></div>
</body></html>`

const jornadaPolitica = `<html><body>
<div id="section-cont">
<div><a href="politica/004n1pol"><span class="cabeza">Titular uno</span></a><a class="feet-link" href="politica/004n1pol/comments"><span class="cabeza">Comentarios</span></a></div>
<div><a href="politica/005n2pol"><span class="cabeza">Titular dos</span></a></div>
</div>
</body></html>`

const jornadaOpinion = `<html><body>
<div class="cabeza">Columna única</div>
<div id="article-text"><p>Texto.</p></div>
</body></html>`

func jornadaTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/2024/03/05/politica", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(jornadaPolitica))
	})
	mux.HandleFunc("/2024/03/05/opinion", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(jornadaOpinion))
	})
	mux.HandleFunc("/2024/03/05/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(jornadaEdition))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestJornadaList(t *testing.T) {
	server := jornadaTestServer(t)
	fetcher := newTestFetcher(t, "jornada")
	checkpoints := newTestCheckpoints(t)
	src := NewJornada(fetcher, checkpoints, &JornadaConfig{
		BaseURL:         server.URL + "/",
		ExcludeSections: []string{"cartones"},
	})

	target := day(2024, time.March, 5)
	articles, err := src.List(context.Background(), target, target)
	require.NoError(t, err)
	require.Len(t, articles, 3)

	first := articles[0]
	assert.Equal(t, "jornada", first.Outlet)
	assert.Equal(t, "politica", first.Section)
	assert.Equal(t, server.URL+"/2024/03/05/politica/004n1pol", first.URL)
	assert.Equal(t, document.NewID(first.URL), first.ID)
	assert.Equal(t, target, first.PublishedAt)

	assert.Equal(t, server.URL+"/2024/03/05/politica/005n2pol", articles[1].URL)

	// The opinion section has no listing container, so the section page
	// itself is the article.
	assert.Equal(t, "opinion", articles[2].Section)
	assert.Equal(t, server.URL+"/2024/03/05/opinion", articles[2].URL)

	// Committing progress makes the same window a no-op.
	require.NoError(t, src.SaveProgress())
	again, err := src.List(context.Background(), target, target)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestJornadaListMissingDay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	src := NewJornada(newTestFetcher(t, "jornada"), nil, &JornadaConfig{BaseURL: server.URL + "/"})
	articles, err := src.List(context.Background(), day(2021, time.June, 1), day(2021, time.June, 2))
	require.NoError(t, err)
	assert.Empty(t, articles)
}

func TestJornadaListFutureDaysClamped(t *testing.T) {
	server := jornadaTestServer(t)
	src := NewJornada(newTestFetcher(t, "jornada"), nil, &JornadaConfig{BaseURL: server.URL + "/"})

	// A window entirely in the future lists nothing without touching the
	// server.
	start := time.Now().UTC().AddDate(0, 0, 2)
	articles, err := src.List(context.Background(), start, start.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Empty(t, articles)
}
