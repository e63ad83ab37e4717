package news

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const economistaPage1 = `{"items":[
{"main":{"title":{"article":"Título uno"}},"info":{"section":{"name":"Economía"},"link":{"canonical":"https://www.eleconomista.com.mx/economia/nota-uno"},"date":{"created":1709632800000}}},
{"main":{"title":{"article":"Título dos"}},"info":{"section":{"name":"Economía"},"link":{"canonical":"https://www.eleconomista.com.mx/economia/nota-dos"},"date":{"created":1709546400000}}}
],"next":"2"}`

const economistaPage2 = `{"items":[
{"main":{"title":{"article":"Antigua"}},"info":{"section":{"name":"Economía"},"link":{"canonical":"https://www.eleconomista.com.mx/economia/antigua"},"date":{"created":1496275200000}}}
]}`

func economistaConfig(serverURL string) *EconomistaConfig {
	return &EconomistaConfig{
		SearchURL: serverURL + "/news-list-section.json",
		BatchSize: 2,
		Sections:  []string{"economia"},
	}
}

func TestEconomistaBackfill(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "economia", q.Get("section"))
		assert.Equal(t, "user-modification-date desc", q.Get("order"))
		assert.Equal(t, "2", q.Get("size"))
		switch q.Get("page") {
		case "1":
			w.Write([]byte(economistaPage1))
		case "2":
			w.Write([]byte(economistaPage2))
		default:
			t.Errorf("unexpected page %q", q.Get("page"))
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	checkpoints := newTestCheckpoints(t)
	src := NewEconomista(newTestFetcher(t, "economista"), checkpoints, economistaConfig(server.URL))

	articles, err := src.List(context.Background(), day(2018, time.January, 1), day(2024, time.December, 31))
	require.NoError(t, err)
	require.Len(t, articles, 2)

	a := articles[0]
	assert.Equal(t, "economista", a.Outlet)
	assert.Equal(t, "economia", a.Section)
	assert.Equal(t, "Título uno", a.Title)
	assert.Equal(t, "https://www.eleconomista.com.mx/economia/nota-uno", a.URL)
	assert.Equal(t, time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC), a.PublishedAt)

	// The 2017 page ends the backfill; the section is marked finished.
	require.NoError(t, src.SaveProgress())
	v, ok, err := checkpoints.OffsetCheckpoint("economista", "economia")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, -2, v)
}

func TestEconomistaResume(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "4", r.URL.Query().Get("page"))
		w.Write([]byte(`{"items":[]}`))
	}))
	defer server.Close()

	checkpoints := newTestCheckpoints(t)
	require.NoError(t, checkpoints.SaveOffsetCheckpoint("economista", "economia", 3))

	src := NewEconomista(newTestFetcher(t, "economista"), checkpoints, economistaConfig(server.URL))
	articles, err := src.List(context.Background(), day(2018, time.January, 1), day(2024, time.December, 31))
	require.NoError(t, err)
	assert.Empty(t, articles)

	require.NoError(t, src.SaveProgress())
	v, _, err := checkpoints.OffsetCheckpoint("economista", "economia")
	require.NoError(t, err)
	assert.Equal(t, -4, v)
}

func TestEconomistaIncrementalAfterFinish(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "1":
			w.Write([]byte(economistaPage1))
		default:
			w.Write([]byte(economistaPage2))
		}
	}))
	defer server.Close()

	checkpoints := newTestCheckpoints(t)
	require.NoError(t, checkpoints.SaveOffsetCheckpoint("economista", "economia", -7))

	src := NewEconomista(newTestFetcher(t, "economista"), checkpoints, economistaConfig(server.URL))
	articles, err := src.List(context.Background(), day(2024, time.March, 1), day(2024, time.December, 31))
	require.NoError(t, err)
	assert.Len(t, articles, 2)

	// Incremental scans do not move the finished marker.
	require.NoError(t, src.SaveProgress())
	v, _, err := checkpoints.OffsetCheckpoint("economista", "economia")
	require.NoError(t, err)
	assert.Equal(t, -7, v)
}
