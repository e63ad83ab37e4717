package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func financieroConfig(serverURL string) *FinancieroConfig {
	return &FinancieroConfig{
		BaseURL:   "https://www.elfinanciero.com.mx",
		SearchURL: serverURL + "/story-feed-sections",
		Filter:    "{content_elements{_id},count}",
		Website:   "elfinanciero",
		BatchSize: 2,
		Sections:  []string{"economia"},
	}
}

func financieroItemJSON(id, date, path string) string {
	return fmt.Sprintf(`{"_id":%q,"display_date":%q,"description":{"basic":"Resumen"},"headlines":{"basic":"Título"},"websites":{"elfinanciero":{"website_section":{"name":"Economía"},"website_url":%q}}}`,
		id, date, path)
}

func TestFinancieroBackfill(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "elfinanciero", q.Get("_website"))
		assert.Equal(t, "{content_elements{_id},count}", q.Get("filter"))

		var feed struct {
			Feature         string `json:"feature"`
			FeedOffset      int    `json:"feedOffset"`
			FeedSize        int    `json:"feedSize"`
			IncludeSections string `json:"includeSections"`
		}
		require.NoError(t, json.Unmarshal([]byte(q.Get("query")), &feed))
		assert.Equal(t, "results-list", feed.Feature)
		assert.Equal(t, 2, feed.FeedSize)
		assert.Equal(t, "/economia", feed.IncludeSections)

		switch feed.FeedOffset {
		case 0:
			fmt.Fprintf(w, `{"count":3,"content_elements":[%s,%s]}`,
				financieroItemJSON("ABC123", "2024-03-05T10:00:00Z", "/economia/2024/03/05/nota-uno/"),
				financieroItemJSON("ABC124", "2024-03-04T09:30:00Z", "/economia/2024/03/04/nota-dos/"))
		case 2:
			fmt.Fprintf(w, `{"count":3,"content_elements":[%s]}`,
				financieroItemJSON("ABC125", "2024-03-03T08:00:00Z", "/economia/2024/03/03/nota-tres/"))
		default:
			t.Errorf("unexpected offset %d", feed.FeedOffset)
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	checkpoints := newTestCheckpoints(t)
	src := NewFinanciero(newTestFetcher(t, "financiero"), checkpoints, financieroConfig(server.URL))

	articles, err := src.List(context.Background(), day(2018, time.January, 1), day(2024, time.December, 31))
	require.NoError(t, err)
	require.Len(t, articles, 3)

	a := articles[0]
	assert.Equal(t, "ABC123", a.ID)
	assert.Equal(t, "financiero", a.Outlet)
	assert.Equal(t, "economia", a.Section)
	assert.Equal(t, "https://www.elfinanciero.com.mx/economia/2024/03/05/nota-uno/", a.URL)
	assert.Equal(t, time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC), a.PublishedAt)

	// Reaching the reported section total finishes the backfill.
	require.NoError(t, src.SaveProgress())
	v, ok, err := checkpoints.OffsetCheckpoint("financiero", "economia")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, -4, v)
}

func TestFinancieroWindowEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"count":100,"content_elements":[%s]}`,
			financieroItemJSON("OLD1", "2017-06-01T00:00:00Z", "/economia/vieja/"))
	}))
	defer server.Close()

	checkpoints := newTestCheckpoints(t)
	src := NewFinanciero(newTestFetcher(t, "financiero"), checkpoints, financieroConfig(server.URL))

	articles, err := src.List(context.Background(), day(2018, time.January, 1), day(2024, time.December, 31))
	require.NoError(t, err)
	assert.Empty(t, articles)

	// The first batch already predates the window, so the section is marked
	// finished even though its offset never advanced.
	require.NoError(t, src.SaveProgress())
	v, _, err := checkpoints.OffsetCheckpoint("financiero", "economia")
	require.NoError(t, err)
	assert.Equal(t, -2, v)
}

func TestFinancieroResume(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var feed struct {
			FeedOffset int `json:"feedOffset"`
		}
		require.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("query")), &feed))
		assert.Equal(t, 6, feed.FeedOffset)
		fmt.Fprint(w, `{"count":0,"content_elements":[]}`)
	}))
	defer server.Close()

	checkpoints := newTestCheckpoints(t)
	require.NoError(t, checkpoints.SaveOffsetCheckpoint("financiero", "economia", 4))

	src := NewFinanciero(newTestFetcher(t, "financiero"), checkpoints, financieroConfig(server.URL))
	articles, err := src.List(context.Background(), day(2018, time.January, 1), day(2024, time.December, 31))
	require.NoError(t, err)
	assert.Empty(t, articles)

	require.NoError(t, src.SaveProgress())
	v, _, err := checkpoints.OffsetCheckpoint("financiero", "economia")
	require.NoError(t, err)
	assert.Equal(t, -6, v)
}
