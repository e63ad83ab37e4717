// Package news harvests articles from Mexican news outlets. Each outlet
// implements Source with its own listing mechanics (date archives, AJAX
// listings, JSON APIs, GraphQL) while the Collector owns deduplication,
// body fetching, and persistence.
package news

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/civiclab-mx/observatorio/pkg/document"
)

var blankLineRe = regexp.MustCompile(`(\n *)+`)

// Article is a single news item as reported by an outlet listing. Body may
// be empty after listing; the collector fetches and parses it separately.
type Article struct {
	ID          string    `json:"id"`
	Outlet      string    `json:"newspaper"`
	Section     string    `json:"section"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	PublishedAt time.Time `json:"date"`
	Body        string    `json:"text"`
	Error       string    `json:"error_message,omitempty"`
}

// ToDocument converts the article into the archive document shape.
func (a *Article) ToDocument() *document.Document {
	id := a.ID
	if id == "" {
		id = document.NewID(a.URL)
	}
	doc := &document.Document{
		ID: id,
		Source: document.Source{
			Type:   "html",
			Outlet: a.Outlet,
			URL:    a.URL,
		},
		Content: document.Content{
			Text: a.Body,
			Metadata: map[string]string{
				"title":   a.Title,
				"section": a.Section,
			},
		},
		PublishedAt: a.PublishedAt,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if a.Summary != "" {
		doc.Content.Metadata["summary"] = a.Summary
	}
	if a.Error != "" {
		doc.Content.Metadata["error_message"] = a.Error
	}
	return doc
}

// Source lists articles published by one outlet inside a time window. List
// returns listing data only; bodies are filled in by the collector through
// the shared fetch pool.
type Source interface {
	Name() string
	List(ctx context.Context, from, to time.Time) ([]Article, error)
}

// ArticleParser is implemented by sources that extract bodies from article
// pages with outlet-specific rules. The collector calls it with the raw
// page for every listed article that has no body yet.
type ArticleParser interface {
	ParseArticle(page []byte, article *Article) error
}

// ProgressSaver is implemented by sources that track a listing position
// (date, page, or offset checkpoints). The collector calls SaveProgress
// only after the listed articles have been persisted, so a crash between
// listing and storage re-lists rather than skips.
type ProgressSaver interface {
	SaveProgress() error
}

// normalizeSection lowercases a section name and strips the accents that
// appear in outlet navigation labels.
func normalizeSection(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch r {
		case 'á', 'à', 'â', 'ä':
			b.WriteRune('a')
		case 'é', 'è', 'ê', 'ë':
			b.WriteRune('e')
		case 'í', 'ì', 'î', 'ï':
			b.WriteRune('i')
		case 'ó', 'ò', 'ô', 'ö':
			b.WriteRune('o')
		case 'ú', 'ù', 'û', 'ü':
			b.WriteRune('u')
		case 'ñ':
			b.WriteRune('n')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

var spanishMonths = map[string]time.Month{
	"enero":      time.January,
	"febrero":    time.February,
	"marzo":      time.March,
	"abril":      time.April,
	"mayo":       time.May,
	"junio":      time.June,
	"julio":      time.July,
	"agosto":     time.August,
	"septiembre": time.September,
	"octubre":    time.October,
	"noviembre":  time.November,
	"diciembre":  time.December,
}

// parseSpanishDate parses dates written out in Spanish, e.g.
// "2 de abril de 2024".
func parseSpanishDate(day, month, year string) (time.Time, error) {
	m, ok := spanishMonths[normalizeSection(month)]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown month %q", month)
	}
	var d, y int
	if _, err := fmt.Sscanf(day, "%d", &d); err != nil {
		return time.Time{}, fmt.Errorf("bad day %q: %w", day, err)
	}
	if _, err := fmt.Sscanf(year, "%d", &y); err != nil {
		return time.Time{}, fmt.Errorf("bad year %q: %w", year, err)
	}
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

// collapseBlankLines reduces runs of newlines and indented blank lines to a
// single newline and trims the result.
func collapseBlankLines(s string) string {
	return strings.TrimSpace(blankLineRe.ReplaceAllString(s, "\n"))
}

// resolveURL resolves href against base, returning href unchanged when it
// is already absolute or base does not parse.
func resolveURL(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}
