package news

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"

	"github.com/civiclab-mx/observatorio/internal/harvest"
	"github.com/civiclab-mx/observatorio/internal/storage"
)

type FinancieroConfig struct {
	BaseURL   string   `json:"base_url"`
	SearchURL string   `json:"search_url"`
	Filter    string   `json:"filter"`
	Website   string   `json:"website"`
	BatchSize int      `json:"batch_size"`
	Sections  []string `json:"sections"`
}

func DefaultFinancieroConfig() *FinancieroConfig {
	return &FinancieroConfig{
		BaseURL:   "https://www.elfinanciero.com.mx",
		SearchURL: "https://www.elfinanciero.com.mx/pf/api/v3/content/fetch/story-feed-sections",
		Filter:    "{content_elements{_id,description{basic},text,display_date,headlines{basic},websites{elfinanciero{website_section{_id,name},website_url}}},count}",
		Website:   "elfinanciero",
		BatchSize: 20,
		Sections: []string{
			"economia",
			"mercados",
			"nacional",
			"opinion",
			"estados",
			"salud",
			"transporte_y_movilidad",
			"empresas",
			"ciencia",
			"culturas",
			"tech",
			"border",
		},
	}
}

// Financiero lists articles through the paper's story-feed API, which pages
// with a feed offset and reports the section total in every response. The
// last completed offset is checkpointed during a backfill; a negative
// checkpoint marks the section done and later runs scan forward from offset
// zero until they leave the window.
type Financiero struct {
	fetcher     *harvest.Fetcher
	checkpoints *storage.Checkpoints
	config      *FinancieroConfig

	pending map[string]int
}

func NewFinanciero(fetcher *harvest.Fetcher, checkpoints *storage.Checkpoints, config *FinancieroConfig) *Financiero {
	if config == nil {
		config = DefaultFinancieroConfig()
	}
	return &Financiero{
		fetcher:     fetcher,
		checkpoints: checkpoints,
		config:      config,
		pending:     make(map[string]int),
	}
}

func (s *Financiero) Name() string { return "financiero" }

type financieroQuery struct {
	ExcludeSections string `json:"excludeSections"`
	Feature         string `json:"feature"`
	FeedOffset      int    `json:"feedOffset"`
	FeedSize        int    `json:"feedSize"`
	IncludeSections string `json:"includeSections"`
}

type financieroItem struct {
	ID          string `json:"_id"`
	DisplayDate string `json:"display_date"`
	Description struct {
		Basic string `json:"basic"`
	} `json:"description"`
	Headlines struct {
		Basic string `json:"basic"`
	} `json:"headlines"`
	Websites struct {
		ElFinanciero struct {
			WebsiteSection struct {
				Name string `json:"name"`
			} `json:"website_section"`
			WebsiteURL string `json:"website_url"`
		} `json:"elfinanciero"`
	} `json:"websites"`
}

type financieroPage struct {
	Count           int              `json:"count"`
	ContentElements []financieroItem `json:"content_elements"`
}

func (s *Financiero) List(ctx context.Context, from, to time.Time) ([]Article, error) {
	var articles []Article
	for _, section := range s.config.Sections {
		if err := ctx.Err(); err != nil {
			return articles, err
		}
		sectionArticles, err := s.listSection(ctx, section, from, to)
		articles = append(articles, sectionArticles...)
		if err != nil {
			log.Error().Err(err).Str("section", section).Msg("Failed to list financiero section")
		}
	}
	return articles, nil
}

// SaveProgress persists the per-section offset checkpoints reached during
// the last List call.
func (s *Financiero) SaveProgress() error {
	if s.checkpoints == nil {
		return nil
	}
	for section, offset := range s.pending {
		if err := s.checkpoints.SaveOffsetCheckpoint(s.Name(), section, offset); err != nil {
			return err
		}
	}
	s.pending = make(map[string]int)
	return nil
}

func (s *Financiero) listSection(ctx context.Context, section string, from, to time.Time) ([]Article, error) {
	offset, backfill := s.startOffset(section)
	var articles []Article
	total := -1
	for total < 0 || offset < total {
		feed := financieroQuery{
			Feature:         "results-list",
			FeedOffset:      offset,
			FeedSize:        s.config.BatchSize,
			IncludeSections: "/" + strings.ReplaceAll(section, "-", "_"),
		}
		rawQuery, err := json.Marshal(feed)
		if err != nil {
			return articles, err
		}
		query := map[string]string{
			"query":    string(rawQuery),
			"filter":   s.config.Filter,
			"_website": s.config.Website,
		}
		var resp financieroPage
		if err := s.fetcher.FetchJSON(ctx, s.Name(), s.config.SearchURL, query, &resp); err != nil {
			return articles, fmt.Errorf("offset %d: %w", offset, err)
		}
		if total < 0 {
			total = resp.Count
			log.Debug().Str("section", section).Int("total", total).Msg("Financiero section size")
		}
		if len(resp.ContentElements) == 0 {
			break
		}

		end := false
		minDate := time.Time{}
		for _, item := range resp.ContentElements {
			a, err := s.parseItem(item, section)
			if err != nil {
				log.Debug().Err(err).Str("section", section).Msg("Skipping financiero item")
				continue
			}
			if minDate.IsZero() || a.PublishedAt.Before(minDate) {
				minDate = a.PublishedAt
			}
			if a.PublishedAt.Before(from) || a.PublishedAt.After(to) {
				continue
			}
			articles = append(articles, *a)
		}
		if !minDate.IsZero() && minDate.Before(from) {
			end = true
		}
		if end {
			if backfill {
				s.pending[section] = s.finishedMarker(offset)
			}
			return articles, nil
		}
		if backfill {
			s.pending[section] = offset
		}
		offset += s.config.BatchSize
	}
	if backfill {
		s.pending[section] = s.finishedMarker(offset)
	}
	return articles, nil
}

// finishedMarker returns the negative checkpoint that marks a section
// backfill as complete. Offset zero still needs a negative value.
func (s *Financiero) finishedMarker(offset int) int {
	if offset == 0 {
		offset = s.config.BatchSize
	}
	return -offset
}

func (s *Financiero) startOffset(section string) (int, bool) {
	if s.checkpoints == nil {
		return 0, false
	}
	v, ok, err := s.checkpoints.OffsetCheckpoint(s.Name(), section)
	if err != nil {
		log.Warn().Err(err).Str("section", section).Msg("Failed to read financiero checkpoint")
		return 0, true
	}
	if !ok {
		return 0, true
	}
	if v < 0 {
		return 0, false
	}
	return v + s.config.BatchSize, true
}

func (s *Financiero) parseItem(item financieroItem, section string) (*Article, error) {
	if item.ID == "" {
		return nil, fmt.Errorf("item has no id")
	}
	if item.Websites.ElFinanciero.WebsiteURL == "" {
		return nil, fmt.Errorf("item has no url")
	}
	d, err := parseISODate(item.DisplayDate)
	if err != nil {
		return nil, fmt.Errorf("bad display date: %w", err)
	}
	name := item.Websites.ElFinanciero.WebsiteSection.Name
	if name == "" {
		name = section
	}
	return &Article{
		ID:          item.ID,
		Outlet:      s.Name(),
		Section:     normalizeSection(name),
		URL:         s.config.BaseURL + item.Websites.ElFinanciero.WebsiteURL,
		Title:       item.Headlines.Basic,
		Summary:     item.Description.Basic,
		PublishedAt: d,
	}, nil
}

// ParseArticle joins the top-level children of the body wrapper, skipping
// nested article elements (related-content blocks).
func (s *Financiero) ParseArticle(page []byte, article *Article) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return err
	}
	wrapper := doc.Find("article.article-body-wrapper").First()
	if wrapper.Length() == 0 {
		return fmt.Errorf("article body not found")
	}
	var parts []string
	for c := wrapper.Nodes[0].FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			if c.Data == "article" {
				continue
			}
			parts = append(parts, nodeText(c))
		case html.TextNode:
			parts = append(parts, c.Data)
		}
	}
	article.Body = strings.Join(parts, "\n")
	return nil
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// parseISODate accepts RFC 3339 timestamps with or without fractional
// seconds and a date-only fallback.
func parseISODate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
