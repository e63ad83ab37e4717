package news

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/civiclab-mx/observatorio/internal/harvest"
	"github.com/civiclab-mx/observatorio/internal/storage"
	"github.com/civiclab-mx/observatorio/pkg/document"
)

var (
	jornadaTitlePrefixRe = regexp.MustCompile(`^ *La Jornada:`)
	ldJSONNoiseRe        = regexp.MustCompile(`([\t\n] *)+`)
)

// JornadaConfig holds the archive layout of La Jornada. The paper publishes
// a browsable edition per day at BaseURL/YYYY/MM/DD/.
type JornadaConfig struct {
	BaseURL         string   `json:"base_url"`
	ExcludeSections []string `json:"exclude_sections"`
}

func DefaultJornadaConfig() *JornadaConfig {
	return &JornadaConfig{
		BaseURL:         "https://www.jornada.com.mx/",
		ExcludeSections: []string{"portada", "cartones", "correo"},
	}
}

// Jornada lists articles by walking daily edition pages. Each edition links
// its sections, each section page links its articles. A date checkpoint
// marks the last fully listed day.
type Jornada struct {
	fetcher     *harvest.Fetcher
	checkpoints *storage.Checkpoints
	config      *JornadaConfig

	pendingDate time.Time
	havePending bool
}

func NewJornada(fetcher *harvest.Fetcher, checkpoints *storage.Checkpoints, config *JornadaConfig) *Jornada {
	if config == nil {
		config = DefaultJornadaConfig()
	}
	return &Jornada{fetcher: fetcher, checkpoints: checkpoints, config: config}
}

func (s *Jornada) Name() string { return "jornada" }

func (s *Jornada) List(ctx context.Context, from, to time.Time) ([]Article, error) {
	start := from.UTC().Truncate(24 * time.Hour)
	if s.checkpoints != nil {
		if last, ok, err := s.checkpoints.DateCheckpoint(s.Name(), "archive"); err != nil {
			log.Warn().Err(err).Msg("Failed to read jornada date checkpoint")
		} else if ok {
			if next := last.AddDate(0, 0, 1); next.After(start) {
				start = next
			}
		}
	}
	end := to.UTC().Truncate(24 * time.Hour)
	if today := time.Now().UTC().Truncate(24 * time.Hour); end.After(today) {
		end = today
	}

	var articles []Article
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return articles, err
		}
		dayArticles, err := s.listDay(ctx, day)
		if err != nil {
			return articles, fmt.Errorf("listing %s: %w", day.Format("2006-01-02"), err)
		}
		articles = append(articles, dayArticles...)
		s.pendingDate = day
		s.havePending = true
	}
	return articles, nil
}

// SaveProgress records the last fully listed day.
func (s *Jornada) SaveProgress() error {
	if !s.havePending || s.checkpoints == nil {
		return nil
	}
	return s.checkpoints.SaveDateCheckpoint(s.Name(), "archive", s.pendingDate)
}

func (s *Jornada) listDay(ctx context.Context, day time.Time) ([]Article, error) {
	dateURL := s.config.BaseURL + day.Format("2006/01/02") + "/"
	res, err := s.fetcher.Fetch(ctx, s.Name(), dateURL)
	if err != nil {
		return nil, err
	}
	// Days missing from the archive respond 404 (or 403 for some old
	// editions). They are not an error, just an empty day.
	if res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusForbidden {
		log.Debug().Str("url", dateURL).Int("status", res.StatusCode).Msg("No edition for day")
		return nil, nil
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("edition page %s returned status %d", dateURL, res.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("parsing edition page: %w", err)
	}

	seen := make(map[string]bool)
	var articles []Article
	for _, section := range s.sections(doc, dateURL) {
		urls, err := s.listSection(ctx, section.url)
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", section.name, err)
		}
		for _, u := range urls {
			if seen[u] {
				continue
			}
			seen[u] = true
			articles = append(articles, Article{
				ID:          document.NewID(u),
				Outlet:      s.Name(),
				Section:     section.name,
				URL:         u,
				PublishedAt: day,
			})
		}
	}
	return articles, nil
}

type jornadaSection struct {
	name string
	url  string
}

func (s *Jornada) sections(doc *goquery.Document, dateURL string) []jornadaSection {
	var sections []jornadaSection
	doc.Find("div.main-sections td").Each(func(_ int, td *goquery.Selection) {
		if td.HasClass("sflinktd") {
			return
		}
		name := normalizeSection(td.Text())
		if name == "" || s.excluded(name) {
			return
		}
		href, ok := td.Find("a").First().Attr("href")
		if !ok {
			return
		}
		sections = append(sections, jornadaSection{name: name, url: resolveURL(dateURL, href)})
	})
	return sections
}

func (s *Jornada) excluded(name string) bool {
	for _, e := range s.config.ExcludeSections {
		if name == e {
			return true
		}
	}
	return false
}

// listSection returns the article URLs linked from a section page. Sections
// without the listing container hold a single article at the section URL
// itself.
func (s *Jornada) listSection(ctx context.Context, sectionURL string) ([]string, error) {
	res, err := s.fetcher.Fetch(ctx, s.Name(), sectionURL)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("section page returned status %d", res.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, err
	}
	cont := doc.Find("div#section-cont").First()
	if cont.Length() == 0 {
		return []string{sectionURL}, nil
	}
	var urls []string
	cont.ChildrenFiltered("div").Each(func(_ int, block *goquery.Selection) {
		block.Find("a").Each(func(_ int, a *goquery.Selection) {
			if class, _ := a.Attr("class"); strings.Contains(class, "feet") {
				return
			}
			if a.Find(".cabeza").Length() == 0 {
				return
			}
			if href, ok := a.Attr("href"); ok {
				urls = append(urls, resolveURL(sectionURL, href))
			}
		})
	})
	return urls, nil
}

type jornadaMetadata struct {
	Description string `json:"description"`
	Headline    string `json:"headline"`
}

// ParseArticle fills title, summary, and body from an article page. The
// title and summary come from the embedded ld+json block when it parses,
// falling back to the headline element.
func (s *Jornada) ParseArticle(page []byte, article *Article) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return err
	}
	if meta := jornadaLDJSON(doc); meta != nil {
		article.Summary = strings.TrimSpace(meta.Description)
		article.Title = strings.TrimSpace(jornadaTitlePrefixRe.ReplaceAllString(meta.Headline, ""))
	}
	if article.Title == "" {
		article.Title = strings.TrimSpace(doc.Find("div.cabeza").First().Text())
	}
	body := doc.Find("div#article-text").First()
	if body.Length() == 0 {
		return fmt.Errorf("article body not found")
	}
	body.Find("div.pie-foto, div.credito-autor, div.credito-titulo, div.hemero").Remove()
	article.Body = collapseBlankLines(body.Text())
	return nil
}

// jornadaLDJSON decodes the first ld+json script on the page. The blocks
// carry literal tabs and newlines inside string values, which encoding/json
// rejects, so those runs are stripped first.
func jornadaLDJSON(doc *goquery.Document) *jornadaMetadata {
	var meta *jornadaMetadata
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		raw := ldJSONNoiseRe.ReplaceAllString(sel.Text(), "")
		var m jornadaMetadata
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			log.Debug().Err(err).Msg("Skipping unparseable ld+json block")
			return true
		}
		if m.Headline == "" && m.Description == "" {
			return true
		}
		meta = &m
		return false
	})
	return meta
}
