package news

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/civiclab-mx/observatorio/internal/harvest"
	"github.com/civiclab-mx/observatorio/internal/storage"
	"github.com/civiclab-mx/observatorio/pkg/document"
)

type EconomistaConfig struct {
	SearchURL string   `json:"search_url"`
	BatchSize int      `json:"batch_size"`
	Sections  []string `json:"sections"`
}

func DefaultEconomistaConfig() *EconomistaConfig {
	return &EconomistaConfig{
		SearchURL: "https://www.eleconomista.com.mx/endpoints/3.0/news-list-section.json",
		BatchSize: 40,
		Sections: []string{
			"sectorfinanciero",
			"empresas",
			"mercados",
			"economia",
			"estados",
			"politica",
			"opinion",
			"finanzaspersonales",
			"internacionales",
			"arteseideas",
			"tecnologia",
			"deportes",
			"autos",
			"capital-humano",
			"el-empresario",
			"econohabitat",
		},
	}
}

// Economista lists articles through the paper's section listing API, newest
// first. While a section backfill is in progress the last completed page is
// checkpointed; a negative checkpoint marks the backfill as done and later
// runs only scan forward from page one until they leave the window.
type Economista struct {
	fetcher     *harvest.Fetcher
	checkpoints *storage.Checkpoints
	config      *EconomistaConfig

	pending map[string]int
}

func NewEconomista(fetcher *harvest.Fetcher, checkpoints *storage.Checkpoints, config *EconomistaConfig) *Economista {
	if config == nil {
		config = DefaultEconomistaConfig()
	}
	return &Economista{
		fetcher:     fetcher,
		checkpoints: checkpoints,
		config:      config,
		pending:     make(map[string]int),
	}
}

func (s *Economista) Name() string { return "economista" }

type economistaItem struct {
	Main struct {
		Title struct {
			Article string `json:"article"`
		} `json:"title"`
	} `json:"main"`
	Info struct {
		Section struct {
			Name string `json:"name"`
		} `json:"section"`
		Link struct {
			Canonical string `json:"canonical"`
		} `json:"link"`
		Date struct {
			Created json.Number `json:"created"`
		} `json:"date"`
	} `json:"info"`
}

type economistaPage struct {
	Items []economistaItem `json:"items"`
	Next  json.RawMessage  `json:"next"`
}

func (s *Economista) List(ctx context.Context, from, to time.Time) ([]Article, error) {
	var articles []Article
	for _, section := range s.config.Sections {
		if err := ctx.Err(); err != nil {
			return articles, err
		}
		sectionArticles, err := s.listSection(ctx, section, from, to)
		articles = append(articles, sectionArticles...)
		if err != nil {
			log.Error().Err(err).Str("section", section).Msg("Failed to list economista section")
		}
	}
	return articles, nil
}

// SaveProgress persists the per-section page checkpoints reached during the
// last List call.
func (s *Economista) SaveProgress() error {
	if s.checkpoints == nil {
		return nil
	}
	for section, page := range s.pending {
		if err := s.checkpoints.SaveOffsetCheckpoint(s.Name(), section, page); err != nil {
			return err
		}
	}
	s.pending = make(map[string]int)
	return nil
}

func (s *Economista) listSection(ctx context.Context, section string, from, to time.Time) ([]Article, error) {
	page, backfill := s.startPage(section)
	var articles []Article
	for {
		query := map[string]string{
			"section": section,
			"order":   "user-modification-date desc",
			"size":    strconv.Itoa(s.config.BatchSize),
			"page":    strconv.Itoa(page),
		}
		var resp economistaPage
		if err := s.fetcher.FetchJSON(ctx, s.Name(), s.config.SearchURL, query, &resp); err != nil {
			return articles, fmt.Errorf("page %d: %w", page, err)
		}
		if len(resp.Items) == 0 {
			if backfill {
				s.pending[section] = -page
			}
			return articles, nil
		}

		end := false
		minDate := time.Time{}
		for _, item := range resp.Items {
			a, err := s.parseItem(item, section)
			if err != nil {
				log.Debug().Err(err).Str("section", section).Msg("Skipping economista item")
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

		if end || len(resp.Next) == 0 || bytes.Equal(resp.Next, []byte("null")) {
			if backfill {
				s.pending[section] = -page
			}
			return articles, nil
		}
		if backfill {
			s.pending[section] = page
		}
		page++
	}
}

// startPage resolves where to begin a section. A missing checkpoint starts
// a backfill at page one, a non-negative checkpoint resumes it, and a
// negative checkpoint switches to window-bounded scanning from page one.
func (s *Economista) startPage(section string) (int, bool) {
	if s.checkpoints == nil {
		return 1, false
	}
	v, ok, err := s.checkpoints.OffsetCheckpoint(s.Name(), section)
	if err != nil {
		log.Warn().Err(err).Str("section", section).Msg("Failed to read economista checkpoint")
		return 1, true
	}
	if !ok {
		return 1, true
	}
	if v < 0 {
		return 1, false
	}
	return v + 1, true
}

func (s *Economista) parseItem(item economistaItem, section string) (*Article, error) {
	u := item.Info.Link.Canonical
	if u == "" {
		return nil, fmt.Errorf("item has no canonical url")
	}
	created, err := item.Info.Date.Created.Float64()
	if err != nil {
		return nil, fmt.Errorf("bad creation date: %w", err)
	}
	name := item.Info.Section.Name
	if name == "" {
		name = section
	}
	return &Article{
		ID:          document.NewID(u),
		Outlet:      s.Name(),
		Section:     normalizeSection(name),
		URL:         u,
		Title:       item.Main.Title.Article,
		PublishedAt: time.UnixMilli(int64(created)).UTC(),
	}, nil
}

// ParseArticle reads body and summary from the article page, preferring the
// embedded ld+json block over the HTML fallbacks.
func (s *Economista) ParseArticle(page []byte, article *Article) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return err
	}
	script := doc.Find(`script[type="application/ld+json"]`).First()
	if script.Length() > 0 {
		var meta struct {
			Description string `json:"description"`
			ArticleBody string `json:"articleBody"`
		}
		if err := json.Unmarshal([]byte(script.Text()), &meta); err != nil {
			return fmt.Errorf("parsing article metadata: %w", err)
		}
		if meta.ArticleBody == "" {
			return fmt.Errorf("article metadata has no body")
		}
		article.Summary = strings.TrimSpace(meta.Description)
		article.Body = meta.ArticleBody
		return nil
	}

	summary := doc.Find("div.resumeNew").First()
	if summary.Length() == 0 {
		summary = doc.Find("div.newsbody").First().Prev()
	}
	article.Summary = strings.TrimSpace(summary.Text())

	body := doc.Find("div#readNote").First()
	if body.Length() == 0 {
		body = doc.Find("div.newsbody").First().ChildrenFiltered("div").Eq(1).ChildrenFiltered("div").Eq(0)
	}
	if body.Length() == 0 {
		return fmt.Errorf("article body not found")
	}
	article.Body = strings.TrimSpace(body.Text())
	return nil
}
