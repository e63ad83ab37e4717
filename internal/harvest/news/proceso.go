package news

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/civiclab-mx/observatorio/internal/harvest"
	"github.com/civiclab-mx/observatorio/pkg/document"
)

var (
	procesoURLDateRe  = regexp.MustCompile(`/(\d{4}/\d{1,2}/\d{1,2})/`)
	procesoDateTextRe = regexp.MustCompile(`[\p{L}]+, (\d{1,2}) de ([\p{L}]+) de (\d{4})`)
)

// ProcesoSection identifies one section of the Proceso listing service.
// Salud and medio ambiente live under a shared subsection id; the rest use
// subsection 0.
type ProcesoSection struct {
	Name       string `json:"name"`
	ID         int    `json:"id"`
	Subsection int    `json:"subsection"`
}

type ProcesoConfig struct {
	BaseURL   string           `json:"base_url"`
	SearchURL string           `json:"search_url"`
	Sections  []ProcesoSection `json:"sections"`
}

func DefaultProcesoConfig() *ProcesoConfig {
	return &ProcesoConfig{
		BaseURL:   "https://www.proceso.com.mx/",
		SearchURL: "https://www.proceso.com.mx/u/plantillas/home/ajax/listadoP.asp",
		Sections: []ProcesoSection{
			{Name: "nacional", ID: 1},
			{Name: "economia", ID: 2},
			{Name: "internacional", ID: 3},
			{Name: "opinion", ID: 5},
			{Name: "ciencia_tecnologia", ID: 6},
			{Name: "salud", ID: 26, Subsection: 6},
			{Name: "medio_ambiente", ID: 27, Subsection: 6},
			{Name: "cultura", ID: 7},
			{Name: "deportes", ID: 8},
		},
	}
}

// Proceso lists articles through the magazine's AJAX listing endpoint,
// paging each section newest first until the listing runs out or articles
// fall before the requested window. There is no listing checkpoint; reruns
// restart at page one and the processed-id sets absorb the overlap.
type Proceso struct {
	fetcher *harvest.Fetcher
	config  *ProcesoConfig
}

func NewProceso(fetcher *harvest.Fetcher, config *ProcesoConfig) *Proceso {
	if config == nil {
		config = DefaultProcesoConfig()
	}
	return &Proceso{fetcher: fetcher, config: config}
}

func (s *Proceso) Name() string { return "proceso" }

func (s *Proceso) List(ctx context.Context, from, to time.Time) ([]Article, error) {
	var articles []Article
	for _, section := range s.config.Sections {
		if err := ctx.Err(); err != nil {
			return articles, err
		}
		sectionArticles, err := s.listSection(ctx, section, from, to)
		articles = append(articles, sectionArticles...)
		if err != nil {
			log.Error().Err(err).Str("section", section.Name).Msg("Failed to list proceso section")
		}
	}
	return articles, nil
}

func (s *Proceso) listSection(ctx context.Context, section ProcesoSection, from, to time.Time) ([]Article, error) {
	var articles []Article
	for page := 1; ; page++ {
		form := map[string]string{
			"id_seccion":    strconv.Itoa(section.ID),
			"id_subseccion": strconv.Itoa(section.Subsection),
			"page":          strconv.Itoa(page),
		}
		res, err := s.fetcher.FetchForm(ctx, s.Name(), s.config.SearchURL, form)
		if err != nil {
			return articles, err
		}
		// The listing service answers non-200 once paging runs past the
		// last page.
		if res.StatusCode != http.StatusOK {
			log.Debug().Str("section", section.Name).Int("page", page).Msg("Proceso listing exhausted")
			return articles, nil
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
		if err != nil {
			return articles, err
		}
		items := doc.Find("article")
		if items.Length() == 0 {
			return articles, nil
		}

		end := false
		items.Each(func(i int, item *goquery.Selection) {
			a, err := s.parseListing(item, section.Name)
			if err != nil {
				log.Debug().Err(err).Int("item", i).Msg("Skipping unparseable proceso listing item")
				return
			}
			if !a.PublishedAt.IsZero() {
				if a.PublishedAt.Before(from) {
					end = true
					return
				}
				if a.PublishedAt.After(to) {
					return
				}
			}
			articles = append(articles, *a)
		})
		if end {
			return articles, nil
		}
	}
}

func (s *Proceso) parseListing(item *goquery.Selection, sectionName string) (*Article, error) {
	href, ok := item.Find("a").First().Attr("href")
	if !ok {
		return nil, fmt.Errorf("listing item has no link")
	}
	fullURL := resolveURL(s.config.BaseURL, href)
	a := &Article{
		ID:      document.NewID(fullURL),
		Outlet:  s.Name(),
		Section: sectionName,
		URL:     fullURL,
		Title:   strings.TrimSpace(item.Find("h2.titulo").First().Text()),
		Summary: strings.TrimSpace(item.Find("p.resumen").First().Text()),
	}
	// Most article paths embed the publication date. The rest resolve it
	// from the article page during body parsing.
	if m := procesoURLDateRe.FindStringSubmatch(href); m != nil {
		if d, err := time.Parse("2006/1/2", m[1]); err == nil {
			a.PublishedAt = d
		}
	}
	return a, nil
}

// ParseArticle extracts the body paragraphs and, when the listing did not
// carry one, the written-out date below the headline.
func (s *Proceso) ParseArticle(page []byte, article *Article) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return err
	}
	main := doc.Find("article.main-article").First()
	if main.Length() == 0 {
		return fmt.Errorf("article container not found")
	}
	body := main.Find("div.cuerpo-nota").First()
	if body.Length() == 0 {
		return fmt.Errorf("article body not found")
	}
	var parts []string
	body.ChildrenFiltered("p").Each(func(_ int, p *goquery.Selection) {
		parts = append(parts, p.Text())
	})
	text := strings.Join(parts, "\n")
	text = strings.ReplaceAll(text, " ", " ")
	text = blankLineRe.ReplaceAllString(text, "\n")
	article.Body = strings.TrimSuffix(text, "\n")

	if article.PublishedAt.IsZero() {
		dateText := doc.Find("div.fecha-y-seccion div.fecha").First().Text()
		m := procesoDateTextRe.FindStringSubmatch(dateText)
		if m == nil {
			return fmt.Errorf("article date not found")
		}
		d, err := parseSpanishDate(m[1], m[2], m[3])
		if err != nil {
			return fmt.Errorf("parsing article date: %w", err)
		}
		article.PublishedAt = d
	}
	return nil
}
