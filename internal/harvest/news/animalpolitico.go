package news

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/civiclab-mx/observatorio/internal/harvest"
	"github.com/civiclab-mx/observatorio/internal/storage"
)

var animalRedirectRe = regexp.MustCompile(`^(Lee|Entérate)( (más|también))? *[:|].*`)

const animalQueryTemplate = `query %s($where: RootQueryTo%sConnectionWhereArgs) {
    %s(where: $where) {
        edges {
            node {
                databaseId
                title
                slug
                contentRendered
                categoryPrimarySlug
                postExcerpt
                date
                terms {
                    edges {
                        node {
                            id
                            slug
                        }
                    }
                }
                %s
            }
        }
        pageInfo {
            offsetPagination {
                total
            }
        }
    }
}`

const animalHablemosFields = `categorasDeHablemosDe {
                    edges {
                        node {
                            id
                            slug
                        }
                    }
                }`

const animalAnalisisFields = `blogSlug
                blogAuthor`

// AnimalSection describes one section of the Animal Politico GraphQL
// schema. TypeName is the schema token the query is built around; the
// overrides cover sections whose operation or results key does not follow
// the FetchAllX / allX pattern.
type AnimalSection struct {
	Name        string `json:"name"`
	TypeName    string `json:"type_name"`
	OpOverride  string `json:"op_override,omitempty"`
	KeyOverride string `json:"key_override,omitempty"`
	ExtraFields string `json:"extra_fields,omitempty"`
}

func (sec AnimalSection) operationName() string {
	name := sec.TypeName
	if sec.OpOverride != "" {
		name = sec.OpOverride
	}
	return "FetchAll" + name
}

func (sec AnimalSection) resultsKey() string {
	if sec.KeyOverride != "" {
		return sec.KeyOverride
	}
	return "all" + sec.TypeName
}

func (sec AnimalSection) query() string {
	return fmt.Sprintf(animalQueryTemplate, sec.operationName(), sec.TypeName, sec.resultsKey(), sec.ExtraFields)
}

type AnimalPoliticoConfig struct {
	BaseURL   string          `json:"base_url"`
	SearchURL string          `json:"search_url"`
	BatchSize int             `json:"batch_size"`
	Sections  []AnimalSection `json:"sections"`
	// Subcategories are the only category slugs that appear in
	// hablemos_de article paths.
	Subcategories []string `json:"subcategories"`
}

func DefaultAnimalPoliticoConfig() *AnimalPoliticoConfig {
	return &AnimalPoliticoConfig{
		BaseURL:   "https://animalpolitico.com/",
		SearchURL: "https://panel.animalpolitico.com/graphql",
		BatchSize: 20,
		Sections: []AnimalSection{
			{Name: "politica", TypeName: "Poltica", OpOverride: "Politica"},
			{Name: "salud", TypeName: "Salud"},
			{Name: "seguridad", TypeName: "Seguridad"},
			{Name: "genero_y_diversidad", TypeName: "GneroYDiversidad"},
			{Name: "sociedad", TypeName: "Sociedad"},
			{Name: "estados", TypeName: "Estados"},
			{Name: "tendencias", TypeName: "AnimalMX"},
			{Name: "analisis", TypeName: "NotaDePlumaje", KeyOverride: "notasDePlumaje", ExtraFields: animalAnalisisFields},
			{Name: "internacional", TypeName: "Internacional"},
			{Name: "hablemos_de", TypeName: "HablemosDe", ExtraFields: animalHablemosFields},
		},
		Subcategories: []string{"finanzas", "empresas", "sustentabilidad", "educacion"},
	}
}

// AnimalPolitico lists articles through the site's GraphQL panel with
// offset pagination. Most nodes embed their rendered content, so bodies
// rarely need a page fetch. Checkpoint handling mirrors the other
// API-backed sources: last completed offset while backfilling, negative
// once done.
type AnimalPolitico struct {
	fetcher     *harvest.Fetcher
	checkpoints *storage.Checkpoints
	config      *AnimalPoliticoConfig

	pending map[string]int
}

func NewAnimalPolitico(fetcher *harvest.Fetcher, checkpoints *storage.Checkpoints, config *AnimalPoliticoConfig) *AnimalPolitico {
	if config == nil {
		config = DefaultAnimalPoliticoConfig()
	}
	return &AnimalPolitico{
		fetcher:     fetcher,
		checkpoints: checkpoints,
		config:      config,
		pending:     make(map[string]int),
	}
}

func (s *AnimalPolitico) Name() string { return "animalpolitico" }

type animalPagination struct {
	Size   int `json:"size"`
	Offset int `json:"offset"`
}

type animalWhere struct {
	OffsetPagination animalPagination `json:"offsetPagination"`
}

type animalVariables struct {
	Where animalWhere `json:"where"`
}

type animalRequest struct {
	OperationName string          `json:"operationName"`
	Variables     animalVariables `json:"variables"`
	Query         string          `json:"query"`
}

type animalNode struct {
	DatabaseID          json.Number     `json:"databaseId"`
	Title               string          `json:"title"`
	Slug                string          `json:"slug"`
	ContentRendered     string          `json:"contentRendered"`
	CategoryPrimarySlug string          `json:"categoryPrimarySlug"`
	PostExcerpt         string          `json:"postExcerpt"`
	Date                string          `json:"date"`
	BlogSlug            string          `json:"blogSlug"`
	BlogAuthor          json.RawMessage `json:"blogAuthor"`
	Categories          struct {
		Edges []struct {
			Node struct {
				Slug string `json:"slug"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"categorasDeHablemosDe"`
}

type animalSectionResult struct {
	Edges []struct {
		Node animalNode `json:"node"`
	} `json:"edges"`
	PageInfo struct {
		OffsetPagination struct {
			Total int `json:"total"`
		} `json:"offsetPagination"`
	} `json:"pageInfo"`
}

type animalResponse struct {
	Errors json.RawMessage                `json:"errors"`
	Data   map[string]animalSectionResult `json:"data"`
}

func (s *AnimalPolitico) List(ctx context.Context, from, to time.Time) ([]Article, error) {
	var articles []Article
	for _, section := range s.config.Sections {
		if err := ctx.Err(); err != nil {
			return articles, err
		}
		sectionArticles, err := s.listSection(ctx, section, from, to)
		articles = append(articles, sectionArticles...)
		if err != nil {
			log.Error().Err(err).Str("section", section.Name).Msg("Failed to list animalpolitico section")
		}
	}
	return articles, nil
}

// SaveProgress persists the per-section offset checkpoints reached during
// the last List call.
func (s *AnimalPolitico) SaveProgress() error {
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

func (s *AnimalPolitico) listSection(ctx context.Context, section AnimalSection, from, to time.Time) ([]Article, error) {
	offset, backfill := s.startOffset(section.Name)
	var articles []Article
	total := -1
	for total < 0 || offset < total {
		req := animalRequest{
			OperationName: section.operationName(),
			Variables: animalVariables{
				Where: animalWhere{
					OffsetPagination: animalPagination{Size: s.config.BatchSize, Offset: offset},
				},
			},
			Query: section.query(),
		}
		var resp animalResponse
		if err := s.fetcher.PostJSON(ctx, s.Name(), s.config.SearchURL, req, &resp); err != nil {
			return articles, fmt.Errorf("offset %d: %w", offset, err)
		}
		if len(resp.Errors) > 0 && !bytes.Equal(resp.Errors, []byte("null")) {
			return articles, fmt.Errorf("graphql errors at offset %d: %s", offset, resp.Errors)
		}
		data, ok := resp.Data[section.resultsKey()]
		if !ok {
			return articles, fmt.Errorf("results key %q missing at offset %d", section.resultsKey(), offset)
		}
		if total < 0 {
			total = data.PageInfo.OffsetPagination.Total
			log.Debug().Str("section", section.Name).Int("total", total).Msg("Animalpolitico section size")
		}
		if total == 0 || len(data.Edges) == 0 {
			break
		}

		end := false
		minDate := time.Time{}
		for _, edge := range data.Edges {
			a, err := s.parseNode(edge.Node, section)
			if err != nil {
				log.Debug().Err(err).Str("section", section.Name).Msg("Skipping animalpolitico node")
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
				s.pending[section.Name] = -offset
			}
			return articles, nil
		}
		if backfill {
			s.pending[section.Name] = offset
		}
		offset += s.config.BatchSize
	}
	if backfill {
		done := offset
		if done == 0 {
			done = s.config.BatchSize
		}
		s.pending[section.Name] = -done
	}
	return articles, nil
}

func (s *AnimalPolitico) startOffset(section string) (int, bool) {
	if s.checkpoints == nil {
		return 0, false
	}
	v, ok, err := s.checkpoints.OffsetCheckpoint(s.Name(), section)
	if err != nil {
		log.Warn().Err(err).Str("section", section).Msg("Failed to read animalpolitico checkpoint")
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

func (s *AnimalPolitico) parseNode(node animalNode, section AnimalSection) (*Article, error) {
	if node.DatabaseID.String() == "" {
		return nil, fmt.Errorf("node has no database id")
	}
	d, err := time.Parse("2006-01-02T15:04:05", node.Date)
	if err != nil {
		return nil, fmt.Errorf("bad date %q: %w", node.Date, err)
	}
	u, err := s.articleURL(node, section)
	if err != nil {
		return nil, err
	}
	a := &Article{
		ID:          node.DatabaseID.String(),
		Outlet:      s.Name(),
		Section:     section.Name,
		URL:         u,
		Title:       node.Title,
		Summary:     node.PostExcerpt,
		PublishedAt: d.UTC(),
	}
	if node.ContentRendered != "" {
		a.Body = renderedText(node.ContentRendered)
	}
	return a, nil
}

// articleURL rebuilds the public URL of a node. Paths depend on the
// section: primary categories win, hablemos_de routes through one of a
// fixed set of subcategories, and analisis routes by blog ownership.
func (s *AnimalPolitico) articleURL(node animalNode, section AnimalSection) (string, error) {
	sectionSlug := strings.ReplaceAll(section.Name, "_", "-")
	var articleSlug string
	switch {
	case node.CategoryPrimarySlug != "":
		articleSlug = sectionSlug + "/" + node.CategoryPrimarySlug + "/" + node.Slug
	case section.Name == "hablemos_de":
		category := ""
		for _, edge := range node.Categories.Edges {
			if s.isSubcategory(edge.Node.Slug) {
				category = edge.Node.Slug
				break
			}
		}
		if category == "" {
			return "", fmt.Errorf("no url subcategory for %s", node.Slug)
		}
		articleSlug = sectionSlug + "/" + category + "/" + node.Slug
	case section.Name == "analisis":
		switch {
		case node.BlogSlug == "blog-invitado":
			articleSlug = sectionSlug + "/invitades/" + node.Slug
		case len(node.BlogAuthor) == 0 || bytes.Equal(node.BlogAuthor, []byte("null")):
			articleSlug = sectionSlug + "/autores/" + node.BlogSlug + "/" + node.Slug
		default:
			articleSlug = sectionSlug + "/organizaciones/" + node.BlogSlug + "/" + node.Slug
		}
	default:
		articleSlug = sectionSlug + "/" + node.Slug
	}
	return resolveURL(s.config.BaseURL, articleSlug), nil
}

func (s *AnimalPolitico) isSubcategory(slug string) bool {
	for _, sub := range s.config.Subcategories {
		if slug == sub {
			return true
		}
	}
	return false
}

// renderedText flattens the rendered HTML content of a node to plain text.
func renderedText(rendered string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rendered))
	if err != nil {
		return rendered
	}
	return doc.Text()
}

// ParseArticle extracts the body from an article page for nodes that come
// without rendered content. Detail blocks holding attachments or
// read-also redirects are skipped.
func (s *AnimalPolitico) ParseArticle(page []byte, article *Article) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return err
	}
	var b strings.Builder
	doc.Find("div.post-details").Each(func(_ int, det *goquery.Selection) {
		if det.Find("figure").Length() > 0 {
			return
		}
		text := det.Text()
		if animalRedirectRe.MatchString(text) {
			return
		}
		b.WriteString(text)
		b.WriteString("\n")
	})
	article.Body = strings.TrimSuffix(b.String(), "\n")
	return nil
}
