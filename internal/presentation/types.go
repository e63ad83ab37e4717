package presentation

import (
	"time"

	"github.com/civiclab-mx/observatorio/pkg/document"
)

// DocumentPresenter formats archive documents for readers. Every
// rendering path serves the redacted text; raw payloads and unredacted
// text never leave the archive.
type DocumentPresenter interface {
	RenderDocument(doc *document.Document, options *RenderOptions) (*RenderedDocument, error)
	RenderCollection(docs []*document.Document, options *CollectionOptions) (*RenderedCollection, error)
	RenderSearch(results *SearchResults, options *SearchOptions) (*RenderedSearch, error)
	ExportDocument(doc *document.Document, format ExportFormat) ([]byte, error)
}

// RenderOptions configures single-document rendering.
type RenderOptions struct {
	Format          OutputFormat `json:"format"`
	IncludeMetadata bool         `json:"include_metadata"`
	IncludeTokens   bool         `json:"include_tokens"`
	HighlightTerms  []string     `json:"highlight_terms"`
	MaxLength       int          `json:"max_length"`
	Theme           string       `json:"theme"`
}

// CollectionOptions configures collection rendering.
type CollectionOptions struct {
	RenderOptions
	PageSize       int    `json:"page_size"`
	PageNumber     int    `json:"page_number"`
	SortBy         string `json:"sort_by"`
	SortOrder      string `json:"sort_order"`
	GroupBy        string `json:"group_by"`
	ShowStatistics bool   `json:"show_statistics"`
}

// SearchOptions configures search result rendering.
type SearchOptions struct {
	CollectionOptions
	ShowSnippets     bool `json:"show_snippets"`
	SnippetLength    int  `json:"snippet_length"`
	ShowFacets       bool `json:"show_facets"`
	HighlightMatches bool `json:"highlight_matches"`
}

// OutputFormat selects how rendered content is formatted.
type OutputFormat string

const (
	FormatHTML     OutputFormat = "html"
	FormatMarkdown OutputFormat = "markdown"
	FormatJSON     OutputFormat = "json"
	FormatPlain    OutputFormat = "plain"
)

// ExportFormat selects the download format for a document.
type ExportFormat string

const (
	ExportJSON     ExportFormat = "json"
	ExportMarkdown ExportFormat = "markdown"
	ExportHTML     ExportFormat = "html"
)

// RenderedDocument is the public projection of an archive document.
type RenderedDocument struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Outlet      string            `json:"outlet,omitempty"`
	Type        string            `json:"type"`
	URL         string            `json:"url,omitempty"`
	Content     string            `json:"content"`
	Format      OutputFormat      `json:"format"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Tokens      []string          `json:"tokens,omitempty"`
	PublishedAt time.Time         `json:"published_at,omitempty"`
	RenderTime  time.Time         `json:"render_time"`
	Theme       string            `json:"theme,omitempty"`
}

// RenderedCollection is a paginated set of rendered documents.
type RenderedCollection struct {
	Documents  []*RenderedDocument            `json:"documents"`
	TotalCount int                            `json:"total_count"`
	PageSize   int                            `json:"page_size"`
	PageNumber int                            `json:"page_number"`
	Statistics *CollectionStatistics          `json:"statistics,omitempty"`
	Groups     map[string][]*RenderedDocument `json:"groups,omitempty"`
	RenderTime time.Time                      `json:"render_time"`
}

// RenderedSearch is a rendered search result page.
type RenderedSearch struct {
	Query      string            `json:"query"`
	Results    []*SearchResult   `json:"results"`
	TotalHits  int               `json:"total_hits"`
	PageSize   int               `json:"page_size"`
	PageNumber int               `json:"page_number"`
	Facets     map[string]*Facet `json:"facets,omitempty"`
	SearchTime time.Duration     `json:"search_time"`
	RenderTime time.Time         `json:"render_time"`
}

// SearchResults is the raw match set before rendering.
type SearchResults struct {
	Query      string               `json:"query"`
	Documents  []*document.Document `json:"documents"`
	Scores     map[string]float64   `json:"scores"`
	TotalHits  int                  `json:"total_hits"`
	SearchTime time.Duration        `json:"search_time"`
}

// SearchResult is one rendered hit.
type SearchResult struct {
	Document   *RenderedDocument `json:"document"`
	Score      float64           `json:"score"`
	Snippet    string            `json:"snippet,omitempty"`
	Highlights []string          `json:"highlights,omitempty"`
}

// CollectionStatistics summarizes a document set for the statistics
// endpoint and the stats block on listings.
type CollectionStatistics struct {
	TotalDocuments     int            `json:"total_documents"`
	OutletDistribution map[string]int `json:"outlet_distribution"`
	TypeDistribution   map[string]int `json:"type_distribution"`
	YearDistribution   map[string]int `json:"year_distribution"`
	RedactedCount      int            `json:"redacted_count"`
	DateRange          *DateRange     `json:"date_range,omitempty"`
}

// DateRange bounds the publication dates of a document set.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Facet is one dimension of search result counts.
type Facet struct {
	Name   string        `json:"name"`
	Values []*FacetValue `json:"values"`
}

// FacetValue is one value of a facet with its hit count.
type FacetValue struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}
