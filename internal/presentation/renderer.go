package presentation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"html/template"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/civiclab-mx/observatorio/pkg/document"
)

// Renderer implements DocumentPresenter over archive documents.
type Renderer struct {
	exportPage *template.Template
	config     *RendererConfig
}

// RendererConfig configures the renderer.
type RendererConfig struct {
	DefaultFormat    OutputFormat `json:"default_format"`
	MaxContentLength int          `json:"max_content_length"`
	DefaultTheme     string       `json:"default_theme"`
}

// NewRenderer creates a renderer. A nil config gets JSON output with a
// 10000-character cap.
func NewRenderer(config *RendererConfig) *Renderer {
	if config == nil {
		config = &RendererConfig{
			DefaultFormat:    FormatJSON,
			MaxContentLength: 10000,
			DefaultTheme:     "light",
		}
	}

	return &Renderer{
		exportPage: template.Must(template.New("export").Parse(exportPageTemplate)),
		config:     config,
	}
}

// publicText picks the text a reader may see: the redacted copy, or the
// cleaned text when redaction was disabled for the document.
func publicText(doc *document.Document) string {
	if doc.Content.Redacted != "" {
		return doc.Content.Redacted
	}
	return doc.Content.Text
}

// RenderDocument renders a single document.
func (r *Renderer) RenderDocument(doc *document.Document, options *RenderOptions) (*RenderedDocument, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is nil")
	}

	if options == nil {
		options = &RenderOptions{
			Format:          r.config.DefaultFormat,
			IncludeMetadata: true,
			MaxLength:       r.config.MaxContentLength,
			Theme:           r.config.DefaultTheme,
		}
	}

	log.Debug().
		Str("doc_id", doc.ID).
		Str("format", string(options.Format)).
		Msg("Rendering document")

	rendered := &RenderedDocument{
		ID:          doc.ID,
		Title:       r.extractTitle(doc),
		Outlet:      doc.Source.Outlet,
		Type:        doc.Source.Type,
		URL:         doc.Source.URL,
		Format:      options.Format,
		PublishedAt: doc.PublishedAt,
		RenderTime:  time.Now(),
		Theme:       options.Theme,
	}

	content, err := r.renderContent(publicText(doc), options)
	if err != nil {
		return nil, fmt.Errorf("failed to render content: %w", err)
	}
	rendered.Content = content

	if options.IncludeMetadata && doc.Content.Metadata != nil {
		rendered.Metadata = r.formatMetadata(doc.Content.Metadata)
	}
	if options.IncludeTokens {
		rendered.Tokens = doc.Content.Tokens
	}

	return rendered, nil
}

// RenderCollection renders multiple documents as one page.
func (r *Renderer) RenderCollection(docs []*document.Document, options *CollectionOptions) (*RenderedCollection, error) {
	if options == nil {
		options = &CollectionOptions{
			RenderOptions: RenderOptions{
				Format:    r.config.DefaultFormat,
				MaxLength: 500,
				Theme:     r.config.DefaultTheme,
			},
			PageSize:   20,
			PageNumber: 1,
		}
	}

	log.Debug().
		Int("doc_count", len(docs)).
		Int("page", options.PageNumber).
		Msg("Rendering collection")

	r.sortDocuments(docs, options.SortBy, options.SortOrder)

	totalCount := len(docs)
	startIdx := (options.PageNumber - 1) * options.PageSize
	endIdx := startIdx + options.PageSize
	if endIdx > totalCount {
		endIdx = totalCount
	}

	renderedDocs := make([]*RenderedDocument, 0)
	if startIdx < totalCount {
		for i := startIdx; i < endIdx; i++ {
			rendered, err := r.RenderDocument(docs[i], &options.RenderOptions)
			if err != nil {
				log.Warn().Err(err).Str("doc_id", docs[i].ID).Msg("Failed to render document")
				continue
			}
			renderedDocs = append(renderedDocs, rendered)
		}
	}

	collection := &RenderedCollection{
		Documents:  renderedDocs,
		TotalCount: totalCount,
		PageSize:   options.PageSize,
		PageNumber: options.PageNumber,
		RenderTime: time.Now(),
	}

	if options.ShowStatistics {
		collection.Statistics = r.calculateStatistics(docs)
	}
	if options.GroupBy != "" {
		collection.Groups = r.groupDocuments(renderedDocs, options.GroupBy)
	}

	return collection, nil
}

// RenderSearch renders search results.
func (r *Renderer) RenderSearch(results *SearchResults, options *SearchOptions) (*RenderedSearch, error) {
	if results == nil {
		return nil, fmt.Errorf("search results are nil")
	}

	if options == nil {
		options = &SearchOptions{
			CollectionOptions: CollectionOptions{
				RenderOptions: RenderOptions{
					Format:    r.config.DefaultFormat,
					MaxLength: 200,
					Theme:     r.config.DefaultTheme,
				},
				PageSize:   20,
				PageNumber: 1,
			},
			ShowSnippets:     true,
			SnippetLength:    150,
			HighlightMatches: true,
		}
	}

	log.Debug().
		Str("query", results.Query).
		Int("hits", results.TotalHits).
		Msg("Rendering search results")

	startIdx := (options.PageNumber - 1) * options.PageSize
	endIdx := startIdx + options.PageSize
	if endIdx > len(results.Documents) {
		endIdx = len(results.Documents)
	}

	searchResults := make([]*SearchResult, 0)
	if startIdx < len(results.Documents) {
		for i := startIdx; i < endIdx; i++ {
			doc := results.Documents[i]

			rendered, err := r.RenderDocument(doc, &options.RenderOptions)
			if err != nil {
				log.Warn().Err(err).Str("doc_id", doc.ID).Msg("Failed to render search result")
				continue
			}

			searchResult := &SearchResult{
				Document: rendered,
				Score:    results.Scores[doc.ID],
			}
			if options.ShowSnippets {
				searchResult.Snippet = r.generateSnippet(publicText(doc), results.Query, options.SnippetLength)
			}
			if options.HighlightMatches {
				searchResult.Highlights = r.findHighlights(publicText(doc), results.Query)
			}

			searchResults = append(searchResults, searchResult)
		}
	}

	rendered := &RenderedSearch{
		Query:      results.Query,
		Results:    searchResults,
		TotalHits:  results.TotalHits,
		PageSize:   options.PageSize,
		PageNumber: options.PageNumber,
		SearchTime: results.SearchTime,
		RenderTime: time.Now(),
	}

	if options.ShowFacets {
		rendered.Facets = r.generateFacets(results.Documents)
	}

	return rendered, nil
}

// ExportDocument exports a document for download.
func (r *Renderer) ExportDocument(doc *document.Document, format ExportFormat) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is nil")
	}

	log.Debug().
		Str("doc_id", doc.ID).
		Str("format", string(format)).
		Msg("Exporting document")

	switch format {
	case ExportJSON:
		return r.exportJSON(doc)
	case ExportMarkdown:
		return r.exportMarkdown(doc)
	case ExportHTML:
		return r.exportHTML(doc)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// Helper methods

func (r *Renderer) renderContent(content string, options *RenderOptions) (string, error) {
	if options.MaxLength > 0 && len(content) > options.MaxLength {
		content = truncateAtRune(content, options.MaxLength) + "..."
	}

	if len(options.HighlightTerms) > 0 {
		content = r.highlightTerms(content, options.HighlightTerms)
	}

	switch options.Format {
	case FormatHTML:
		return r.formatHTML(content), nil
	case FormatMarkdown:
		return r.formatMarkdown(content), nil
	case FormatPlain:
		return r.formatPlain(content), nil
	default:
		return content, nil
	}
}

// truncateAtRune cuts s at no more than max bytes without splitting a
// rune. Accented text would otherwise end in invalid UTF-8.
func truncateAtRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func (r *Renderer) formatHTML(content string) string {
	escaped := html.EscapeString(content)
	paragraphs := strings.Split(escaped, "\n\n")

	var buf bytes.Buffer
	for _, p := range paragraphs {
		if strings.TrimSpace(p) != "" {
			buf.WriteString("<p>")
			buf.WriteString(strings.ReplaceAll(p, "\n", "<br>"))
			buf.WriteString("</p>")
		}
	}

	return buf.String()
}

func (r *Renderer) formatMarkdown(content string) string {
	lines := strings.Split(content, "\n")
	formatted := make([]string, 0, len(lines))
	for _, line := range lines {
		formatted = append(formatted, strings.TrimSpace(line))
	}
	return strings.Join(formatted, "\n")
}

func (r *Renderer) formatPlain(content string) string {
	lines := strings.Split(content, "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

func (r *Renderer) highlightTerms(content string, terms []string) string {
	for _, term := range terms {
		lower := strings.ToLower(content)
		termLower := strings.ToLower(term)

		indices := findAllIndices(lower, termLower)
		offset := 0

		for _, idx := range indices {
			actualIdx := idx + offset
			before := content[:actualIdx]
			match := content[actualIdx : actualIdx+len(term)]
			after := content[actualIdx+len(term):]

			content = before + "**" + match + "**" + after
			offset += 4
		}
	}
	return content
}

func findAllIndices(s, substr string) []int {
	var indices []int
	start := 0
	for {
		idx := strings.Index(s[start:], substr)
		if idx == -1 {
			break
		}
		indices = append(indices, start+idx)
		start += idx + len(substr)
	}
	return indices
}

func (r *Renderer) extractTitle(doc *document.Document) string {
	if title := doc.Content.Metadata["title"]; title != "" {
		return title
	}

	// First non-empty line of the public text.
	for _, line := range strings.Split(publicText(doc), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			if len(line) > 100 {
				return truncateAtRune(line, 100) + "..."
			}
			return line
		}
	}

	return fmt.Sprintf("Document %s", doc.ID)
}

func (r *Renderer) formatMetadata(metadata map[string]string) map[string]string {
	formatted := make(map[string]string)

	for key, value := range metadata {
		if strings.HasPrefix(key, "_") {
			continue
		}
		if strings.Contains(key, "time") || strings.Contains(key, "date") {
			if t, err := time.Parse(time.RFC3339, value); err == nil {
				formatted[key] = t.Format("2006-01-02 15:04:05")
				continue
			}
		}
		formatted[key] = value
	}

	return formatted
}

func (r *Renderer) generateSnippet(content, query string, length int) string {
	lowerContent := strings.ToLower(content)
	lowerQuery := strings.ToLower(query)

	pos := strings.Index(lowerContent, lowerQuery)
	if pos == -1 {
		if len(content) > length {
			return truncateAtRune(content, length) + "..."
		}
		return content
	}

	start := pos - length/2
	if start < 0 {
		start = 0
	}
	for start > 0 && !utf8.RuneStart(content[start]) {
		start--
	}

	end := pos + len(query) + length/2
	if end > len(content) {
		end = len(content)
	}
	for end < len(content) && !utf8.RuneStart(content[end]) {
		end++
	}

	snippet := content[start:end]
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(content) {
		snippet = snippet + "..."
	}

	return snippet
}

func (r *Renderer) findHighlights(content, query string) []string {
	var highlights []string
	terms := strings.Fields(query)

	sentences := strings.Split(content, ".")
	for _, sentence := range sentences {
		sentenceLower := strings.ToLower(sentence)
		for _, term := range terms {
			if strings.Contains(sentenceLower, strings.ToLower(term)) {
				highlights = append(highlights, strings.TrimSpace(sentence))
				break
			}
		}
		if len(highlights) >= 3 {
			break
		}
	}

	return highlights
}

func (r *Renderer) sortDocuments(docs []*document.Document, sortBy, order string) {
	if sortBy == "" {
		// Storage already hands lists newest-first.
		return
	}
	asc := order == "asc"

	sort.SliceStable(docs, func(i, j int) bool {
		switch sortBy {
		case "title":
			ti, tj := r.extractTitle(docs[i]), r.extractTitle(docs[j])
			if asc {
				return ti < tj
			}
			return ti > tj
		default:
			di, dj := docs[i].PartitionDate(), docs[j].PartitionDate()
			if asc {
				return di.Before(dj)
			}
			return dj.Before(di)
		}
	})
}

func (r *Renderer) calculateStatistics(docs []*document.Document) *CollectionStatistics {
	stats := &CollectionStatistics{
		TotalDocuments:     len(docs),
		OutletDistribution: make(map[string]int),
		TypeDistribution:   make(map[string]int),
		YearDistribution:   make(map[string]int),
	}

	var minDate, maxDate time.Time

	for _, doc := range docs {
		if doc.Source.Outlet != "" {
			stats.OutletDistribution[doc.Source.Outlet]++
		}
		if doc.Source.Type != "" {
			stats.TypeDistribution[doc.Source.Type]++
		}
		if doc.Content.Redacted != "" {
			stats.RedactedCount++
		}

		date := doc.PartitionDate()
		if date.IsZero() {
			continue
		}
		stats.YearDistribution[fmt.Sprintf("%d", date.Year())]++
		if minDate.IsZero() || date.Before(minDate) {
			minDate = date
		}
		if maxDate.IsZero() || date.After(maxDate) {
			maxDate = date
		}
	}

	if !minDate.IsZero() {
		stats.DateRange = &DateRange{Start: minDate, End: maxDate}
	}

	return stats
}

func (r *Renderer) groupDocuments(docs []*RenderedDocument, groupBy string) map[string][]*RenderedDocument {
	groups := make(map[string][]*RenderedDocument)

	for _, doc := range docs {
		var key string
		switch groupBy {
		case "outlet":
			key = doc.Outlet
		case "type":
			key = doc.Type
		case "year":
			if !doc.PublishedAt.IsZero() {
				key = fmt.Sprintf("%d", doc.PublishedAt.Year())
			}
		default:
			key = doc.Metadata[groupBy]
		}
		if key == "" {
			key = "other"
		}
		groups[key] = append(groups[key], doc)
	}

	return groups
}

func (r *Renderer) generateFacets(docs []*document.Document) map[string]*Facet {
	counts := map[string]map[string]int{
		"outlet": {},
		"type":   {},
		"year":   {},
	}

	for _, doc := range docs {
		if doc.Source.Outlet != "" {
			counts["outlet"][doc.Source.Outlet]++
		}
		if doc.Source.Type != "" {
			counts["type"][doc.Source.Type]++
		}
		if date := doc.PartitionDate(); !date.IsZero() {
			counts["year"][fmt.Sprintf("%d", date.Year())]++
		}
	}

	facets := make(map[string]*Facet)
	for field, values := range counts {
		if len(values) == 0 {
			continue
		}
		facet := &Facet{Name: field}
		for val, count := range values {
			facet.Values = append(facet.Values, &FacetValue{Value: val, Count: count})
		}
		sort.Slice(facet.Values, func(i, j int) bool {
			if facet.Values[i].Count != facet.Values[j].Count {
				return facet.Values[i].Count > facet.Values[j].Count
			}
			return facet.Values[i].Value < facet.Values[j].Value
		})
		facets[field] = facet
	}

	return facets
}

func (r *Renderer) exportJSON(doc *document.Document) ([]byte, error) {
	rendered, err := r.RenderDocument(doc, &RenderOptions{
		Format:          FormatPlain,
		IncludeMetadata: true,
		IncludeTokens:   true,
	})
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(rendered, "", "  ")
}

func (r *Renderer) exportMarkdown(doc *document.Document) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", r.extractTitle(doc)))

	if doc.Source.Outlet != "" {
		buf.WriteString(fmt.Sprintf("- **outlet**: %s\n", doc.Source.Outlet))
	}
	if doc.Source.URL != "" {
		buf.WriteString(fmt.Sprintf("- **url**: %s\n", doc.Source.URL))
	}
	if !doc.PublishedAt.IsZero() {
		buf.WriteString(fmt.Sprintf("- **published**: %s\n", doc.PublishedAt.Format("2006-01-02")))
	}
	for key, value := range r.formatMetadata(doc.Content.Metadata) {
		if key == "title" {
			continue
		}
		buf.WriteString(fmt.Sprintf("- **%s**: %s\n", key, value))
	}
	buf.WriteString("\n")

	buf.WriteString(publicText(doc))
	buf.WriteString("\n")

	return buf.Bytes(), nil
}

type exportPageData struct {
	Title     string
	Outlet    string
	Published string
	URL       string
	Body      template.HTML
	Metadata  map[string]string
}

func (r *Renderer) exportHTML(doc *document.Document) ([]byte, error) {
	data := exportPageData{
		Title: r.extractTitle(doc),
		// formatHTML escapes the text itself, so the body is safe to
		// inline.
		Body:     template.HTML(r.formatHTML(publicText(doc))),
		Outlet:   doc.Source.Outlet,
		URL:      doc.Source.URL,
		Metadata: r.formatMetadata(doc.Content.Metadata),
	}
	if !doc.PublishedAt.IsZero() {
		data.Published = doc.PublishedAt.Format("2006-01-02")
	}

	var buf bytes.Buffer
	if err := r.exportPage.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render export page: %w", err)
	}
	return buf.Bytes(), nil
}

const exportPageTemplate = `<!DOCTYPE html>
<html lang="es">
<head>
    <meta charset="utf-8">
    <title>{{.Title}}</title>
    <style>
        body { font-family: Georgia, serif; margin: 20px; }
        .document { max-width: 800px; margin: 0 auto; }
        h1 { color: #333; }
        .provenance { color: #666; font-size: 0.9em; margin-bottom: 20px; }
        .content { line-height: 1.6; }
        .metadata { margin-top: 20px; padding: 10px; background: #f5f5f5; }
        .meta-item { margin: 5px 0; }
        .meta-key { font-weight: bold; }
    </style>
</head>
<body>
    <div class="document">
        <h1>{{.Title}}</h1>
        <div class="provenance">
            {{if .Outlet}}<span>{{.Outlet}}</span>{{end}}
            {{if .Published}}<span> · {{.Published}}</span>{{end}}
            {{if .URL}}<div><a href="{{.URL}}">{{.URL}}</a></div>{{end}}
        </div>
        <div class="content">{{.Body}}</div>
        {{if .Metadata}}
        <div class="metadata">
            {{range $key, $value := .Metadata}}
            <div class="meta-item">
                <span class="meta-key">{{$key}}:</span>
                <span class="meta-value">{{$value}}</span>
            </div>
            {{end}}
        </div>
        {{end}}
    </div>
</body>
</html>
`
