package gaceta

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/civiclab-mx/observatorio/pkg/document"
)

const sessionDateLayout = "2006/01/02"

var (
	// authorRe splits "Sen. Nombre Apellido (PARTIDO)" author lines.
	authorRe = regexp.MustCompile(`^(.+?) \((.*)\)`)

	// paginationRe reads the total page count from the listing header.
	paginationRe = regexp.MustCompile(`Página \d+ de (\d+),`)

	// listing types use the site's plural tokens; records carry the
	// singular form.
	singularTypes = map[string]string{
		"iniciativas":   "iniciativa",
		"proposiciones": "proposicion",
	}
)

// Author is one signatory of a publication.
type Author struct {
	Name  string `json:"name"`
	Party string `json:"party"`
}

// Publication is one gazette record: an iniciativa or proposicion
// presented in a senate session.
type Publication struct {
	ID          string    `json:"id"`
	Legislature int       `json:"legislature"`
	Type        string    `json:"type"`
	SessionDate time.Time `json:"session_date"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Authors     []Author  `json:"authors"`
	Parties     []string  `json:"parties"`
	Status      string    `json:"status"`
	URL         string    `json:"url"`
	DocumentURL string    `json:"document_url,omitempty"`
	FullText    string    `json:"full_text"`

	// fullRecord marks rows whose last column links to a complete
	// publication page; reduced rows only have the summary.
	fullRecord bool
	rawRow     string
}

// singularType maps a listing type token to the record form.
func singularType(listingType string) string {
	if s, ok := singularTypes[listingType]; ok {
		return s
	}
	return listingType
}

// totalPages reads the "Página N de M," marker from a listing page.
func totalPages(doc *goquery.Document, cfg *Config) (int, error) {
	text := doc.Find(cfg.PaginationSelector).First().Text()
	m := paginationRe.FindStringSubmatch(text)
	if m == nil {
		return 0, fmt.Errorf("pagination marker not found in listing")
	}
	return strconv.Atoi(m[1])
}

// parseRow builds a Publication from one listing table row. Column
// layout: title+link, summary, session date, authors, then routing
// columns, with the last column linking the full record when one exists.
func parseRow(row *goquery.Selection, cfg *Config, legislature int, listingType string) (*Publication, error) {
	cells := row.Find("td")
	if cells.Length() < 4 {
		return nil, fmt.Errorf("row has %d cells, expected at least 4", cells.Length())
	}

	dateText := strings.TrimSpace(cells.Eq(2).Text())
	sessionDate, err := time.Parse(sessionDateLayout, dateText)
	if err != nil {
		return nil, fmt.Errorf("invalid session date %q: %w", dateText, err)
	}

	pub := &Publication{
		Legislature: legislature,
		Type:        singularType(listingType),
		SessionDate: sessionDate,
		Title:       strings.TrimSpace(cells.Eq(0).Text()),
		Summary:     strings.TrimSpace(strings.ReplaceAll(cells.Eq(1).Text(), "\n", " ")),
	}
	if cells.Length() > 7 {
		pub.Status = strings.TrimSpace(cells.Eq(7).Text())
	}

	// Rows with a link in the last column have a full record on the
	// main site; the rest only link their listing entry on the v2 site.
	if href, ok := cells.Eq(cells.Length() - 1).Find("a").Attr("href"); ok {
		pub.fullRecord = true
		pub.URL = absoluteURL(href, cfg.BaseURL)
	} else if href, ok := cells.Eq(0).Find("a").Attr("href"); ok {
		pub.fullRecord = false
		pub.URL = absoluteURL(href, cfg.BaseURLV2)
	} else {
		return nil, fmt.Errorf("row has no publication link")
	}
	pub.ID = document.NewID(pub.URL)

	authors, parties, err := parseAuthors(textLines(cells.Eq(3)))
	if err != nil {
		return nil, err
	}
	if len(authors) == 0 {
		// Some records genuinely have no signatories listed.
		pub.Authors = []Author{}
		pub.Parties = []string{}
	} else {
		pub.Authors = authors
		pub.Parties = parties
	}

	if raw, err := goquery.OuterHtml(row); err == nil {
		pub.rawRow = raw
	}
	return pub, nil
}

// parseAuthors splits author lines of the form "Name (PARTY)". Parties
// are deduplicated keeping first appearance order.
func parseAuthors(lines []string) ([]Author, []string, error) {
	var authors []Author
	var parties []string
	seen := make(map[string]bool)

	for _, line := range lines {
		m := authorRe.FindStringSubmatch(line)
		if m == nil {
			return nil, nil, fmt.Errorf("unparseable author line %q", line)
		}
		authors = append(authors, Author{Name: m[1], Party: m[2]})
		if !seen[m[2]] {
			seen[m[2]] = true
			parties = append(parties, m[2])
		}
	}
	return authors, parties, nil
}

// absoluteURL prefixes relative hrefs with the given base host.
func absoluteURL(href, base string) string {
	if strings.Contains(href, "https") {
		return href
	}
	return base + "/" + strings.TrimPrefix(href, "/")
}

// textLines collects the trimmed text nodes under a selection, one line
// per node, skipping empties. Matches how the site separates authors
// and paragraph runs with markup rather than newlines.
func textLines(sel *goquery.Selection) []string {
	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				lines = append(lines, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, node := range sel.Nodes {
		walk(node)
	}
	return lines
}

// ToDocument converts the publication into the system document shape.
func (p *Publication) ToDocument() *document.Document {
	now := time.Now().UTC()

	authorParts := make([]string, 0, len(p.Authors))
	for _, a := range p.Authors {
		authorParts = append(authorParts, fmt.Sprintf("%s (%s)", a.Name, a.Party))
	}

	sourceType := "html"
	if p.DocumentURL != "" {
		sourceType = "pdf"
	}

	return &document.Document{
		ID: p.ID,
		Source: document.Source{
			Type:   sourceType,
			Outlet: "gaceta",
			URL:    p.URL,
		},
		Content: document.Content{
			Text: p.FullText,
			Metadata: map[string]string{
				"title":            p.Title,
				"summary":          p.Summary,
				"status":           p.Status,
				"legislature":      strconv.Itoa(p.Legislature),
				"publication_type": p.Type,
				"authors":          strings.Join(authorParts, "; "),
				"parties":          strings.Join(p.Parties, ","),
				"document_url":     p.DocumentURL,
			},
		},
		PublishedAt: p.SessionDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
