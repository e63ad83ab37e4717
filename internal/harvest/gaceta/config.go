package gaceta

import (
	"fmt"
	"time"
)

// Config holds the site-specific pieces of the gazette harvest: URL
// shapes, CSS selectors, and legislature windows. The senate redesigns
// its pages every few years, so all of it is configuration with working
// defaults rather than hard-coded contracts.
type Config struct {
	// IndexURLTemplate formats (legislature, publication type) into the
	// listing URL for a legislature's publications of that type.
	IndexURLTemplate string `json:"index_url_template"`

	// PageQueryTemplate formats (page, page size) into the query suffix
	// requesting a specific listing page.
	PageQueryTemplate string `json:"page_query_template"`

	// BaseURL prefixes relative links in the listing's last column,
	// which point at full publication records.
	BaseURL string `json:"base_url"`

	// BaseURLV2 prefixes relative links in the listing's first column,
	// used on rows without a full record.
	BaseURLV2 string `json:"base_url_v2"`

	PageSize int      `json:"page_size"`
	Types    []string `json:"types"`

	// Listing page selectors.
	PaginationSelector string `json:"pagination_selector"`
	RowSelector        string `json:"row_selector"`

	// Publication page selectors. The site serves two layouts: panels
	// (older sessions) and cards (newer ones).
	PanelContainerSelector string `json:"panel_container_selector"`
	CardContainerSelector  string `json:"card_container_selector"`

	// DownloadHeading marks the section holding the attachment link.
	DownloadHeading string `json:"download_heading"`

	Legislatures []LegislatureWindow `json:"legislatures"`
}

// LegislatureWindow bounds the session dates a legislature covers.
type LegislatureWindow struct {
	Number int       `json:"number"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// DefaultConfig returns the selectors and URL shapes the senate site
// uses today.
func DefaultConfig() *Config {
	return &Config{
		IndexURLTemplate:       "https://pleno.senado.gob.mx/infosen/infosen64/index.php?c=Legislatura%d&a=%s",
		PageQueryTemplate:      "&pagina=%d&registros=%d&orden=fecha_presentacion&direccion=DESC",
		BaseURL:                "https://www.senado.gob.mx",
		BaseURLV2:              "https://infosen.senado.gob.mx",
		PageSize:               250,
		Types:                  []string{"iniciativas", "proposiciones"},
		PaginationSelector:     "div.panel-heading p",
		RowSelector:            "table tbody tr",
		PanelContainerSelector: "div.container-fluid.bg-content.main",
		CardContainerSelector:  "div.container-fluid.main",
		DownloadHeading:        "Archivos para descargar",
		Legislatures:           DefaultLegislatures(),
	}
}

// DefaultLegislatures returns the windows for the legislatures the
// observatory tracks.
func DefaultLegislatures() []LegislatureWindow {
	return []LegislatureWindow{
		{
			Number: 64,
			Start:  time.Date(2018, 9, 1, 0, 0, 0, 0, time.UTC),
			End:    time.Date(2021, 8, 31, 0, 0, 0, 0, time.UTC),
		},
		{
			Number: 65,
			Start:  time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC),
			End:    time.Date(2024, 8, 31, 0, 0, 0, 0, time.UTC),
		},
	}
}

// ListingURL builds the URL for one listing page. Page 1 is the bare
// index; later pages carry the paging query.
func (c *Config) ListingURL(legislature int, pubType string, page int) string {
	base := fmt.Sprintf(c.IndexURLTemplate, legislature, pubType)
	if page <= 1 {
		return base
	}
	return base + fmt.Sprintf(c.PageQueryTemplate, page, c.PageSize)
}
