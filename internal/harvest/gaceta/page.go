package gaceta

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// pageContent is what a publication page yields: an attachment link,
// inline text, or nothing when the page has neither known layout.
type pageContent struct {
	documentURL string
	text        string
	found       bool
}

// parsePublicationPage reads a publication's detail page. The site runs
// two generations of markup: a Bootstrap-3 panel layout where the third
// panel holds either the download box or the full text, and a card
// layout where a "Archivos para descargar:" header precedes the link.
func parsePublicationPage(doc *goquery.Document, cfg *Config) (*pageContent, error) {
	container := doc.Find(cfg.PanelContainerSelector).First()
	if container.Length() > 0 {
		return parsePanelLayout(container, cfg)
	}

	container = doc.Find(cfg.CardContainerSelector).First()
	if container.Length() > 0 {
		return parseCardLayout(container, cfg)
	}

	return &pageContent{found: false}, nil
}

func parsePanelLayout(container *goquery.Selection, cfg *Config) (*pageContent, error) {
	panels := container.Find("div.panel-group").First().
		ChildrenFiltered("div.panel.panel-default")
	if panels.Length() < 3 {
		return nil, fmt.Errorf("panel layout has %d panels, expected 3", panels.Length())
	}
	panel := panels.Eq(2)

	heading := panel.Find("div.panel-heading").First()
	if heading.Length() > 0 && strings.Contains(heading.Text(), cfg.DownloadHeading) {
		href, ok := panel.Find("a").First().Attr("href")
		if !ok {
			return nil, fmt.Errorf("download panel has no link")
		}
		return &pageContent{documentURL: href, found: true}, nil
	}

	return &pageContent{
		text:  strings.Join(textLines(panel), "\n"),
		found: true,
	}, nil
}

func parseCardLayout(container *goquery.Selection, cfg *Config) (*pageContent, error) {
	var downloadBody *goquery.Selection
	container.Find("div.card-header").EachWithBreak(func(_ int, header *goquery.Selection) bool {
		if strings.TrimSpace(header.Text()) == cfg.DownloadHeading+":" {
			downloadBody = header.NextAllFiltered("div.card-body").First()
			return false
		}
		return true
	})

	if downloadBody != nil && downloadBody.Length() > 0 {
		href, ok := downloadBody.Find("a").First().Attr("href")
		if !ok {
			return nil, fmt.Errorf("download card has no link")
		}
		return &pageContent{documentURL: href, found: true}, nil
	}

	bodies := container.Find("div.card-body")
	if bodies.Length() < 2 {
		return nil, fmt.Errorf("card layout has %d bodies, expected 2", bodies.Length())
	}
	return &pageContent{
		text:  strings.Join(textLines(bodies.Eq(1)), "\n"),
		found: true,
	}, nil
}

// resolveURL makes an attachment href absolute against the page it was
// found on.
func resolveURL(pageURL, href string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
