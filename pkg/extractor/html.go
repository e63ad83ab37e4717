package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// HTMLExtractor walks the parsed HTML tree instead of regex-stripping
// tags, so nested markup and entities come out right.
type HTMLExtractor struct{}

func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{}
}

func (h *HTMLExtractor) Extract(ctx context.Context, content []byte) (string, map[string]string, error) {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var textBuilder strings.Builder
	var title string
	extractText(doc, &textBuilder, &title)

	text := cleanupText(textBuilder.String())

	metadata := map[string]string{
		"type":       "html",
		"characters": fmt.Sprintf("%d", len(text)),
		"title":      title,
	}

	return text, metadata, nil
}

func extractText(n *html.Node, w io.Writer, title *string) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "nav", "header", "footer", "aside", "form", "iframe":
			return
		case "title":
			if *title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				*title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		}
	}

	if n.Type == html.TextNode {
		text := strings.TrimSpace(n.Data)
		if text != "" {
			if n.Parent != nil && isBlockElement(n.Parent.Data) {
				fmt.Fprintf(w, "\n%s\n", text)
			} else {
				fmt.Fprintf(w, " %s ", text)
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, w, title)
	}
}

func isBlockElement(tag string) bool {
	blockElements := map[string]bool{
		"p": true, "div": true, "h1": true, "h2": true, "h3": true,
		"h4": true, "h5": true, "h6": true, "li": true, "blockquote": true,
		"article": true, "section": true, "main": true, "pre": true,
		"td": true, "th": true, "dt": true, "dd": true,
	}
	return blockElements[tag]
}

// noisePatterns are boilerplate lines that Mexican news templates repeat
// on every page and that would otherwise pollute the corpus.
var noisePatterns = []string{
	"Compartir",
	"Suscríbete",
	"Suscríbete al boletín",
	"Lee también",
	"Te recomendamos",
	"Noticias relacionadas",
	"Publicidad",
	"Todos los derechos reservados",
	"Aviso de privacidad",
	"Síguenos en",
}

func cleanupText(text string) string {
	lines := strings.Split(text, "\n")
	var cleaned []string

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			line = strings.Join(strings.Fields(line), " ")
			cleaned = append(cleaned, line)
		}
	}

	result := strings.Join(cleaned, "\n\n")

	for _, pattern := range noisePatterns {
		result = strings.ReplaceAll(result, pattern+"\n\n", "")
		result = strings.ReplaceAll(result, "\n\n"+pattern, "")
	}

	return strings.TrimSpace(result)
}
