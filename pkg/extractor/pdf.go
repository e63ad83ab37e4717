package extractor

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// blankLineRe collapses runs of newlines and indentation that PDF text
// extraction leaves between paragraphs.
var blankLineRe = regexp.MustCompile(`(\n *)+`)

// PDFExtractor handles PDF file extraction. Gazette attachments are all
// PDFs, so this is the busiest extractor in the system.
type PDFExtractor struct {
	MaxPages int
}

// Extract extracts text page by page. Pages that fail individually are
// skipped; a document yielding no text at all is an ExtractionError.
func (p *PDFExtractor) Extract(ctx context.Context, content []byte) (string, map[string]string, error) {
	metadata := map[string]string{
		"type": "pdf",
		"size": fmt.Sprintf("%d", len(content)),
	}

	if len(content) < 4 || string(content[:4]) != "%PDF" {
		return "", metadata, &ExtractionError{
			Message: fmt.Sprintf("not a valid PDF file - content starts with: %q", string(content[:min(20, len(content))])),
		}
	}

	reader := bytes.NewReader(content)
	doc, err := pdf.NewReader(reader, int64(len(content)))
	if err != nil {
		return "", metadata, &ExtractionError{
			Message: fmt.Sprintf("failed to parse PDF: %v", err),
		}
	}

	var pages []string
	var pageCount int

	for i := 1; i <= doc.NumPage(); i++ {
		pageCount++

		if p.MaxPages > 0 && pageCount > p.MaxPages {
			break
		}

		page := doc.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}

		pageText = strings.TrimSpace(pageText)
		pageText = blankLineRe.ReplaceAllString(pageText, "\n")
		pages = append(pages, pageText)
	}

	text := strings.TrimSpace(strings.Join(pages, "\n"))

	metadata["pages"] = fmt.Sprintf("%d", doc.NumPage())
	metadata["extracted_pages"] = fmt.Sprintf("%d", pageCount)
	metadata["text_length"] = fmt.Sprintf("%d", len(text))
	metadata["status"] = "success"

	if text == "" {
		return "", metadata, &ExtractionError{
			Message: "PDF contains no extractable text",
		}
	}

	return text, metadata, nil
}
