// Package extractor turns fetched bytes into plain text. One Engine
// dispatches on content type to the format-specific extractors; every
// extractor returns the text, a metadata map, and an error that is an
// *ExtractionError when the content itself is beyond saving.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"
)

type Engine struct {
	extractors map[string]Extractor
}

type Extractor interface {
	Extract(ctx context.Context, content []byte) (string, map[string]string, error)
}

func NewEngine() *Engine {
	return &Engine{
		extractors: map[string]Extractor{
			"text": &TextExtractor{},
			"txt":  &TextExtractor{},
			"html": NewHTMLExtractor(),
			"pdf":  &PDFExtractor{MaxPages: 1000},
			"docx": &DOCXExtractor{},
			"doc":  &DOCXExtractor{}, // Treat .doc as .docx (best effort)
			"png":  NewOCRExtractor(),
			"jpg":  NewOCRExtractor(),
			"jpeg": NewOCRExtractor(),
			"tiff": NewOCRExtractor(),
			"bmp":  NewOCRExtractor(),
			"gif":  NewOCRExtractor(),
		},
	}
}

// Extract routes content to the extractor registered for contentType.
// Both bare keys ("pdf") and MIME types with parameters
// ("application/pdf", "text/html; charset=utf-8") are accepted; unknown
// types fall back to plain text.
func (e *Engine) Extract(ctx context.Context, content []byte, contentType string) (string, map[string]string, error) {
	extractor, ok := e.extractors[normalizeContentType(contentType)]
	if !ok {
		extractor = e.extractors["text"]
	}

	return extractor.Extract(ctx, content)
}

func normalizeContentType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}

	switch ct {
	case "text/html", "application/xhtml+xml":
		return "html"
	case "application/pdf", "application/x-pdf":
		return "pdf"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return "docx"
	case "application/msword":
		return "doc"
	case "text/plain":
		return "text"
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpeg"
	case "image/tiff":
		return "tiff"
	case "image/bmp":
		return "bmp"
	case "image/gif":
		return "gif"
	}

	// Already a bare key, or something we have no extractor for.
	if i := strings.IndexByte(ct, '/'); i >= 0 {
		return ct[i+1:]
	}
	return ct
}

// TextExtractor handles plain text content.
type TextExtractor struct{}

func (t *TextExtractor) Extract(ctx context.Context, content []byte) (string, map[string]string, error) {
	text := string(content)
	metadata := map[string]string{
		"type":       "text",
		"characters": fmt.Sprintf("%d", len(text)),
		"lines":      fmt.Sprintf("%d", bytes.Count(content, []byte("\n"))+1),
	}
	return text, metadata, nil
}
