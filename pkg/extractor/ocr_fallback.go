//go:build !ocr
// +build !ocr

package extractor

import (
	"context"
	"fmt"
)

// OCRExtractor is a stub used when the binary is built without the ocr tag.
// Image content is stored as-is and can be re-extracted once OCR support
// is compiled in.
type OCRExtractor struct {
	Language string
}

// NewOCRExtractor creates a stub OCR extractor.
func NewOCRExtractor() *OCRExtractor {
	return &OCRExtractor{Language: "spa"}
}

// Extract returns an error indicating OCR support is not compiled in.
func (o *OCRExtractor) Extract(ctx context.Context, content []byte) (string, map[string]string, error) {
	metadata := map[string]string{
		"type":   "ocr",
		"size":   fmt.Sprintf("%d", len(content)),
		"status": "unavailable",
	}

	return "", metadata, &ExtractionError{
		Message: "OCR support not compiled in (rebuild with -tags ocr)",
	}
}
