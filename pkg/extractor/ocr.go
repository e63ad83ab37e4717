//go:build ocr
// +build ocr

package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// OCRExtractor extracts text from scanned images. Older gazette scans
// are image-only PDFs whose page images end up here.
type OCRExtractor struct {
	Language             string // Tesseract language code
	PageSegmentationMode gosseract.PageSegMode
	OCREngineMode        gosseract.EngineMode
}

// NewOCRExtractor creates an OCR extractor tuned for Spanish documents.
func NewOCRExtractor() *OCRExtractor {
	return &OCRExtractor{
		Language:             "spa",
		PageSegmentationMode: gosseract.PSM_AUTO,
		OCREngineMode:        gosseract.OEM_LSTM_ONLY,
	}
}

// Extract extracts text from image content using OCR.
func (o *OCRExtractor) Extract(ctx context.Context, content []byte) (string, map[string]string, error) {
	metadata := map[string]string{
		"type":     "ocr",
		"size":     fmt.Sprintf("%d", len(content)),
		"language": o.Language,
		"engine":   "tesseract",
	}

	if len(content) == 0 {
		return "", metadata, &ExtractionError{
			Message: "no image content provided for OCR",
		}
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(o.Language); err != nil {
		return "", metadata, &ExtractionError{
			Message: fmt.Sprintf("failed to set OCR language %q: %v", o.Language, err),
		}
	}

	if err := client.SetPageSegMode(o.PageSegmentationMode); err != nil {
		return "", metadata, &ExtractionError{
			Message: fmt.Sprintf("failed to set page segmentation mode: %v", err),
		}
	}

	if err := client.SetImageFromBytes(content); err != nil {
		return "", metadata, &ExtractionError{
			Message: fmt.Sprintf("failed to set OCR image data: %v", err),
		}
	}

	text, err := client.Text()
	if err != nil {
		return "", metadata, &ExtractionError{
			Message: fmt.Sprintf("OCR text extraction failed: %v", err),
		}
	}

	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	if confidence, err := client.GetMeanConfidence(); err == nil {
		metadata["confidence"] = fmt.Sprintf("%.2f", confidence)
	}

	metadata["text_length"] = fmt.Sprintf("%d", len(text))
	metadata["word_count"] = fmt.Sprintf("%d", len(strings.Fields(text)))
	metadata["status"] = "success"

	if text == "" {
		return "", metadata, &ExtractionError{
			Message: "OCR could not extract any text from the image",
		}
	}

	return text, metadata, nil
}
