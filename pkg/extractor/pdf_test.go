package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTextFromPDF(t *testing.T) {
	tests := []struct {
		name        string
		content     []byte
		expectError bool
	}{
		{
			name:        "empty content",
			content:     []byte{},
			expectError: true,
		},
		{
			name:        "invalid PDF content",
			content:     []byte("This is not a PDF file"),
			expectError: true,
		},
		{
			name:        "nil content",
			content:     nil,
			expectError: true,
		},
	}

	extractor := &PDFExtractor{}
	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, metadata, err := extractor.Extract(ctx, tt.content)

			if tt.expectError {
				assert.Error(t, err)
				assert.Empty(t, text)
				// Metadata may still be returned even on error
				assert.Contains(t, metadata, "type")
				assert.Equal(t, "pdf", metadata["type"])

				// Check error type
				_, ok := err.(*ExtractionError)
				assert.True(t, ok, "Expected ExtractionError, got %T", err)
			} else {
				assert.NoError(t, err)
				assert.NotEmpty(t, text)
				assert.NotEmpty(t, metadata)
			}
		})
	}
}

func TestExtractionError_Message(t *testing.T) {
	err := &ExtractionError{Message: "test extraction failure"}
	assert.Equal(t, "test extraction failure", err.Error())
}

func TestPDFExtractor_InvalidHeader(t *testing.T) {
	extractor := &PDFExtractor{}
	ctx := context.Background()

	content := make([]byte, 1024)
	copy(content, []byte("Not a PDF"))

	text, metadata, err := extractor.Extract(ctx, content)

	assert.Error(t, err)
	assert.Empty(t, text)
	assert.Contains(t, metadata, "type")
	assert.Equal(t, "pdf", metadata["type"])

	// Should be an ExtractionError due to invalid format
	_, ok := err.(*ExtractionError)
	assert.True(t, ok)
}
