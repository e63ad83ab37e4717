package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeContentType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		expected    string
	}{
		{
			name:        "bare key passes through",
			contentType: "pdf",
			expected:    "pdf",
		},
		{
			name:        "pdf MIME type",
			contentType: "application/pdf",
			expected:    "pdf",
		},
		{
			name:        "html with charset parameter",
			contentType: "text/html; charset=utf-8",
			expected:    "html",
		},
		{
			name:        "uppercase is folded",
			contentType: "TEXT/HTML",
			expected:    "html",
		},
		{
			name:        "docx MIME type",
			contentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			expected:    "docx",
		},
		{
			name:        "plain text",
			contentType: "text/plain",
			expected:    "text",
		},
		{
			name:        "png image",
			contentType: "image/png",
			expected:    "png",
		},
		{
			name:        "unknown MIME type keeps subtype",
			contentType: "application/json",
			expected:    "json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeContentType(tt.contentType))
		})
	}
}

func TestEngine_UnknownTypeFallsBackToText(t *testing.T) {
	engine := NewEngine()
	ctx := context.Background()

	text, metadata, err := engine.Extract(ctx, []byte(`{"clave": "valor"}`), "application/json")

	require.NoError(t, err)
	assert.Equal(t, `{"clave": "valor"}`, text)
	assert.Equal(t, "text", metadata["type"])
}

func TestEngine_ExtractHTML(t *testing.T) {
	engine := NewEngine()
	ctx := context.Background()

	page := `<html><head><title>Nota</title><script>var x = 1;</script></head>` +
		`<body><p>Primer párrafo.</p><nav>Menú principal</nav><p>Segundo párrafo.</p></body></html>`

	text, metadata, err := engine.Extract(ctx, []byte(page), "text/html; charset=utf-8")

	require.NoError(t, err)
	assert.Equal(t, "Primer párrafo.\n\nSegundo párrafo.", text)
	assert.Equal(t, "html", metadata["type"])
	assert.Equal(t, "Nota", metadata["title"])
	assert.NotContains(t, text, "var x")
	assert.NotContains(t, text, "Menú principal")
}

func TestHTMLExtractor_StripsBoilerplate(t *testing.T) {
	extractor := NewHTMLExtractor()
	ctx := context.Background()

	page := `<html><body><p>Contenido real.</p><div>Publicidad</div><p>Más contenido.</p></body></html>`

	text, _, err := extractor.Extract(ctx, []byte(page))

	require.NoError(t, err)
	assert.Equal(t, "Contenido real.\n\nMás contenido.", text)
}

func TestDOCXExtractor_RejectsNonZipContent(t *testing.T) {
	extractor := &DOCXExtractor{}
	ctx := context.Background()

	text, metadata, err := extractor.Extract(ctx, []byte("plain text, not an archive"))

	assert.Error(t, err)
	assert.Empty(t, text)
	assert.Equal(t, "docx", metadata["type"])

	_, ok := err.(*ExtractionError)
	assert.True(t, ok)
}
