package document

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewID(t *testing.T) {
	id := NewID("https://www.senado.gob.mx/65/gaceta_del_senado/documento/12345")

	assert.Len(t, id, 32)
	assert.Equal(t, id, NewID("https://www.senado.gob.mx/65/gaceta_del_senado/documento/12345/"))
	assert.Equal(t, id, NewID("  https://www.senado.gob.mx/65/gaceta_del_senado/documento/12345 "))
	assert.NotEqual(t, id, NewID("https://www.senado.gob.mx/65/gaceta_del_senado/documento/12346"))
}

func TestDocument_StoragePath(t *testing.T) {
	published := time.Date(2022, 3, 7, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		doc      *Document
		expected string
	}{
		{
			name: "news article partitioned by publication date",
			doc: &Document{
				ID:          "abc123",
				Source:      Source{Type: "html", Outlet: "jornada"},
				PublishedAt: published,
				CreatedAt:   time.Date(2022, 5, 1, 0, 0, 0, 0, time.UTC),
			},
			expected: "documents/jornada/year=2022/month=03/day=07/abc123.json",
		},
		{
			name: "falls back to created date",
			doc: &Document{
				ID:        "abc123",
				Source:    Source{Type: "pdf", Outlet: "gaceta"},
				CreatedAt: time.Date(2021, 11, 30, 8, 0, 0, 0, time.UTC),
			},
			expected: "documents/gaceta/year=2021/month=11/day=30/abc123.json",
		},
		{
			name: "falls back to content type without outlet",
			doc: &Document{
				ID:        "abc123",
				Source:    Source{Type: "text"},
				CreatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			},
			expected: "documents/text/year=2024/month=01/day=02/abc123.json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.doc.StoragePath())
		})
	}
}

func TestDocument_GitPath(t *testing.T) {
	doc := &Document{
		ID:          "deadbeef",
		Source:      Source{Type: "pdf", Outlet: "gaceta"},
		PublishedAt: time.Date(2022, 9, 14, 0, 0, 0, 0, time.UTC),
	}

	assert.Equal(t, "documents/pdf/2022/09/deadbeef", doc.GitPath())
}

func TestDocument_Validate(t *testing.T) {
	tests := []struct {
		name    string
		doc     *Document
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid document",
			doc: &Document{
				ID: "test-123",
				Source: Source{
					Type:   "pdf",
					Outlet: "gaceta",
					URL:    "https://www.senado.gob.mx/doc.pdf",
				},
				Content: Content{
					Text:     "Contenido de prueba",
					Metadata: map[string]string{"legislature": "65"},
				},
				CreatedAt: time.Now(),
				UpdatedAt: time.Now(),
			},
			wantErr: false,
		},
		{
			name: "missing ID",
			doc: &Document{
				Source: Source{Type: "pdf", URL: "https://example.com/doc.pdf"},
			},
			wantErr: true,
			errMsg:  "document ID cannot be empty",
		},
		{
			name: "missing source type",
			doc: &Document{
				ID:     "test-123",
				Source: Source{URL: "https://example.com/doc.pdf"},
			},
			wantErr: true,
			errMsg:  "document source type cannot be empty",
		},
		{
			name: "missing source URL and path",
			doc: &Document{
				ID:     "test-123",
				Source: Source{Type: "pdf"},
			},
			wantErr: true,
			errMsg:  "document must have either URL or path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.doc.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
