package document

import (
	"crypto/md5"
	"fmt"
	"strings"
	"time"
)

// Document is the unit everything downstream of a harvester works with:
// one gazette publication, one news article, or one uploaded file.
type Document struct {
	ID          string    `json:"id"`
	Source      Source    `json:"source"`
	Content     Content   `json:"content"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Source describes where a document came from.
type Source struct {
	Type   string `json:"type"`             // Content type: text, html, pdf
	Outlet string `json:"outlet,omitempty"` // Collection it belongs to: gaceta, jornada, ...
	URL    string `json:"url,omitempty"`    // Source URL if fetched from the web
	Path   string `json:"path,omitempty"`   // Local path if from the filesystem
}

// Content holds the document's actual data.
type Content struct {
	Raw      []byte            `json:"-"`        // Raw bytes, never serialized
	Text     string            `json:"text"`     // Extracted text
	Redacted string            `json:"redacted"` // Text after place-name redaction
	Metadata map[string]string `json:"metadata"` // Arbitrary metadata
	Tokens   []string          `json:"tokens,omitempty"`
}

// NewID derives a stable document ID from a source URL: the lowercase hex
// MD5 of the trimmed URL. The same URL always maps to the same ID, which
// is what the duplicate checks rely on.
func NewID(url string) string {
	normalized := strings.TrimRight(strings.TrimSpace(url), "/")
	return fmt.Sprintf("%x", md5.Sum([]byte(normalized)))
}

// PartitionDate picks the date a document is filed under: the publication
// date when known, otherwise when we first saw it.
func (d *Document) PartitionDate() time.Time {
	if !d.PublishedAt.IsZero() {
		return d.PublishedAt
	}
	return d.CreatedAt
}

// StoragePath returns the date-partitioned location of the document:
// documents/{outlet}/year=YYYY/month=MM/day=DD/{id}.json
func (d *Document) StoragePath() string {
	outlet := d.Source.Outlet
	if outlet == "" {
		outlet = d.Source.Type
	}
	date := d.PartitionDate()
	return fmt.Sprintf("documents/%s/year=%04d/month=%02d/day=%02d/%s.json",
		outlet, date.Year(), int(date.Month()), date.Day(), d.ID)
}

// GitPath returns the path used inside the archive repository.
// Format: documents/{type}/{YYYY/MM}/{id}
func (d *Document) GitPath() string {
	date := d.PartitionDate().Format("2006/01")
	return fmt.Sprintf("documents/%s/%s/%s", d.Source.Type, date, d.ID)
}

// Validate checks that the document has the fields storage requires.
func (d *Document) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("document ID cannot be empty")
	}
	if d.Source.Type == "" {
		return fmt.Errorf("document source type cannot be empty")
	}
	if d.Source.URL == "" && d.Source.Path == "" {
		return fmt.Errorf("document must have either URL or path")
	}
	return nil
}
