package harvest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrorCapture saves raw page fragments that failed to parse so selector
// breakage on a source site can be diagnosed offline. Files land under
// the error directory as {kind}_{id}.html.
type ErrorCapture struct {
	errorDir string
	mu       sync.Mutex
	saved    int64
}

// NewErrorCapture creates the error directory if needed.
func NewErrorCapture(errorDir string) (*ErrorCapture, error) {
	if err := os.MkdirAll(errorDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create error directory: %w", err)
	}
	return &ErrorCapture{errorDir: errorDir}, nil
}

// SaveHTML writes a raw HTML fragment for later inspection and returns
// the file path. Capture failures are logged, not propagated; losing a
// diagnostic dump must never abort a harvest.
func (e *ErrorCapture) SaveHTML(kind, id string, raw []byte) string {
	name := fmt.Sprintf("%s_%s.html", sanitizeFileName(kind), sanitizeFileName(id))
	path := filepath.Join(e.errorDir, name)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.WriteFile(path, raw, 0644); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to save error capture")
		return ""
	}
	e.saved++

	log.Info().
		Str("kind", kind).
		Str("id", id).
		Str("path", path).
		Msg("Saved unparseable fragment for inspection")
	return path
}

// Count returns how many captures this process has written.
func (e *ErrorCapture) Count() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saved
}

func sanitizeFileName(s string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", " ", "_", ":", "_")
	s = replacer.Replace(s)
	if s == "" {
		s = "unknown"
	}
	return s
}
