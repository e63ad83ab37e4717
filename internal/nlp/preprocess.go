// Package nlp normalizes cleaned document text into token lists ready
// for downstream modeling. It deliberately stops at tokens: model
// training happens outside this system.
package nlp

import (
	"regexp"
	"strings"

	"github.com/civiclab-mx/observatorio/pkg/placenames"
)

// Config controls token preprocessing.
type Config struct {
	// RemoveWords are stripped verbatim before any normalization.
	RemoveWords []string `json:"remove_words"`

	// StopWords are dropped after normalization. Empty means keep
	// every token.
	StopWords []string `json:"stop_words"`
}

// DefaultConfig strips the redaction placeholders and filters the
// common Spanish stop words.
func DefaultConfig() Config {
	return Config{
		RemoveWords: []string{
			placenames.DefaultCityPlaceholder,
			placenames.DefaultEstatePlaceholder,
		},
		StopWords: DefaultStopWords,
	}
}

// Only lowercase letters (with Spanish accents), digits, whitespace and
// underscores survive normalization.
var strippedRe = regexp.MustCompile(`[^a-záéíóúñ\d\s_]`)

// Preprocessor turns raw article and gazette text into normalized
// tokens.
type Preprocessor struct {
	removeWords []string
	stopWords   map[string]struct{}
}

// NewPreprocessor creates a preprocessor from the given config.
func NewPreprocessor(cfg Config) *Preprocessor {
	stopWords := make(map[string]struct{}, len(cfg.StopWords))
	for _, w := range cfg.StopWords {
		stopWords[w] = struct{}{}
	}

	return &Preprocessor{
		removeWords: cfg.RemoveWords,
		stopWords:   stopWords,
	}
}

// Tokens normalizes text and returns the surviving tokens in order.
func (p *Preprocessor) Tokens(text string) []string {
	for _, w := range p.removeWords {
		text = strings.ReplaceAll(text, w, "")
	}

	text = strings.ToLower(text)
	text = strippedRe.ReplaceAllString(text, "")

	fields := strings.Fields(text)
	if len(p.stopWords) == 0 {
		return fields
	}

	tokens := fields[:0]
	for _, token := range fields {
		if _, drop := p.stopWords[token]; !drop {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// Clean returns the normalized text as a single space-joined string.
func (p *Preprocessor) Clean(text string) string {
	return strings.Join(p.Tokens(text), " ")
}
