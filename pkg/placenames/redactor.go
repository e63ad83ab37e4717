// Package placenames redacts Mexican place names from administrative and
// legislative text, replacing each recognized city or state mention with a
// category placeholder. Names that are ambiguous between the two categories
// (Campeche, Puebla, ...) are resolved by span containment and, for exact
// ties, by nearby administrative listing cues.
//
// The transformation is pure and keeps no state across calls, so one
// Redactor may be shared by any number of goroutines.
package placenames

import (
	"fmt"
	"regexp"
	"strings"
)

// CategoryConfig describes one reference list: the candidate names, the
// regex template the names are spliced into (see NameMarker), and the
// placeholder written in place of redacted spans. Names may be supplied
// accented or not; they are folded before compilation.
type CategoryConfig struct {
	Names       []string `json:"names"`
	Template    string   `json:"template"`
	Placeholder string   `json:"placeholder"`
}

// Config carries the two reference lists a Redactor works from.
type Config struct {
	City   CategoryConfig `json:"city"`
	Estate CategoryConfig `json:"estate"`
}

// fastPathRe probes the raw text for any administrative cue. Text without
// one cannot contain a redactable reference, so the full pipeline is
// skipped entirely.
var fastPathRe = regexp.MustCompile(`[ ,](([eE]stados?|[mM]unicipios?) de|Ciudad |Distrito )`)

// guardRe vets a candidate span against the original text. A real place
// reference starts, after an optional separator, with an uppercase letter
// or an administrative keyword; anything else is a false positive picked
// up by the case-folded search.
var guardRe = regexp.MustCompile(`^[ ,]?([eE]stados?|[mM]unicipios?|[A-ZÁÉÍÓÚ])`)

// Redactor holds the compiled patterns for both categories. Build one
// with New and reuse it; compilation is the expensive part.
type Redactor struct {
	city   *categoryMatcher
	estate *categoryMatcher
}

// New validates the configuration and compiles every name pattern.
// Malformed templates surface here, not during matching.
func New(cfg Config) (*Redactor, error) {
	city, err := newCategoryMatcher(string(CategoryCity), cfg.City)
	if err != nil {
		return nil, fmt.Errorf("compiling city patterns: %w", err)
	}
	estate, err := newCategoryMatcher(string(CategoryEstate), cfg.Estate)
	if err != nil {
		return nil, fmt.Errorf("compiling estate patterns: %w", err)
	}
	return &Redactor{city: city, estate: estate}, nil
}

// RedactPlaces is the one-shot form: compile cfg, redact text, discard.
// Callers redacting many documents should build a Redactor once instead.
func RedactPlaces(text string, cfg Config) (string, error) {
	r, err := New(cfg)
	if err != nil {
		return "", err
	}
	return r.Redact(text), nil
}

// Redact replaces every resolved place reference in text with its
// category placeholder and returns the rewritten string. Text without an
// administrative cue, or without any match surviving resolution and the
// false-positive guard, comes back unchanged.
func (r *Redactor) Redact(text string) string {
	if !fastPathRe.MatchString(text) {
		return text
	}

	normalized := normalizeText(text)
	cities := r.city.findMatches(normalized.text)
	estates := r.estate.findMatches(normalized.text)
	replacements := resolve(cities, estates, normalized.text)
	if len(replacements) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	lastEnd := 0
	for _, rep := range replacements {
		start := normalized.original(rep.Start)
		end := normalized.original(rep.End)
		if end <= lastEnd {
			continue
		}

		if !guardRe.MatchString(text[start:end]) {
			// False positive: the original casing says this is not a
			// place reference, keep the text through the span end.
			b.WriteString(text[lastEnd:end])
			lastEnd = end
			continue
		}

		// Spans can abut when an earlier, longer span already consumed
		// part of this one; clamp so the splice never rewinds.
		if start < lastEnd {
			start = lastEnd
		}
		b.WriteString(text[lastEnd:start])
		b.WriteString(r.placeholderFor(rep.Category))
		lastEnd = end
	}
	b.WriteString(text[lastEnd:])
	return b.String()
}

func (r *Redactor) placeholderFor(c Category) string {
	if c == CategoryCity {
		return r.city.placeholder
	}
	return r.estate.placeholder
}
