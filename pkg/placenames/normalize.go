package placenames

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// accentFolder strips combining marks after canonical decomposition, turning
// "á" into "a", "ñ" into "n", and so on.
var accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizedText is a lower-cased, accent-folded copy of an input string
// together with a byte-offset table back into the original. Matching runs
// against the folded text, but redaction splices the original, so every
// match offset has to be translatable.
type normalizedText struct {
	text   string
	toOrig []int
}

// normalizeText folds the input rune by rune so that each folded rune maps
// to exactly one original rune. Folding that would change the rune count
// (no Spanish letter does) falls back to the lower-cased rune unchanged.
func normalizeText(s string) *normalizedText {
	var b strings.Builder
	b.Grow(len(s))
	toOrig := make([]int, 0, len(s)+1)

	for origIdx, r := range s {
		folded := foldRune(unicode.ToLower(r))
		for i := 0; i < utf8.RuneLen(folded); i++ {
			toOrig = append(toOrig, origIdx)
		}
		b.WriteRune(folded)
	}
	toOrig = append(toOrig, len(s))

	return &normalizedText{text: b.String(), toOrig: toOrig}
}

// original translates a byte offset in the normalized text into the
// corresponding byte offset in the original string.
func (n *normalizedText) original(idx int) int {
	if idx < 0 {
		return 0
	}
	if idx >= len(n.toOrig) {
		return n.toOrig[len(n.toOrig)-1]
	}
	return n.toOrig[idx]
}

func foldRune(r rune) rune {
	if r < utf8.RuneSelf {
		return r
	}
	folded, _, err := transform.String(accentFolder, string(r))
	if err != nil || folded == "" {
		return r
	}
	first, size := utf8.DecodeRuneInString(folded)
	if size != len(folded) {
		return r
	}
	return first
}

// normalizeName folds a catalog name the same way search text is folded,
// so callers may supply names with or without accents.
func normalizeName(name string) string {
	return normalizeText(name).text
}
