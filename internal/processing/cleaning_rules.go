package processing

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/civiclab-mx/observatorio/pkg/placenames"
)

var (
	horizontalWSRe = regexp.MustCompile(`[ \t]{2,}`)
	lineTrailWSRe  = regexp.MustCompile(`[ \t]+\n`)
	blankLineRe    = regexp.MustCompile(`(\n *)+`)
	urlRe          = regexp.MustCompile(`(https?://|www\.)[^\s<>"]+`)
	emailRe        = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
)

// ControlCharStrippingRule removes control characters and invisible
// Unicode noise that PDFs and CMS pages leave behind. Non-breaking spaces
// become regular spaces; newlines and tabs survive.
type ControlCharStrippingRule struct{}

func (r *ControlCharStrippingRule) Name() string { return "control_char_stripping" }

func (r *ControlCharStrippingRule) Description() string {
	return "Removes control characters, BOM and zero-width marks; folds non-breaking spaces"
}

func (r *ControlCharStrippingRule) Applicable(docType string) bool { return true }

func (r *ControlCharStrippingRule) Apply(content string) (string, error) {
	cleaned := strings.ReplaceAll(content, " ", " ")
	cleaned = strings.ReplaceAll(cleaned, "\uFEFF", "")
	cleaned = strings.ReplaceAll(cleaned, "​", "")
	cleaned = strings.Map(func(c rune) rune {
		if unicode.IsControl(c) && c != '\n' && c != '\t' {
			return -1
		}
		return c
	}, cleaned)
	return cleaned, nil
}

// WhitespaceNormalizationRule collapses runs of spaces and tabs and trims
// trailing whitespace from every line. Newlines are left for the
// blank-line rule.
type WhitespaceNormalizationRule struct{}

func (r *WhitespaceNormalizationRule) Name() string { return "whitespace_normalization" }

func (r *WhitespaceNormalizationRule) Description() string {
	return "Collapses space and tab runs into single spaces"
}

func (r *WhitespaceNormalizationRule) Applicable(docType string) bool { return true }

func (r *WhitespaceNormalizationRule) Apply(content string) (string, error) {
	cleaned := horizontalWSRe.ReplaceAllString(content, " ")
	cleaned = lineTrailWSRe.ReplaceAllString(cleaned, "\n")
	return cleaned, nil
}

// BlankLineCollapseRule folds every run of newlines and indentation into a
// single newline. This is the cleanup extracted gazette PDFs need: page
// breaks and column gaps arrive as stacks of blank lines.
type BlankLineCollapseRule struct{}

func (r *BlankLineCollapseRule) Name() string { return "blank_line_collapse" }

func (r *BlankLineCollapseRule) Description() string {
	return "Collapses blank-line runs into a single line break"
}

func (r *BlankLineCollapseRule) Applicable(docType string) bool { return true }

func (r *BlankLineCollapseRule) Apply(content string) (string, error) {
	return strings.TrimSpace(blankLineRe.ReplaceAllString(content, "\n")), nil
}

// URLMaskingRule replaces link targets with a placeholder so copied share
// links do not dominate token counts downstream.
type URLMaskingRule struct{}

func (r *URLMaskingRule) Name() string { return "url_masking" }

func (r *URLMaskingRule) Description() string {
	return "Replaces URLs with the [URL] placeholder"
}

func (r *URLMaskingRule) Applicable(docType string) bool { return true }

func (r *URLMaskingRule) Apply(content string) (string, error) {
	return urlRe.ReplaceAllString(content, "[URL]"), nil
}

// EmailMaskingRule replaces e-mail addresses with a placeholder. Gazette
// attachments carry legislators' contact addresses that have no analytic
// value.
type EmailMaskingRule struct{}

func (r *EmailMaskingRule) Name() string { return "email_masking" }

func (r *EmailMaskingRule) Description() string {
	return "Replaces e-mail addresses with the [EMAIL] placeholder"
}

func (r *EmailMaskingRule) Applicable(docType string) bool { return true }

func (r *EmailMaskingRule) Apply(content string) (string, error) {
	return emailRe.ReplaceAllString(content, "[EMAIL]"), nil
}

// PlaceRedactionRule masks municipality and state names through the
// place-name redactor. The cleaner runs it after the text rules and
// stores its output separately, so the cleaned text keeps the names and
// the redacted text carries the placeholders.
type PlaceRedactionRule struct {
	redactor *placenames.Redactor
}

func NewPlaceRedactionRule(redactor *placenames.Redactor) *PlaceRedactionRule {
	return &PlaceRedactionRule{redactor: redactor}
}

func (r *PlaceRedactionRule) Name() string { return "place_redaction" }

func (r *PlaceRedactionRule) Description() string {
	return "Masks municipality and state names with catalog placeholders"
}

func (r *PlaceRedactionRule) Applicable(docType string) bool { return true }

func (r *PlaceRedactionRule) Apply(content string) (string, error) {
	return r.redactor.Redact(content), nil
}
