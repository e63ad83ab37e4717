package processing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/civiclab-mx/observatorio/pkg/document"
	"github.com/civiclab-mx/observatorio/pkg/placenames"
)

// CleaningRule is one toggleable content transformation.
type CleaningRule interface {
	Name() string
	Description() string
	Apply(content string) (string, error)
	Applicable(docType string) bool
}

// CleaningResult summarizes what cleaning did to one document.
type CleaningResult struct {
	OriginalLength int           `json:"original_length"`
	CleanedLength  int           `json:"cleaned_length"`
	RulesApplied   []string      `json:"rules_applied"`
	BytesRemoved   int           `json:"bytes_removed"`
	Redacted       bool          `json:"redacted"`
	ProcessingTime time.Duration `json:"processing_time"`
	Warnings       []string      `json:"warnings,omitempty"`
}

// ContentCleaner runs the text rules over a document in order, then the
// redaction rule over the cleaned text. The cleaned text replaces
// Content.Text; the redacted variant goes to Content.Redacted so the
// archive keeps the place names and the analysis copy does not.
type ContentCleaner struct {
	rules        []CleaningRule
	redaction    CleaningRule
	enabledRules map[string]bool
	strictMode   bool
}

// NewContentCleaner builds a cleaner with the default rule set. A nil
// redactor disables the redaction step.
func NewContentCleaner(redactor *placenames.Redactor) *ContentCleaner {
	cleaner := &ContentCleaner{
		rules:        make([]CleaningRule, 0),
		enabledRules: make(map[string]bool),
	}

	cleaner.AddRule(&ControlCharStrippingRule{})
	cleaner.AddRule(&WhitespaceNormalizationRule{})
	cleaner.AddRule(&BlankLineCollapseRule{})
	cleaner.AddRule(&URLMaskingRule{})
	cleaner.AddRule(&EmailMaskingRule{})

	if redactor != nil {
		rule := NewPlaceRedactionRule(redactor)
		cleaner.redaction = rule
		cleaner.enabledRules[rule.Name()] = true
	}

	return cleaner
}

// AddRule appends a rule to the text chain and enables it.
func (cc *ContentCleaner) AddRule(rule CleaningRule) {
	cc.rules = append(cc.rules, rule)
	cc.enabledRules[rule.Name()] = true
}

func (cc *ContentCleaner) EnableRule(ruleName string) {
	cc.enabledRules[ruleName] = true
}

func (cc *ContentCleaner) DisableRule(ruleName string) {
	cc.enabledRules[ruleName] = false
}

// SetStrictMode makes rule errors fatal instead of warnings.
func (cc *ContentCleaner) SetStrictMode(strict bool) {
	cc.strictMode = strict
}

// CleanDocument cleans doc's text in place and fills the redacted copy.
func (cc *ContentCleaner) CleanDocument(ctx context.Context, doc *document.Document) (*CleaningResult, error) {
	if doc == nil || doc.Content.Text == "" {
		return &CleaningResult{RulesApplied: []string{}}, nil
	}

	start := time.Now()
	original := doc.Content.Text
	cleaned := original
	rulesApplied := []string{}
	var warnings []string

	for _, rule := range cc.rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !cc.enabledRules[rule.Name()] || !rule.Applicable(doc.Source.Type) {
			continue
		}

		after, err := rule.Apply(cleaned)
		if err != nil {
			if cc.strictMode {
				return nil, fmt.Errorf("rule %s: %w", rule.Name(), err)
			}
			warnings = append(warnings, fmt.Sprintf("rule %s failed: %v", rule.Name(), err))
			continue
		}
		if after != cleaned {
			cleaned = after
			rulesApplied = append(rulesApplied, rule.Name())
		}
	}

	doc.Content.Text = cleaned

	result := &CleaningResult{
		OriginalLength: len(original),
		CleanedLength:  len(cleaned),
		RulesApplied:   rulesApplied,
		BytesRemoved:   len(original) - len(cleaned),
	}

	if cc.redaction != nil && cc.enabledRules[cc.redaction.Name()] {
		redacted, err := cc.redaction.Apply(cleaned)
		if err != nil {
			if cc.strictMode {
				return nil, fmt.Errorf("rule %s: %w", cc.redaction.Name(), err)
			}
			warnings = append(warnings, fmt.Sprintf("rule %s failed: %v", cc.redaction.Name(), err))
		} else {
			doc.Content.Redacted = redacted
			result.Redacted = redacted != cleaned
			if result.Redacted {
				rulesApplied = append(rulesApplied, cc.redaction.Name())
				result.RulesApplied = rulesApplied
			}
		}
	}

	if doc.Content.Metadata == nil {
		doc.Content.Metadata = make(map[string]string)
	}
	doc.Content.Metadata["cleaned"] = "true"
	doc.Content.Metadata["cleaned_at"] = time.Now().UTC().Format(time.RFC3339)
	doc.Content.Metadata["rules_applied"] = strings.Join(rulesApplied, ",")

	result.ProcessingTime = time.Since(start)
	result.Warnings = warnings
	return result, nil
}

// GetEnabledRules lists the enabled rules in application order.
func (cc *ContentCleaner) GetEnabledRules() []string {
	enabled := make([]string, 0, len(cc.rules)+1)
	for _, rule := range cc.rules {
		if cc.enabledRules[rule.Name()] {
			enabled = append(enabled, rule.Name())
		}
	}
	if cc.redaction != nil && cc.enabledRules[cc.redaction.Name()] {
		enabled = append(enabled, cc.redaction.Name())
	}
	return enabled
}

// GetAvailableRules maps every known rule to its description.
func (cc *ContentCleaner) GetAvailableRules() map[string]string {
	rules := make(map[string]string, len(cc.rules)+1)
	for _, rule := range cc.rules {
		rules[rule.Name()] = rule.Description()
	}
	if cc.redaction != nil {
		rules[cc.redaction.Name()] = cc.redaction.Description()
	}
	return rules
}
