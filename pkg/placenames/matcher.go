package placenames

import (
	"fmt"
	"regexp"
	"strings"
)

// NameMarker is the substitution point a category template must contain.
// Each candidate name is spliced into the template at this marker and the
// result compiled once at configuration time.
const NameMarker = "{name_value}"

// Match is a half-open span [Start, End) in the normalized search text,
// plus the candidate name whose pattern produced it.
type Match struct {
	Start int
	End   int
	Name  string
}

// smallerStart reports whether a strictly precedes b. Matches sharing an
// end offset are resolved in favor of the smaller start, both within one
// category and across the two, so the comparison lives in one place.
func smallerStart(a, b Match) bool {
	return a.Start < b.Start
}

// categoryMatcher holds the compiled per-name patterns for one category.
type categoryMatcher struct {
	names       []string
	patterns    []*regexp.Regexp
	placeholder string
}

func newCategoryMatcher(category string, cfg CategoryConfig) (*categoryMatcher, error) {
	if !strings.Contains(cfg.Template, NameMarker) {
		return nil, fmt.Errorf("%s template missing %s marker", category, NameMarker)
	}

	m := &categoryMatcher{
		names:       make([]string, 0, len(cfg.Names)),
		patterns:    make([]*regexp.Regexp, 0, len(cfg.Names)),
		placeholder: cfg.Placeholder,
	}
	for _, name := range cfg.Names {
		folded := normalizeName(name)
		re, err := regexp.Compile(strings.ReplaceAll(cfg.Template, NameMarker, folded))
		if err != nil {
			return nil, fmt.Errorf("%s pattern for %q: %w", category, name, err)
		}
		m.names = append(m.names, folded)
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

// findMatches scans the normalized text with every name pattern and keys
// the results by end offset. When two names produce matches sharing an end,
// the one starting earlier survives; a longer name that contains a shorter
// one as a suffix therefore wins no matter which was scanned first.
func (m *categoryMatcher) findMatches(searchText string) map[int]Match {
	found := make(map[int]Match)
	for i, re := range m.patterns {
		for _, loc := range re.FindAllStringIndex(searchText, -1) {
			candidate := Match{Start: loc[0], End: loc[1], Name: m.names[i]}
			if prev, ok := found[candidate.End]; ok && smallerStart(prev, candidate) {
				continue
			}
			found[candidate.End] = candidate
		}
	}
	return found
}
