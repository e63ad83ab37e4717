package placenames

import (
	"regexp"
	"sort"
)

// Category labels which reference list a replacement came from.
type Category string

const (
	// CategoryCity marks municipality-level matches.
	CategoryCity Category = "city"
	// CategoryEstate marks state-level matches.
	CategoryEstate Category = "estate"
)

// Replacement is a resolved span to redact, tagged with the category whose
// placeholder applies.
type Replacement struct {
	Start    int
	End      int
	Category Category
}

// resolve merges the two per-category match sets into one ordered
// replacement list. End offsets present in both sets are ties the two
// categories dispute; everything else carries over unchanged. The output
// is stably sorted by start, cities before estates when spans coincide.
func resolve(cities, estates map[int]Match, searchText string) []Replacement {
	out := make([]Replacement, 0, len(cities)+len(estates))

	for _, end := range sortedEnds(cities) {
		if _, disputed := estates[end]; !disputed {
			c := cities[end]
			out = append(out, Replacement{Start: c.Start, End: c.End, Category: CategoryCity})
		}
	}
	for _, end := range sortedEnds(estates) {
		if _, disputed := cities[end]; !disputed {
			e := estates[end]
			out = append(out, Replacement{Start: e.Start, End: e.End, Category: CategoryEstate})
		}
	}
	for _, end := range sortedEnds(cities) {
		if e, disputed := estates[end]; disputed {
			out = append(out, resolveTie(cities[end], e, searchText))
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// resolveTie decides a shared end offset between a city match and an
// estate match. A strictly smaller start means the other category's name
// is a contained suffix of this one, so the longer span's category wins.
// Identical spans are names that are both a known city and a known state;
// the only remaining signal is which administrative listing cue,
// "municipios de ..." or "estados de ...", starts nearer the match in the
// preceding text. Neither cue present resolves to estate.
func resolveTie(city, estate Match, searchText string) Replacement {
	switch {
	case smallerStart(city, estate):
		return Replacement{Start: city.Start, End: city.End, Category: CategoryCity}
	case smallerStart(estate, city):
		return Replacement{Start: estate.Start, End: estate.End, Category: CategoryEstate}
	}

	window := searchText[:city.End]
	cityCue := contextPos(`[mM]unicipios de .*? `, city.Name, window)
	estateCue := contextPos(`[eE]stados de .*? `, city.Name, window)
	if cityCue > estateCue {
		return Replacement{Start: city.Start, End: city.End, Category: CategoryCity}
	}
	return Replacement{Start: estate.Start, End: estate.End, Category: CategoryEstate}
}

// contextPos returns the start offset of the first occurrence of
// cue+name in the window, or -1 when absent or uncompilable.
func contextPos(cue, name, window string) int {
	re, err := regexp.Compile(cue + name)
	if err != nil {
		return -1
	}
	loc := re.FindStringIndex(window)
	if loc == nil {
		return -1
	}
	return loc[0]
}

func sortedEnds(matches map[int]Match) []int {
	ends := make([]int, 0, len(matches))
	for end := range matches {
		ends = append(ends, end)
	}
	sort.Ints(ends)
	return ends
}
