package rules

import (
	"strings"

	"syndicate/internal/textutil"
)

// ParseRefineTags splits refine text into tag sets. Each double-quoted group
// is one set ("budget, tax" "gst"); text outside quotes forms one more set.
func ParseRefineTags(text string) [][]string {
	var (
		sets    [][]string
		outside strings.Builder
	)
	rest := text
	for {
		start := strings.IndexByte(rest, '"')
		if start < 0 {
			outside.WriteString(rest)
			break
		}
		outside.WriteString(rest[:start])
		end := strings.IndexByte(rest[start+1:], '"')
		if end < 0 {
			outside.WriteString(rest[start+1:])
			break
		}
		if set := textutil.SplitList(rest[start+1 : start+1+end]); len(set) > 0 {
			sets = append(sets, set)
		}
		rest = rest[start+1+end+1:]
	}
	if set := textutil.SplitList(outside.String()); len(set) > 0 {
		sets = append(sets, set)
	}
	return sets
}

// RefineMatch passes when there are no sets, or when every tag of at least
// one set is present.
func RefineMatch(sets [][]string, tags []string) bool {
	if len(sets) == 0 {
		return true
	}
	present := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		present[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	for _, set := range sets {
		all := true
		for _, tag := range set {
			if _, ok := present[tag]; !ok {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// KeywordFilter is the black/white list applied by keyword transmission queues.
type KeywordFilter struct {
	Black []string
	White []string
}

// NewKeywordFilter builds a filter from comma separated lists.
func NewKeywordFilter(black, white string) KeywordFilter {
	return KeywordFilter{Black: textutil.SplitList(black), White: textutil.SplitList(white)}
}

// Allows rejects candidates mentioning any black-listed keyword and, when a
// white list exists, requires at least one white-listed keyword.
func (f KeywordFilter) Allows(c Candidate) bool {
	mentions := func(word string) bool {
		return textutil.ContainsFold(c.Title, word) || textutil.ContainsFold(c.Body, word)
	}
	for _, word := range f.Black {
		if mentions(word) {
			return false
		}
	}
	if len(f.White) == 0 {
		return true
	}
	for _, word := range f.White {
		if mentions(word) {
			return true
		}
	}
	return false
}
