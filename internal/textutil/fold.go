package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var caseFolder = cases.Fold()

// FoldASCII strips accents and drops characters outside the ASCII range.
func FoldASCII(value string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, value)
	if err != nil {
		folded = value
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeTitle folds a headline for equality comparison: ASCII only,
// case-folded, and with whitespace runs collapsed.
func NormalizeTitle(title string) string {
	folded := caseFolder.String(FoldASCII(title))
	return strings.Join(strings.Fields(folded), " ")
}

// ContainsFold reports whether needle occurs in haystack ignoring case and accents.
func ContainsFold(haystack, needle string) bool {
	needle = NormalizeTitle(needle)
	if needle == "" {
		return false
	}
	return strings.Contains(NormalizeTitle(haystack), needle)
}

// Slugify converts a title into a lowercase hyphen separated slug.
func Slugify(title string) string {
	folded := strings.ToLower(FoldASCII(title))
	var b strings.Builder
	dash := false
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case r == '\'':
		default:
			if b.Len() > 0 && !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// SplitList splits a comma separated list, trimming and lowercasing each
// value, dropping blanks and duplicates while keeping first-seen order.
func SplitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		item := strings.ToLower(strings.TrimSpace(part))
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

// WordCount returns the number of whitespace separated words.
func WordCount(value string) int {
	return len(strings.Fields(value))
}
