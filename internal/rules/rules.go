package rules

import (
	"fmt"
	"strings"
	"time"

	"syndicate/internal/textutil"
)

// Kind selects how a TagRule's value is applied.
type Kind string

const (
	KindAll     Kind = "A"
	KindAny     Kind = "F"
	KindExclude Kind = "E"
	KindSearch  Kind = "S"
)

// ParseKind accepts the single-letter code or the spelled-out name.
func ParseKind(value string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "a", "all":
		return KindAll, nil
	case "f", "any":
		return KindAny, nil
	case "e", "exclude":
		return KindExclude, nil
	case "s", "search":
		return KindSearch, nil
	default:
		return "", fmt.Errorf("unknown rule kind %q", value)
	}
}

// QType distinguishes internal editorial Qs from buyer-facing ones.
type QType string

const (
	QInternal QType = "I"
	QExternal QType = "E"
)

// AllowedItemsAge lists the accepted look-back windows, in days.
var AllowedItemsAge = []int{1, 7, 30, 90, 180}

// DefaultItemsAge is used when a Q does not specify a window.
const DefaultItemsAge = 7

// TagRule is one clause of a Q.
type TagRule struct {
	ID    int64
	QID   int64
	Kind  Kind
	Value string
}

// Tags returns the normalised tag list for the rule.
func (r TagRule) Tags() []string {
	return textutil.SplitList(r.Value)
}

// Q is a saved filter selecting entries by tags, text, and age.
type Q struct {
	ID                   int64
	Title                string
	Slug                 string
	Type                 QType
	ItemsAge             int
	PublishedNoLaterThan *time.Time
	Rules                []TagRule
}

// Candidate is the view of an entry the rule engine needs.
type Candidate struct {
	Title string
	Body  string
	Tags  []string
}

// ValidateItemsAge rejects windows outside AllowedItemsAge.
func ValidateItemsAge(days int) error {
	for _, allowed := range AllowedItemsAge {
		if days == allowed {
			return nil
		}
	}
	return fmt.Errorf("items age %d not in %v", days, AllowedItemsAge)
}

// Cutoff returns the oldest pub date the Q accepts: the later of the items
// age window and the published-no-later-than floor.
func (q *Q) Cutoff(now time.Time) time.Time {
	age := q.ItemsAge
	if age <= 0 {
		age = DefaultItemsAge
	}
	cutoff := now.AddDate(0, 0, -age)
	if q.PublishedNoLaterThan != nil && q.PublishedNoLaterThan.After(cutoff) {
		cutoff = *q.PublishedNoLaterThan
	}
	return cutoff
}

// Matches evaluates the Q's rules against a candidate.
func (q *Q) Matches(c Candidate) bool {
	tags := make(map[string]struct{}, len(c.Tags))
	for _, t := range c.Tags {
		tags[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	has := func(tag string) bool {
		_, ok := tags[tag]
		return ok
	}

	positive := false
	var anyTags []string
	for _, rule := range q.Rules {
		switch rule.Kind {
		case KindAll:
			ruleTags := rule.Tags()
			if len(ruleTags) == 0 {
				continue
			}
			positive = true
			for _, tag := range ruleTags {
				if !has(tag) {
					return false
				}
			}
		case KindAny:
			if ruleTags := rule.Tags(); len(ruleTags) > 0 {
				positive = true
				anyTags = append(anyTags, ruleTags...)
			}
		case KindExclude:
			for _, tag := range rule.Tags() {
				if has(tag) {
					return false
				}
			}
		case KindSearch:
			phrase := strings.TrimSpace(rule.Value)
			if phrase == "" {
				continue
			}
			positive = true
			if !searchMatch(c, phrase) {
				return false
			}
		}
	}
	if !positive {
		return false
	}
	if len(anyTags) > 0 {
		found := false
		for _, tag := range anyTags {
			if has(tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Accepts combines Matches with the Q's age cutoff.
func (q *Q) Accepts(c Candidate, pubDate, now time.Time) bool {
	if pubDate.Before(q.Cutoff(now)) {
		return false
	}
	return q.Matches(c)
}

func searchMatch(c Candidate, phrase string) bool {
	if textutil.ContainsFold(c.Title, phrase) || textutil.ContainsFold(c.Body, phrase) {
		return true
	}
	for _, tag := range c.Tags {
		if textutil.ContainsFold(tag, phrase) {
			return true
		}
	}
	return false
}
