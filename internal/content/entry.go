package content

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"syndicate/internal/textutil"
)

// Status is the publish state of an entry.
type Status int

const (
	StatusRejected      Status = -1
	StatusDraft         Status = 0
	StatusPendingReview Status = 1
	StatusPublished     Status = 2
)

var statusNames = map[Status]string{
	StatusRejected:      "rejected",
	StatusDraft:         "draft",
	StatusPendingReview: "pending",
	StatusPublished:     "published",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// ParseStatus accepts either the status name or its numeric code.
func ParseStatus(value string) (Status, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if n, err := strconv.Atoi(value); err == nil {
		if s := Status(n); s.Valid() {
			return s, nil
		}
		return 0, fmt.Errorf("unknown status %q", value)
	}
	for s, name := range statusNames {
		if name == value {
			return s, nil
		}
	}
	if value == "pending review" || value == "pending_review" {
		return StatusPendingReview, nil
	}
	return 0, fmt.Errorf("unknown status %q", value)
}

// Reason explains why an entry sits in its current status.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonTagFetchFailed
	ReasonWordCount
	ReasonDuplicate
	ReasonMergedWords
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonTagFetchFailed:
		return "tag fetch failed"
	case ReasonWordCount:
		return "word count"
	case ReasonDuplicate:
		return "duplicate"
	case ReasonMergedWords:
		return "merged words"
	default:
		return "reason(" + strconv.Itoa(int(r)) + ")"
	}
}

var (
	// ErrInvalidTransition is returned when an entry cannot move between two statuses.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrFuturePublish is returned when publishing an entry whose pub date lies ahead.
	ErrFuturePublish = errors.New("cannot publish an entry with a future pub date")
)

var transitions = map[Status][]Status{
	StatusDraft:         {StatusPendingReview, StatusPublished, StatusRejected},
	StatusPendingReview: {StatusDraft, StatusPublished, StatusRejected},
	StatusRejected:      {StatusDraft, StatusPendingReview},
	StatusPublished:     {StatusPendingReview, StatusRejected},
}

// CanTransition reports whether an entry may move from one status to another.
func CanTransition(from, to Status) bool {
	if from == to {
		return from.Valid()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Entry is an editorial news article.
type Entry struct {
	ID            int64
	PublicationID int64
	Title         string
	SubTitle      string
	Slug          string
	Body          string
	Excerpt       string
	ByLine        string
	CreditLine    string
	Location      string
	Keywords      string
	Tags          []string
	Status        Status
	Reason        Reason
	PubDate       time.Time
	CreatedOn     time.Time
	ModifiedOn    time.Time
	ApprovedOn    *time.Time
	ApprovedBy    string
	ExcludeBuyers []int64
}

// Live reports whether the entry is published.
func (e *Entry) Live() bool {
	return e != nil && e.Status == StatusPublished
}

// ValidatePublish rejects publishing entries dated in the future.
func (e *Entry) ValidatePublish(now time.Time) error {
	if e.Status != StatusPublished {
		return nil
	}
	if e.PubDate.After(now) {
		return fmt.Errorf("%w: pub date %s", ErrFuturePublish, e.PubDate.Format(time.RFC3339))
	}
	return nil
}

// ApplyMergedWordCheck forces the entry into pending review when its body
// contains two dictionary words glued together ("worldcup"). A stale
// merged-words reason is cleared once the body is fixed. It returns the
// offending token, if any.
func (e *Entry) ApplyMergedWordCheck(dictionary []string) string {
	match := FindMergedWord(e.Body, dictionary)
	if match != "" {
		e.Status = StatusPendingReview
		e.Reason = ReasonMergedWords
		return match
	}
	if e.Reason == ReasonMergedWords {
		e.Reason = ReasonNone
	}
	return ""
}

// FindMergedWord returns the first body token that is the concatenation of
// two dictionary words.
func FindMergedWord(body string, dictionary []string) string {
	if len(dictionary) == 0 {
		return ""
	}
	words := make(map[string]struct{}, len(dictionary))
	for _, w := range dictionary {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			words[w] = struct{}{}
		}
	}
	for _, token := range strings.FieldsFunc(strings.ToLower(body), isTokenSeparator) {
		for i := 1; i < len(token); i++ {
			_, left := words[token[:i]]
			_, right := words[token[i:]]
			if left && right {
				return token
			}
		}
	}
	return ""
}

func isTokenSeparator(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
}

// Credit returns the credit line shown in exports, falling back to the
// publication copyright and then to the account default.
func (e *Entry) Credit(pub Publication, account Account, year int, company string) string {
	if line := strings.TrimSpace(e.CreditLine); line != "" {
		return line
	}
	if line := strings.TrimSpace(pub.Copyright); line != "" {
		return line
	}
	return account.Copyright(year, company)
}

// WordCount returns the number of words in the body.
func (e *Entry) WordCount() int {
	return textutil.WordCount(e.Body)
}

// EnsureSlug fills an empty slug from the title.
func (e *Entry) EnsureSlug() {
	if strings.TrimSpace(e.Slug) == "" {
		e.Slug = textutil.Slugify(e.Title)
	}
}

// ExcludesBuyer reports whether the buyer is on the entry's exclusion list.
func (e *Entry) ExcludesBuyer(buyerID int64) bool {
	for _, id := range e.ExcludeBuyers {
		if id == buyerID {
			return true
		}
	}
	return false
}

// NormalizeTags lowercases, trims, and de-duplicates tags keeping first-seen order.
func NormalizeTags(tags []string) []string {
	return textutil.SplitList(strings.Join(tags, ","))
}
