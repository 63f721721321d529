package transmission

import (
	"fmt"
	"strings"
	"time"

	"syndicate/internal/content"
	"syndicate/internal/services"
)

// Action is the delivery state of a transmission queue item.
type Action string

const (
	ActionPending     Action = "P"
	ActionIgnored     Action = "I"
	ActionScheduled   Action = "S"
	ActionCreated     Action = "C"
	ActionTransmitted Action = "T"
	ActionFailed      Action = "F"
)

var actionNames = map[Action]string{
	ActionPending:     "pending",
	ActionIgnored:     "ignored",
	ActionScheduled:   "scheduled",
	ActionCreated:     "created",
	ActionTransmitted: "transmitted",
	ActionFailed:      "failed",
}

// AllActions lists actions in display order.
var AllActions = []Action{ActionPending, ActionIgnored, ActionScheduled, ActionCreated, ActionTransmitted, ActionFailed}

// Name returns the human readable action label.
func (a Action) Name() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return string(a)
}

// ParseAction accepts the single-letter code or the spelled-out name.
func ParseAction(value string) (Action, error) {
	trimmed := strings.TrimSpace(value)
	if a := Action(strings.ToUpper(trimmed)); actionNames[a] != "" {
		return a, nil
	}
	lower := strings.ToLower(trimmed)
	for a, name := range actionNames {
		if name == lower {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", value)
}

// Kind distinguishes keyword queues, which filter by black/white lists and
// are skipped by publish-time fan-out.
type Kind string

const (
	KindStandard Kind = "standard"
	KindKeyword  Kind = "keyword"
)

// Queue is a buyer's subscription.
type Queue struct {
	ID                  int64
	Title               string
	Slug                string
	BuyerID             int64
	LoadFrequency       string
	AutoSchedule        bool
	SubPublications     []int64
	Qs                  []int64
	FilterPublications  []int64
	RefineTags          string
	OverrideLastUpdated bool
	UpdatedOn           *time.Time
	LastRunOn           *time.Time // last refresh; the load-frequency schedule reads it
	LastTransmittedOn   *time.Time
	StripImages         bool
	FilePerPublication  bool
	FilePerIndustry     bool
	Active              bool
	Kind                Kind
	BlackList           string
	WhiteList           string
	XMLFormat           string
}

// DefaultAction is the action given to entries added without an explicit one.
func (q *Queue) DefaultAction() Action {
	if q.AutoSchedule {
		return ActionScheduled
	}
	return ActionPending
}

// SubscribesTo reports whether the queue pulls the publication directly.
func (q *Queue) SubscribesTo(publicationID int64) bool {
	return containsID(q.SubPublications, publicationID)
}

// Item is one (queue, entry) membership.
type Item struct {
	ID             int64
	QueueID        int64
	EntryID        int64
	QID            *int64
	PublicationID  int64
	Action         Action
	XMLFormat      string
	TransmissionID string
	Error          string
	CreatedOn      time.Time
	ScheduledOn    *time.Time
	TransmittedOn  *time.Time
}

// TransmissionID builds the identifier written into exported documents.
func TransmissionID(queueSlug, publicationSlug, title string, entryID int64) string {
	return fmt.Sprintf("[%s] [%s]: %s_%d", strings.ToUpper(queueSlug), strings.ToUpper(publicationSlug), title, entryID)
}

// NormalizeManualAction coerces any action other than Pending or Scheduled to Pending.
func NormalizeManualAction(a Action) Action {
	if a == ActionScheduled {
		return ActionScheduled
	}
	return ActionPending
}

// StartOfDay truncates t to midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// ItemFilter narrows item listings.
type ItemFilter struct {
	QueueID   int64
	Actions   []Action
	EntryIDs  []int64
	Limit     int
	CreatedOn *DateRange
}

// DateRange is an inclusive-from, exclusive-to window.
type DateRange struct {
	From time.Time
	To   time.Time
}

// DateField picks which timestamp a status count range applies to.
type DateField string

const (
	DateCreated   DateField = "created"
	DatePublished DateField = "published"
)

// CountFilter narrows status counts.
type CountFilter struct {
	QueueID int64
	Range   *DateRange
	Field   DateField
}

// NormalizeCountFilter defaults the date field and rejects unknown fields
// and empty ranges.
func NormalizeCountFilter(filter CountFilter) (CountFilter, error) {
	if filter.Field == "" {
		filter.Field = DateCreated
	}
	if filter.Field != DateCreated && filter.Field != DatePublished {
		return filter, fmt.Errorf("%w: unknown date field %q", services.ErrValidation, filter.Field)
	}
	if filter.Range != nil && !filter.Range.To.After(filter.Range.From) {
		return filter, fmt.Errorf("%w: empty date range", services.ErrValidation)
	}
	return filter, nil
}

// ParseCountFilter builds a filter from report arguments. from and to are
// calendar days (YYYY-MM-DD) in loc and must be given together; to is
// inclusive.
func ParseCountFilter(queueID int64, field, from, to string, loc *time.Location) (CountFilter, error) {
	filter := CountFilter{QueueID: queueID, Field: DateField(strings.TrimSpace(field))}
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from != "" || to != "" {
		if from == "" || to == "" {
			return filter, fmt.Errorf("%w: from and to must be given together", services.ErrValidation)
		}
		start, err := time.ParseInLocation(time.DateOnly, from, loc)
		if err != nil {
			return filter, fmt.Errorf("%w: invalid from date %q", services.ErrValidation, from)
		}
		end, err := time.ParseInLocation(time.DateOnly, to, loc)
		if err != nil {
			return filter, fmt.Errorf("%w: invalid to date %q", services.ErrValidation, to)
		}
		filter.Range = &DateRange{From: start, To: end.AddDate(0, 0, 1)}
	}
	return NormalizeCountFilter(filter)
}

// StatusCount is one row of the status report.
type StatusCount struct {
	PublicationID int64
	Action        Action
	Count         int
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// LocationKind is the transport of an upload location.
type LocationKind string

const (
	LocationFTP   LocationKind = "F"
	LocationOther LocationKind = "O"
)

// UploadLocation is a delivery target attached to a queue.
type UploadLocation struct {
	ID       int64
	QueueID  int64
	Kind     LocationKind
	Location string
	Active   bool
}

// QueueFilter narrows transmission queue listings.
type QueueFilter struct {
	BuyerID    int64
	ActiveOnly bool
	Kind       Kind
}

// QEntry is a published entry together with the Qs it belongs to.
type QEntry struct {
	Entry content.Entry
	QIDs  []int64
}
