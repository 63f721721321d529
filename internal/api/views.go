package api

import (
	"time"

	"syndicate/internal/content"
	"syndicate/internal/entity"
	"syndicate/internal/transmission"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// FromQueue converts a transmission queue; buyer is the owning account slug.
func FromQueue(q transmission.Queue, buyer string) Queue {
	return Queue{
		ID:              q.ID,
		Title:           q.Title,
		Slug:            q.Slug,
		Buyer:           buyer,
		Kind:            string(q.Kind),
		LoadFrequency:   q.LoadFrequency,
		AutoSchedule:    q.AutoSchedule,
		Active:          q.Active,
		Publications:    q.SubPublications,
		Qs:              q.Qs,
		UpdatedOn:       formatTimePtr(q.UpdatedOn),
		LastRunOn:       formatTimePtr(q.LastRunOn),
		LastTransmitted: formatTimePtr(q.LastTransmittedOn),
		XMLFormat:       q.XMLFormat,
		StripImages:     q.StripImages,
		FilePerPub:      q.FilePerPublication,
		FilePerIndustry: q.FilePerIndustry,
	}
}

// FromItem converts a queue item. entry and pub may be nil when the
// referenced rows are gone.
func FromItem(it transmission.Item, entry *content.Entry, pub *content.Publication) Item {
	out := Item{
		ID:             it.ID,
		QueueID:        it.QueueID,
		EntryID:        it.EntryID,
		QID:            it.QID,
		Action:         string(it.Action),
		ActionName:     it.Action.Name(),
		TransmissionID: it.TransmissionID,
		Error:          it.Error,
		CreatedOn:      formatTime(it.CreatedOn),
		ScheduledOn:    formatTimePtr(it.ScheduledOn),
		TransmittedOn:  formatTimePtr(it.TransmittedOn),
	}
	if entry != nil {
		out.Title = entry.Title
	}
	if pub != nil {
		out.Publication = pub.Slug
	}
	return out
}

// FromEntry converts an editorial entry.
func FromEntry(e content.Entry, pub *content.Publication) Entry {
	out := Entry{
		ID:         e.ID,
		Title:      e.Title,
		SubTitle:   e.SubTitle,
		Slug:       e.Slug,
		ByLine:     e.ByLine,
		Status:     e.Status.String(),
		Tags:       e.Tags,
		PubDate:    formatTime(e.PubDate),
		ApprovedBy: e.ApprovedBy,
		ApprovedOn: formatTimePtr(e.ApprovedOn),
	}
	if e.Reason != content.ReasonNone {
		out.Reason = e.Reason.String()
	}
	if pub != nil {
		out.Publication = pub.Slug
	}
	return out
}

// FromDisplayGroups converts grouped entity names.
func FromDisplayGroups(groups []entity.DisplayGroup) []EntityGroup {
	out := make([]EntityGroup, 0, len(groups))
	for _, g := range groups {
		out = append(out, EntityGroup{Type: g.Type, Names: g.Names})
	}
	return out
}

// FromRefreshResult converts a refresh summary.
func FromRefreshResult(r transmission.RefreshResult) RefreshResponse {
	return RefreshResponse{
		QueueID:    r.QueueID,
		Direct:     r.Direct,
		FromQs:     r.FromQs,
		Duplicates: r.Duplicates,
		Filtered:   r.Filtered,
	}
}

// FromTransmitResult converts a transmission summary.
func FromTransmitResult(r transmission.TransmitResult) TransmitResponse {
	return TransmitResponse{
		QueueID: r.QueueID,
		BatchID: r.BatchID,
		Sent:    r.Sent,
		Failed:  r.Failed,
		Files:   r.Files,
	}
}
