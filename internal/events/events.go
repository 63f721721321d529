package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Type names a lifecycle event.
type Type string

const (
	EntrySaved       Type = "entry.saved"
	EntryPublished   Type = "entry.published"
	EntryTagged      Type = "entry.tagged"
	QueueRefreshed   Type = "queue.refreshed"
	ItemTransmitted  Type = "item.transmitted"
	ItemFailed       Type = "item.failed"
	EntityPropagated Type = "entity.propagated"
)

// Event is a single lifecycle notification.
type Event struct {
	ID      string    `json:"id"`
	Type    Type      `json:"type"`
	At      time.Time `json:"at"`
	QueueID int64     `json:"queue_id,omitempty"`
	EntryID int64     `json:"entry_id,omitempty"`
	ItemID  int64     `json:"item_id,omitempty"`
	Message string    `json:"message,omitempty"`
}

// New stamps an event with a fresh ID and the current time.
func New(t Type) Event {
	return Event{ID: uuid.NewString(), Type: t, At: time.Now().UTC()}
}

// Publisher delivers events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Noop discards events.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, Event) error { return nil }

// EventKey returns the Redis key for an event hash.
// Pattern: syndicate:{namespace}:event:{id}
func EventKey(namespace, id string) string {
	return fmt.Sprintf("syndicate:%s:event:%s", namespace, id)
}

// EventsChannel returns the Pub/Sub channel events are broadcast on.
// Pattern: syndicate:{namespace}:events
func EventsChannel(namespace string) string {
	return fmt.Sprintf("syndicate:%s:events", namespace)
}

func toHash(e Event) map[string]any {
	return map[string]any{
		"id":       e.ID,
		"type":     string(e.Type),
		"at":       e.At.UTC().Format(time.RFC3339Nano),
		"queue_id": strconv.FormatInt(e.QueueID, 10),
		"entry_id": strconv.FormatInt(e.EntryID, 10),
		"item_id":  strconv.FormatInt(e.ItemID, 10),
		"message":  e.Message,
	}
}

func fromHash(h map[string]string) (Event, error) {
	e := Event{ID: h["id"], Type: Type(h["type"]), Message: h["message"]}
	at, err := time.Parse(time.RFC3339Nano, h["at"])
	if err != nil {
		return Event{}, fmt.Errorf("parse event time: %w", err)
	}
	e.At = at
	for field, dst := range map[string]*int64{"queue_id": &e.QueueID, "entry_id": &e.EntryID, "item_id": &e.ItemID} {
		if raw := h[field]; raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return Event{}, fmt.Errorf("parse %s: %w", field, err)
			}
			*dst = v
		}
	}
	return e, nil
}
