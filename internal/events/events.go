package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeIndexCompleted = "index.completed"
	TypeDayHydrated    = "day.hydrated"
)

// DefaultSubjectPrefix is prepended to every event type to form the subject.
const DefaultSubjectPrefix = "inboxindex."

// Event is one notification about finished mailbox work.
type Event struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Time time.Time       `json:"time"`
	Data json.RawMessage `json:"data"`
}

// New builds an event with a fresh id.
func New(eventType string, data any, now time.Time) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}
	return Event{
		ID:   uuid.NewString(),
		Type: eventType,
		Time: now.UTC(),
		Data: raw,
	}, nil
}

// IndexCompleted is the payload of an index.completed event.
type IndexCompleted struct {
	After   int64 `json:"after"`
	End     int64 `json:"end"`
	Windows int   `json:"windows"`
	Listed  int   `json:"listed"`
	Fetched int   `json:"fetched"`
	Flushed int   `json:"flushed"`
}

// DayHydrated is the payload of a day.hydrated event.
type DayHydrated struct {
	Day         string `json:"day"`
	Messages    int    `json:"messages"`
	FetchBodies bool   `json:"fetch_bodies"`
}

// Publisher delivers events. Delivery is at-most-once from the caller's
// point of view: a failed publish is reported, never retried.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close()
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() {}
