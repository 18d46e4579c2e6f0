package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType categorizes events emitted by a thread session.
type EventType string

const (
	// EventTypeListChanged fires after any merge that mutated the canonical list.
	EventTypeListChanged EventType = "thread.list_changed"

	// EventTypeIntegrityViolation fires when a fetched batch contained
	// malformed messages.
	EventTypeIntegrityViolation EventType = "thread.integrity_violation"

	// EventTypeFetchFailed fires when a poll or page request failed.
	EventTypeFetchFailed EventType = "thread.fetch_failed"

	// EventTypeHistoryExhausted fires once, when the service reports there is
	// no older history.
	EventTypeHistoryExhausted EventType = "thread.history_exhausted"

	// EventTypeClosed fires when the session is torn down.
	EventTypeClosed EventType = "thread.closed"
)

// FetchSource identifies which path produced a batch.
type FetchSource string

const (
	SourceSnapshot FetchSource = "snapshot"
	SourceNewer    FetchSource = "newer"
	SourceOlder    FetchSource = "older"
)

// Event is a notification about a thread session.
type Event struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// ThreadID is the thread the event relates to.
	ThreadID string `json:"thread_id"`

	// Payload contains event-specific data.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Metadata contains additional context.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewEvent builds an event with a fresh ID and the payload encoded as JSON.
func NewEvent(eventType EventType, threadID string, payload any) *Event {
	event := &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		ThreadID:  threadID,
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			event.Payload = data
		}
	}
	return event
}

// DecodePayload unmarshals the event payload into v.
func (e *Event) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// ListChangedPayload is the payload for thread.list_changed events.
type ListChangedPayload struct {
	Source     FetchSource `json:"source"`
	Admitted   int         `json:"admitted"`
	Duplicates int         `json:"duplicates"`
	Version    uint64      `json:"version"`
	Size       int         `json:"size"`
}

// RejectedItem describes one message refused by the sync engine.
type RejectedItem struct {
	Index  int    `json:"index"`
	ItemID string `json:"item_id,omitempty"`
	Error  string `json:"error"`
}

// MalformedPayload is the payload for thread.integrity_violation events.
type MalformedPayload struct {
	Source   FetchSource    `json:"source"`
	Rejected []RejectedItem `json:"rejected"`
}

// FetchFailedPayload is the payload for thread.fetch_failed events.
type FetchFailedPayload struct {
	Source FetchSource `json:"source"`
	Error  string      `json:"error"`
}

// HistoryExhaustedPayload is the payload for thread.history_exhausted events.
type HistoryExhaustedPayload struct {
	Size int `json:"size"`
}
