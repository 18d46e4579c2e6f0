package events

import (
	"context"
	"sync"
	"testing"

	"github.com/tOgg1/dmsync/internal/models"
)

func TestFilter_Matches(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		event  *models.Event
		want   bool
	}{
		{
			name:   "empty filter matches any event",
			filter: Filter{},
			event:  &models.Event{Type: models.EventTypeListChanged, ThreadID: "t1"},
			want:   true,
		},
		{
			name:   "nil event returns false",
			filter: Filter{},
			event:  nil,
			want:   false,
		},
		{
			name:   "event type filter matches",
			filter: Filter{EventTypes: []models.EventType{models.EventTypeListChanged}},
			event:  &models.Event{Type: models.EventTypeListChanged, ThreadID: "t1"},
			want:   true,
		},
		{
			name:   "event type filter rejects non-matching",
			filter: Filter{EventTypes: []models.EventType{models.EventTypeListChanged}},
			event:  &models.Event{Type: models.EventTypeFetchFailed, ThreadID: "t1"},
			want:   false,
		},
		{
			name: "multiple event types - matches any",
			filter: Filter{EventTypes: []models.EventType{
				models.EventTypeListChanged,
				models.EventTypeHistoryExhausted,
			}},
			event: &models.Event{Type: models.EventTypeHistoryExhausted, ThreadID: "t1"},
			want:  true,
		},
		{
			name:   "thread filter rejects other threads",
			filter: Filter{ThreadID: "t1"},
			event:  &models.Event{Type: models.EventTypeListChanged, ThreadID: "t2"},
			want:   false,
		},
		{
			name: "combined filters - all must match",
			filter: Filter{
				EventTypes: []models.EventType{models.EventTypeClosed},
				ThreadID:   "t1",
			},
			event: &models.Event{Type: models.EventTypeClosed, ThreadID: "t1"},
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.filter.Matches(tt.event)
			if got != tt.want {
				t.Errorf("Filter.Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInMemoryPublisher_Subscribe(t *testing.T) {
	pub := NewInMemoryPublisher()

	handler := func(event *models.Event) {}

	if err := pub.Subscribe("sub-1", Filter{}, handler); err != nil {
		t.Errorf("Subscribe() error = %v, want nil", err)
	}
	if pub.SubscriberCount() != 1 {
		t.Errorf("SubscriberCount() = %d, want 1", pub.SubscriberCount())
	}

	if err := pub.Subscribe("sub-1", Filter{}, handler); err != ErrSubscriptionExists {
		t.Errorf("Subscribe() duplicate error = %v, want %v", err, ErrSubscriptionExists)
	}
	if err := pub.Subscribe("", Filter{}, handler); err != ErrInvalidSubscriptionID {
		t.Errorf("Subscribe() empty ID error = %v, want %v", err, ErrInvalidSubscriptionID)
	}
	if err := pub.Subscribe("sub-2", Filter{}, nil); err != ErrNilHandler {
		t.Errorf("Subscribe() nil handler error = %v, want %v", err, ErrNilHandler)
	}
}

func TestInMemoryPublisher_Unsubscribe(t *testing.T) {
	pub := NewInMemoryPublisher()
	_ = pub.Subscribe("sub-1", Filter{}, func(event *models.Event) {})

	if err := pub.Unsubscribe("sub-1"); err != nil {
		t.Errorf("Unsubscribe() error = %v, want nil", err)
	}
	if pub.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", pub.SubscriberCount())
	}
	if err := pub.Unsubscribe("sub-1"); err != ErrSubscriptionNotFound {
		t.Errorf("Unsubscribe() non-existent error = %v, want %v", err, ErrSubscriptionNotFound)
	}
}

func TestInMemoryPublisher_PublishWithFilter(t *testing.T) {
	pub := NewInMemoryPublisher()
	ctx := context.Background()

	var t1Events, changes int
	var mu sync.Mutex

	_ = pub.Subscribe("thread-sub", Filter{ThreadID: "t1"}, func(event *models.Event) {
		mu.Lock()
		t1Events++
		mu.Unlock()
	})
	_ = pub.Subscribe("change-sub", Filter{
		EventTypes: []models.EventType{models.EventTypeListChanged},
	}, func(event *models.Event) {
		mu.Lock()
		changes++
		mu.Unlock()
	})

	pub.Publish(ctx, models.NewEvent(models.EventTypeListChanged, "t1", models.ListChangedPayload{Admitted: 2}))
	pub.Publish(ctx, models.NewEvent(models.EventTypeListChanged, "t2", nil))
	pub.Publish(ctx, models.NewEvent(models.EventTypeFetchFailed, "t1", nil))

	mu.Lock()
	defer mu.Unlock()
	if t1Events != 2 {
		t.Errorf("t1Events = %d, want 2", t1Events)
	}
	if changes != 2 {
		t.Errorf("changes = %d, want 2", changes)
	}
}

func TestInMemoryPublisher_PublishNilEvent(t *testing.T) {
	pub := NewInMemoryPublisher()

	called := false
	_ = pub.Subscribe("sub-1", Filter{}, func(event *models.Event) {
		called = true
	})

	pub.Publish(context.Background(), nil)

	if called {
		t.Error("handler was called for nil event")
	}
}

func TestInMemoryPublisher_HandlerMayUnsubscribe(t *testing.T) {
	pub := NewInMemoryPublisher()

	calls := 0
	_ = pub.Subscribe("once", Filter{}, func(event *models.Event) {
		calls++
		_ = pub.Unsubscribe("once")
	})

	pub.Publish(context.Background(), models.NewEvent(models.EventTypeClosed, "t1", nil))
	pub.Publish(context.Background(), models.NewEvent(models.EventTypeClosed, "t1", nil))

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestEventPayloadRoundTrip(t *testing.T) {
	event := models.NewEvent(models.EventTypeFetchFailed, "t1", models.FetchFailedPayload{
		Source: models.SourceNewer,
		Error:  "connection refused",
	})
	if event.ID == "" {
		t.Fatal("expected generated event ID")
	}

	var payload models.FetchFailedPayload
	if err := event.DecodePayload(&payload); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if payload.Source != models.SourceNewer || payload.Error != "connection refused" {
		t.Errorf("payload = %+v", payload)
	}
}
