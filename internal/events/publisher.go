// Package events fans thread session notifications out to in-process
// listeners such as the thread view and the tail command.
package events

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/tOgg1/dmsync/internal/models"
)

// EventHandler receives one session event. It runs on the goroutine that
// published the event and must return quickly.
type EventHandler func(event *models.Event)

// Filter selects the events a subscriber sees. The zero Filter selects all.
type Filter struct {
	// EventTypes restricts delivery to these types when non-empty.
	EventTypes []models.EventType

	// ThreadID restricts delivery to one thread when set.
	ThreadID string
}

// Matches reports whether event passes the filter.
func (f *Filter) Matches(event *models.Event) bool {
	if event == nil {
		return false
	}
	if f.ThreadID != "" && event.ThreadID != f.ThreadID {
		return false
	}
	return len(f.EventTypes) == 0 || slices.Contains(f.EventTypes, event.Type)
}

// Publisher delivers session events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, event *models.Event)
	Subscribe(id string, filter Filter, handler EventHandler) error
	Unsubscribe(id string) error
}

var (
	ErrInvalidSubscriptionID = errors.New("subscription ID is required")
	ErrNilHandler            = errors.New("handler cannot be nil")
	ErrSubscriptionExists    = errors.New("subscription with this ID already exists")
	ErrSubscriptionNotFound  = errors.New("subscription not found")
)

type subscriber struct {
	filter  Filter
	handler EventHandler
}

// InMemoryPublisher is a Publisher for a single process. One is created per
// session unless several sessions share one.
type InMemoryPublisher struct {
	mu          sync.RWMutex
	subscribers map[string]subscriber
}

// NewInMemoryPublisher returns a publisher with no subscribers.
func NewInMemoryPublisher() *InMemoryPublisher {
	return &InMemoryPublisher{subscribers: make(map[string]subscriber)}
}

// Publish hands event to every matching subscriber. Handlers are called
// after the lock is released, so a handler may unsubscribe itself.
func (p *InMemoryPublisher) Publish(_ context.Context, event *models.Event) {
	if event == nil {
		return
	}

	p.mu.RLock()
	matched := make([]EventHandler, 0, len(p.subscribers))
	for _, sub := range p.subscribers {
		if sub.filter.Matches(event) {
			matched = append(matched, sub.handler)
		}
	}
	p.mu.RUnlock()

	for _, handler := range matched {
		handler(event)
	}
}

// Subscribe adds a subscriber under id. IDs must be unique.
func (p *InMemoryPublisher) Subscribe(id string, filter Filter, handler EventHandler) error {
	switch {
	case id == "":
		return ErrInvalidSubscriptionID
	case handler == nil:
		return ErrNilHandler
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, taken := p.subscribers[id]; taken {
		return ErrSubscriptionExists
	}
	p.subscribers[id] = subscriber{filter: filter, handler: handler}
	return nil
}

// Unsubscribe removes the subscriber registered under id.
func (p *InMemoryPublisher) Unsubscribe(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.subscribers[id]; !ok {
		return ErrSubscriptionNotFound
	}
	delete(p.subscribers, id)
	return nil
}

// SubscriberCount returns the number of subscribers.
func (p *InMemoryPublisher) SubscriberCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers)
}
