package threadsync

import (
	"context"
	"sync"

	"github.com/tOgg1/dmsync/internal/models"
)

// fakeFetcher serves canned responses. When a gate is set the matching
// request blocks until the gate is closed or the request is cancelled.
type fakeFetcher struct {
	mu         sync.Mutex
	newerCalls int
	olderCalls int
	sinces     []int64
	cursors    []models.Cursor

	newer      func(since int64) ([]models.Message, error)
	older      func(cursor models.Cursor) (models.Page, error)
	newerGate  chan struct{}
	olderGate  chan struct{}
	newerStart chan struct{}
	olderStart chan struct{}
}

func (f *fakeFetcher) NewMessages(ctx context.Context, threadID string, since int64) ([]models.Message, error) {
	f.mu.Lock()
	f.newerCalls++
	f.sinces = append(f.sinces, since)
	gate, started, respond := f.newerGate, f.newerStart, f.newer
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if respond == nil {
		return nil, nil
	}
	return respond(since)
}

func (f *fakeFetcher) OlderMessages(ctx context.Context, threadID string, cursor models.Cursor) (models.Page, error) {
	f.mu.Lock()
	f.olderCalls++
	f.cursors = append(f.cursors, cursor)
	gate, started, respond := f.olderGate, f.olderStart, f.older
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.Page{}, ctx.Err()
		}
	}
	if respond == nil {
		return models.Page{MoreAvailable: false}, nil
	}
	return respond(cursor)
}

func (f *fakeFetcher) calls() (newer, older int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.newerCalls, f.olderCalls
}
