package threadsync

import (
	"context"
	"time"

	"github.com/tOgg1/dmsync/internal/models"
)

// NewerFetcher asks the conversation service for messages newer than a
// timestamp.
type NewerFetcher interface {
	NewMessages(ctx context.Context, threadID string, lastTimestamp int64) ([]models.Message, error)
}

// OlderFetcher asks the conversation service for the page of history that
// starts at cursor.
type OlderFetcher interface {
	OlderMessages(ctx context.Context, threadID string, cursor models.Cursor) (models.Page, error)
}

// Fetcher is everything a session needs from the conversation service.
type Fetcher interface {
	NewerFetcher
	OlderFetcher
}

// Reporter receives outcomes from the poller and pager. Calls arrive on the
// fetching goroutine.
type Reporter interface {
	// Merged is called after every merge, including no-op merges.
	Merged(result MergeResult)

	// Fetched is called when a fetch completes. err is nil on success.
	Fetched(source models.FetchSource, elapsed time.Duration, err error)

	// Skipped is called when a fetch was not started because one was in flight.
	Skipped(source models.FetchSource)

	// HistoryExhausted is called once, when the pager reaches its terminal state.
	HistoryExhausted()
}

type nopReporter struct{}

func (nopReporter) Merged(MergeResult)                                {}
func (nopReporter) Fetched(models.FetchSource, time.Duration, error) {}
func (nopReporter) Skipped(models.FetchSource)                        {}
func (nopReporter) HistoryExhausted()                                 {}
