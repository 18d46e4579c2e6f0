package threadsync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/dmsync/internal/models"
)

type countingReporter struct {
	nopReporter
	skipped chan models.FetchSource
	merged  chan MergeResult
}

func (r *countingReporter) Skipped(source models.FetchSource) {
	if r.skipped != nil {
		r.skipped <- source
	}
}

func (r *countingReporter) Merged(result MergeResult) {
	if r.merged != nil {
		r.merged <- result
	}
}

func TestPollerStartStop(t *testing.T) {
	p := NewPoller(PollerConfig{Interval: time.Hour}, "t1", NewEngine(), &fakeFetcher{}, nil)

	require.NoError(t, p.Start(context.Background()))
	require.True(t, p.IsRunning())
	require.ErrorIs(t, p.Start(context.Background()), ErrPollerAlreadyRunning)

	require.NoError(t, p.Stop())
	require.False(t, p.IsRunning())
	require.ErrorIs(t, p.Stop(), ErrPollerNotRunning)
	require.False(t, p.PollNow())
}

func TestPollerUsesNewestTimestamp(t *testing.T) {
	e := NewEngine()
	e.Seed([]models.Message{msg("a", 100)})

	reporter := &countingReporter{merged: make(chan MergeResult, 4)}
	fetcher := &fakeFetcher{
		newer: func(since int64) ([]models.Message, error) {
			return []models.Message{msg(fmt.Sprintf("n%d", since), since+100), msg("a", 100)}, nil
		},
	}
	p := NewPoller(PollerConfig{Interval: time.Hour}, "t1", e, fetcher, reporter)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.True(t, p.PollNow())
	result := <-reporter.merged
	require.Equal(t, 1, result.Admitted)
	require.Equal(t, 1, result.Duplicates)

	require.Eventually(t, func() bool { return !p.Fetching() }, time.Second, 5*time.Millisecond)
	require.True(t, p.PollNow())
	<-reporter.merged

	require.Equal(t, []int64{100, 200}, fetcher.sinces)
	require.Equal(t, int64(300), e.NewestTimestamp())
}

func TestPollerSkipsWhileInFlight(t *testing.T) {
	e := NewEngine()
	gate := make(chan struct{})
	started := make(chan struct{}, 1)
	reporter := &countingReporter{skipped: make(chan models.FetchSource, 4)}
	fetcher := &fakeFetcher{newerGate: gate, newerStart: started}

	p := NewPoller(PollerConfig{Interval: time.Hour}, "t1", e, fetcher, reporter)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.True(t, p.PollNow())
	<-started
	require.True(t, p.Fetching())
	require.False(t, p.PollNow())
	require.Equal(t, models.SourceNewer, <-reporter.skipped)

	close(gate)
	require.Eventually(t, func() bool { return !p.Fetching() }, time.Second, 5*time.Millisecond)

	newer, _ := fetcher.calls()
	require.Equal(t, 1, newer)
}

func TestPollerTicks(t *testing.T) {
	fetcher := &fakeFetcher{}
	p := NewPoller(PollerConfig{Interval: 10 * time.Millisecond}, "t1", NewEngine(), fetcher, nil)
	require.NoError(t, p.Start(context.Background()))

	require.Eventually(t, func() bool {
		newer, _ := fetcher.calls()
		return newer >= 2
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, p.Stop())
}

func TestPollerFailureLeavesWatermark(t *testing.T) {
	e := NewEngine()
	e.Seed([]models.Message{msg("a", 100)})

	fetcher := &fakeFetcher{
		newer: func(int64) ([]models.Message, error) { return nil, errors.New("timeout") },
	}
	p := NewPoller(PollerConfig{Interval: time.Hour}, "t1", e, fetcher, nil)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.True(t, p.PollNow())
	require.Eventually(t, func() bool {
		newer, _ := fetcher.calls()
		return newer == 1 && !p.Fetching()
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, int64(100), e.NewestTimestamp())
	require.Equal(t, uint64(1), e.Snapshot().Version)
}

func TestPollerStopWaitsForInFlightPoll(t *testing.T) {
	e := NewEngine()
	started := make(chan struct{}, 1)
	fetcher := &fakeFetcher{
		newerGate:  make(chan struct{}),
		newerStart: started,
		newer: func(int64) ([]models.Message, error) {
			return []models.Message{msg("late", 1)}, nil
		},
	}
	p := NewPoller(PollerConfig{Interval: time.Hour}, "t1", e, fetcher, nil)
	require.NoError(t, p.Start(context.Background()))

	require.True(t, p.PollNow())
	<-started
	require.NoError(t, p.Stop())

	require.False(t, p.Fetching())
	require.Equal(t, 0, e.Len())
}
