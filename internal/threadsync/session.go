package threadsync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/dmsync/internal/events"
	"github.com/tOgg1/dmsync/internal/logging"
	"github.com/tOgg1/dmsync/internal/metrics"
	"github.com/tOgg1/dmsync/internal/models"
)

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = errors.New("session closed")

// LoadingState reports which fetches are in flight.
type LoadingState struct {
	Older bool
	Newer bool
}

// Options configures a Session.
type Options struct {
	PollInterval time.Duration
	FetchTimeout time.Duration

	// Publisher receives the session's events. A private publisher is
	// created when nil.
	Publisher events.Publisher

	// Metrics records sync counters. Nil disables metrics.
	Metrics *metrics.Metrics
}

// Option mutates Options.
type Option func(*Options)

// WithPollInterval sets how often the session polls for new messages.
func WithPollInterval(d time.Duration) Option {
	return func(o *Options) { o.PollInterval = d }
}

// WithFetchTimeout bounds each request to the conversation service.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *Options) { o.FetchTimeout = d }
}

// WithPublisher shares a publisher between sessions.
func WithPublisher(p events.Publisher) Option {
	return func(o *Options) { o.Publisher = p }
}

// WithMetrics enables Prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// Session is the lifetime of one open thread view. It owns the engine, the
// forward poller and the backward pager for the thread.
type Session struct {
	thread    models.Thread
	engine    *Engine
	poller    *Poller
	pager     *Pager
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	// seed is the result of merging the opening snapshot. Its events are
	// published before any caller can subscribe.
	seed MergeResult

	closed atomic.Bool
}

// Open seeds a session from a thread snapshot and starts polling. The first
// poll happens one poll interval after Open returns.
func Open(ctx context.Context, thread models.Thread, fetcher Fetcher, opts ...Option) (*Session, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if err := models.ValidateThread(thread); err != nil {
		return nil, fmt.Errorf("invalid thread: %w", err)
	}

	options := Options{
		PollInterval: DefaultPollerConfig().Interval,
		FetchTimeout: DefaultPollerConfig().FetchTimeout,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Publisher == nil {
		options.Publisher = events.NewInMemoryPublisher()
	}

	header := thread
	header.Items = nil

	s := &Session{
		thread:    header,
		engine:    NewEngine(),
		publisher: options.Publisher,
		metrics:   options.Metrics,
		logger:    logging.WithThread("session", thread.ThreadID),
	}

	reporter := sessionReporter{s: s}
	s.seed = s.engine.Seed(thread.Items)
	reporter.Merged(s.seed)

	s.pager = NewPager(PagerConfig{FetchTimeout: options.FetchTimeout}, thread.ThreadID, s.engine, fetcher, reporter)
	s.poller = NewPoller(PollerConfig{
		Interval:     options.PollInterval,
		FetchTimeout: options.FetchTimeout,
	}, thread.ThreadID, s.engine, fetcher, reporter)

	if err := s.poller.Start(ctx); err != nil {
		s.pager.Stop()
		return nil, fmt.Errorf("start poller: %w", err)
	}

	s.logger.Info().
		Int("seeded", s.engine.Len()).
		Dur("poll_interval", options.PollInterval).
		Msg("thread session opened")
	return s, nil
}

// ThreadID returns the thread the session follows.
func (s *Session) ThreadID() string {
	return s.thread.ThreadID
}

// Thread returns the thread header: participants without items.
func (s *Session) Thread() models.Thread {
	return s.thread
}

// SeedResult reports how the opening snapshot was merged, including any
// malformed items that were rejected.
func (s *Session) SeedResult() MergeResult {
	result := s.seed
	result.Rejected = append([]Rejection(nil), s.seed.Rejected...)
	return result
}

// Snapshot returns a copy of the canonical list and watermark.
func (s *Session) Snapshot() Snapshot {
	return s.engine.Snapshot()
}

// Messages returns a copy of the canonical list, newest first.
func (s *Session) Messages() []models.Message {
	return s.engine.Snapshot().Messages
}

// LoadMore is called when the reader reaches the oldest loaded message. It
// starts loading the next older page and returns false when that was a no-op.
func (s *Session) LoadMore() bool {
	if s.closed.Load() {
		return false
	}
	return s.pager.Trigger()
}

// LoadOlder loads the next older page synchronously.
func (s *Session) LoadOlder(ctx context.Context) (MergeResult, error) {
	if s.closed.Load() {
		return MergeResult{Source: models.SourceOlder}, ErrSessionClosed
	}
	return s.pager.LoadOlder(ctx)
}

// Refresh polls for new messages now instead of waiting for the next tick.
func (s *Session) Refresh() bool {
	if s.closed.Load() {
		return false
	}
	return s.poller.PollNow()
}

// Loading reports which fetches are in flight.
func (s *Session) Loading() LoadingState {
	return LoadingState{
		Older: s.pager.Fetching(),
		Newer: s.poller.Fetching(),
	}
}

// Exhausted reports whether the start of history has been reached.
func (s *Session) Exhausted() bool {
	return !s.engine.MoreAvailable()
}

// Subscribe registers handler for this thread's events. filter.ThreadID is
// forced to the session's thread. Handlers run on fetch goroutines; they
// must not block or call Close.
func (s *Session) Subscribe(id string, filter events.Filter, handler events.EventHandler) error {
	filter.ThreadID = s.thread.ThreadID
	return s.publisher.Subscribe(id, filter, handler)
}

// Unsubscribe removes a subscription.
func (s *Session) Unsubscribe(id string) error {
	return s.publisher.Unsubscribe(id)
}

// Close stops polling and paging, waits for in-flight requests and discards
// their responses. Close is idempotent.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.engine.Close()
	if err := s.poller.Stop(); err != nil && !errors.Is(err, ErrPollerNotRunning) {
		s.logger.Warn().Err(err).Msg("failed to stop poller")
	}
	s.pager.Stop()
	s.metrics.ForgetThread(s.thread.ThreadID)

	s.publish(models.EventTypeClosed, nil)
	s.logger.Info().Msg("thread session closed")
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

func (s *Session) publish(eventType models.EventType, payload any) {
	s.publisher.Publish(context.Background(), models.NewEvent(eventType, s.thread.ThreadID, payload))
}

// sessionReporter turns poller and pager outcomes into metrics and events.
type sessionReporter struct {
	s *Session
}

func (r sessionReporter) Merged(result MergeResult) {
	s := r.s
	if s.closed.Load() {
		s.logger.Debug().Str("source", string(result.Source)).Msg("dropping merge result after close")
		return
	}

	s.metrics.ObserveMerge(string(result.Source), result.Admitted, result.Duplicates, len(result.Rejected))

	if len(result.Rejected) > 0 {
		rejected := make([]models.RejectedItem, 0, len(result.Rejected))
		for _, rej := range result.Rejected {
			rejected = append(rejected, models.RejectedItem{
				Index:  rej.Index,
				ItemID: rej.ItemID,
				Error:  rej.Err.Error(),
			})
			s.logger.Warn().
				Err(rej.Err).
				Str("source", string(result.Source)).
				Int("index", rej.Index).
				Str("item_id", rej.ItemID).
				Msg("rejected malformed message")
		}
		s.publish(models.EventTypeIntegrityViolation, models.MalformedPayload{
			Source:   result.Source,
			Rejected: rejected,
		})
	}

	if result.Changed {
		s.metrics.SetListSize(s.thread.ThreadID, result.Size)
		s.publish(models.EventTypeListChanged, models.ListChangedPayload{
			Source:     result.Source,
			Admitted:   result.Admitted,
			Duplicates: result.Duplicates,
			Version:    result.Version,
			Size:       result.Size,
		})
	}
}

func (r sessionReporter) Fetched(source models.FetchSource, elapsed time.Duration, err error) {
	s := r.s
	if s.closed.Load() {
		return
	}
	s.metrics.ObserveFetch(string(source), elapsed, err)
	if err != nil {
		s.publish(models.EventTypeFetchFailed, models.FetchFailedPayload{
			Source: source,
			Error:  logging.Redact(err.Error()),
		})
	}
}

func (r sessionReporter) Skipped(source models.FetchSource) {
	if source == models.SourceNewer {
		r.s.metrics.PollSkipped()
	}
}

func (r sessionReporter) HistoryExhausted() {
	s := r.s
	if s.closed.Load() {
		return
	}
	s.publish(models.EventTypeHistoryExhausted, models.HistoryExhaustedPayload{Size: s.engine.Len()})
}
