package threadsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/dmsync/internal/logging"
	"github.com/tOgg1/dmsync/internal/models"
)

// Pager errors.
var (
	ErrPagerBusy      = errors.New("older page already loading")
	ErrPagerExhausted = errors.New("no older messages available")
	ErrPagerStopped   = errors.New("pager stopped")
)

// PagerConfig contains configuration for the backward pager.
type PagerConfig struct {
	// FetchTimeout bounds a single request.
	// Default: 10s
	FetchTimeout time.Duration
}

// DefaultPagerConfig returns sensible defaults.
func DefaultPagerConfig() PagerConfig {
	return PagerConfig{FetchTimeout: 10 * time.Second}
}

// Pager loads older history one page at a time. At most one page is in
// flight. Once the service reports the start of history the pager never
// issues another request.
type Pager struct {
	config   PagerConfig
	threadID string
	engine   *Engine
	fetcher  OlderFetcher
	reporter Reporter
	logger   zerolog.Logger

	state atomic.Int32

	mu      sync.Mutex
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPager creates a Pager for one thread. reporter may be nil.
func NewPager(config PagerConfig, threadID string, engine *Engine, fetcher OlderFetcher, reporter Reporter) *Pager {
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = DefaultPagerConfig().FetchTimeout
	}
	if reporter == nil {
		reporter = nopReporter{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pager{
		config:   config,
		threadID: threadID,
		engine:   engine,
		fetcher:  fetcher,
		reporter: reporter,
		logger:   logging.WithThread("pager", threadID),
		ctx:      ctx,
		cancel:   cancel,
	}
	if !engine.MoreAvailable() {
		p.state.Store(stateExhausted)
	}
	return p
}

// Trigger starts loading the next older page in the background. It returns
// false when a page is already loading, history is exhausted, or the pager
// is stopped.
func (p *Pager) Trigger() bool {
	if err := p.begin(); err != nil {
		return false
	}
	go func() {
		defer p.wg.Done()
		_, _ = p.load(p.ctx)
	}()
	return true
}

// LoadOlder loads the next older page and waits for it to be merged.
func (p *Pager) LoadOlder(ctx context.Context) (MergeResult, error) {
	if err := p.begin(); err != nil {
		return MergeResult{Source: models.SourceOlder}, err
	}
	defer p.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	unlink := context.AfterFunc(p.ctx, cancel)
	defer unlink()

	return p.load(ctx)
}

// Fetching reports whether a page is in flight.
func (p *Pager) Fetching() bool {
	return p.state.Load() == stateFetching
}

// Exhausted reports whether the pager reached the start of history.
func (p *Pager) Exhausted() bool {
	return p.state.Load() == stateExhausted
}

// Stop cancels an in-flight load and waits for it to return. Stop is
// idempotent.
func (p *Pager) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
}

// begin claims the single in-flight slot. On success the caller owns one
// wg count.
func (p *Pager) begin() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrPagerStopped
	}
	if !p.state.CompareAndSwap(stateIdle, stateFetching) {
		if p.state.Load() == stateExhausted {
			return ErrPagerExhausted
		}
		p.reporter.Skipped(models.SourceOlder)
		return ErrPagerBusy
	}
	p.wg.Add(1)
	return nil
}

func (p *Pager) load(parent context.Context) (MergeResult, error) {
	ctx, cancel := context.WithTimeout(parent, p.config.FetchTimeout)
	defer cancel()

	cursor := p.engine.Cursor()
	started := time.Now()
	page, err := p.fetcher.OlderMessages(ctx, p.threadID, cursor)
	elapsed := time.Since(started)

	if p.ctx.Err() != nil {
		p.state.Store(stateIdle)
		p.logger.Debug().Msg("page finished after stop, discarding response")
		return MergeResult{Source: models.SourceOlder}, ErrPagerStopped
	}

	p.reporter.Fetched(models.SourceOlder, elapsed, err)
	if err != nil {
		p.state.Store(stateIdle)
		p.logger.Warn().Err(err).Str("cursor", string(cursor)).Msg("failed to load older messages")
		return MergeResult{Source: models.SourceOlder}, fmt.Errorf("load older messages: %w", err)
	}

	result := p.engine.MergeOlder(page.Messages, page.Cursor, page.MoreAvailable)
	if result.Exhausted {
		p.state.Store(stateExhausted)
	} else {
		p.state.Store(stateIdle)
	}

	p.logger.Debug().
		Int("received", len(page.Messages)).
		Int("admitted", result.Admitted).
		Int("duplicates", result.Duplicates).
		Bool("more_available", page.MoreAvailable).
		Msg("older page merged")

	p.reporter.Merged(result)
	if result.Exhausted {
		p.logger.Info().Int("size", result.Size).Msg("reached start of history")
		p.reporter.HistoryExhausted()
	}
	return result, nil
}
