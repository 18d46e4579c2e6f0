package threadsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/dmsync/internal/logging"
	"github.com/tOgg1/dmsync/internal/models"
)

// Poller errors.
var (
	ErrPollerAlreadyRunning = errors.New("poller already running")
	ErrPollerNotRunning     = errors.New("poller not running")
)

// PollerConfig contains configuration for the forward poller.
type PollerConfig struct {
	// Interval is how often to ask for new messages.
	// Default: 10s
	Interval time.Duration

	// FetchTimeout bounds a single request.
	// Default: 10s
	FetchTimeout time.Duration
}

// DefaultPollerConfig returns sensible defaults.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:     10 * time.Second,
		FetchTimeout: 10 * time.Second,
	}
}

const (
	stateIdle int32 = iota
	stateFetching
	stateExhausted
)

// Poller periodically fetches messages newer than the engine's watermark and
// merges them. At most one poll is in flight; ticks that find one running
// are skipped.
type Poller struct {
	config   PollerConfig
	threadID string
	engine   *Engine
	fetcher  NewerFetcher
	reporter Reporter
	logger   zerolog.Logger

	state atomic.Int32

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPoller creates a Poller for one thread. reporter may be nil.
func NewPoller(config PollerConfig, threadID string, engine *Engine, fetcher NewerFetcher, reporter Reporter) *Poller {
	if config.Interval <= 0 {
		config.Interval = DefaultPollerConfig().Interval
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = DefaultPollerConfig().FetchTimeout
	}
	if reporter == nil {
		reporter = nopReporter{}
	}

	return &Poller{
		config:   config,
		threadID: threadID,
		engine:   engine,
		fetcher:  fetcher,
		reporter: reporter,
		logger:   logging.WithThread("poller", threadID),
	}
}

// Start begins the polling loop. The first poll happens one interval after
// Start.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrPollerAlreadyRunning
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	p.logger.Debug().
		Dur("interval", p.config.Interval).
		Dur("fetch_timeout", p.config.FetchTimeout).
		Msg("poller starting")

	p.wg.Add(1)
	go p.runLoop()

	return nil
}

// Stop halts the loop, cancels an in-flight poll and waits for it to return.
func (p *Poller) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return ErrPollerNotRunning
	}

	p.cancel()
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Debug().Msg("poller stopped")
	return nil
}

// IsRunning returns true if the poller is running.
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Fetching reports whether a poll is in flight.
func (p *Poller) Fetching() bool {
	return p.state.Load() == stateFetching
}

// PollNow starts an out-of-band poll. It returns false when the poller is
// stopped or a poll is already in flight.
func (p *Poller) PollNow() bool {
	return p.tryPoll()
}

func (p *Poller) runLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.tryPoll()
		}
	}
}

func (p *Poller) tryPoll() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return false
	}
	if !p.state.CompareAndSwap(stateIdle, stateFetching) {
		p.logger.Debug().Msg("poll in flight, skipping tick")
		p.reporter.Skipped(models.SourceNewer)
		return false
	}

	p.wg.Add(1)
	go p.poll(p.ctx)
	return true
}

func (p *Poller) poll(parent context.Context) {
	defer p.wg.Done()
	defer p.state.Store(stateIdle)

	ctx, cancel := context.WithTimeout(parent, p.config.FetchTimeout)
	defer cancel()

	since := p.engine.NewestTimestamp()
	started := time.Now()
	batch, err := p.fetcher.NewMessages(ctx, p.threadID, since)
	elapsed := time.Since(started)

	if parent.Err() != nil {
		p.logger.Debug().Msg("poll finished after stop, discarding response")
		return
	}

	p.reporter.Fetched(models.SourceNewer, elapsed, err)
	if err != nil {
		p.logger.Warn().Err(err).Int64("last_timestamp", since).Msg("failed to fetch new messages")
		return
	}

	result := p.engine.MergeNewer(batch)
	p.logger.Debug().
		Int("received", len(batch)).
		Int("admitted", result.Admitted).
		Int("duplicates", result.Duplicates).
		Int("rejected", len(result.Rejected)).
		Msg("poll merged")
	p.reporter.Merged(result)
}
