package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tOgg1/dmsync/internal/events"
	"github.com/tOgg1/dmsync/internal/logging"
	"github.com/tOgg1/dmsync/internal/metrics"
	"github.com/tOgg1/dmsync/internal/models"
	"github.com/tOgg1/dmsync/internal/threadsync"
	"github.com/tOgg1/dmsync/internal/tui"
)

type tailOptions struct {
	older       int
	follow      bool
	metricsAddr string
}

func newTailCmd(a *app) *cobra.Command {
	opts := tailOptions{}
	cmd := &cobra.Command{
		Use:   "tail <thread-id>",
		Short: "Print a thread and follow new messages",
		Long: "Print the thread oldest first, then keep printing new messages as " +
			"they arrive until interrupted.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("metrics-addr") {
				opts.metricsAddr = a.cfg.Metrics.Addr
			}
			return a.runTail(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}
	cmd.Flags().IntVar(&opts.older, "older", 0, "load this many older pages before printing")
	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", true, "keep following new messages")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	return cmd
}

func (a *app) runTail(ctx context.Context, out io.Writer, threadID string, opts tailOptions) error {
	logger := logging.Component("tail")

	var m *metrics.Metrics
	if opts.metricsAddr != "" {
		m = metrics.New()
		stop := serveMetrics(opts.metricsAddr, m)
		defer stop()
	}

	session, err := a.openSession(ctx, threadID, threadsync.WithMetrics(m))
	if err != nil {
		return err
	}
	defer session.Close()

	for _, rej := range session.SeedResult().Rejected {
		logger.Warn().Err(rej.Err).Int("index", rej.Index).Str("item_id", rej.ItemID).Msg("skipped malformed snapshot message")
	}

	changed := make(chan struct{}, 1)
	subID := "tail-" + uuid.NewString()
	err = session.Subscribe(subID, events.Filter{}, func(event *models.Event) {
		switch event.Type {
		case models.EventTypeListChanged:
			select {
			case changed <- struct{}{}:
			default:
			}
		case models.EventTypeIntegrityViolation:
			logger.Warn().RawJSON("payload", event.Payload).Msg("skipped malformed messages")
		case models.EventTypeFetchFailed:
			logger.Warn().RawJSON("payload", event.Payload).Msg("fetch failed, will retry")
		}
	})
	if err != nil {
		return err
	}
	defer func() { _ = session.Unsubscribe(subID) }()

	for i := 0; i < opts.older; i++ {
		if _, err := session.LoadOlder(ctx); err != nil {
			if errors.Is(err, threadsync.ErrPagerExhausted) {
				break
			}
			return err
		}
	}

	printer := newLinePrinter(out, session.Thread())
	if err := printer.print(session.Messages()); err != nil {
		return err
	}
	if !opts.follow {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			if err := printer.print(session.Messages()); err != nil {
				return err
			}
		}
	}
}

// linePrinter writes each message once, oldest first.
type linePrinter struct {
	out     io.Writer
	thread  models.Thread
	printed map[string]struct{}
}

func newLinePrinter(out io.Writer, thread models.Thread) *linePrinter {
	return &linePrinter{out: out, thread: thread, printed: make(map[string]struct{})}
}

// print takes the canonical list (newest first) and writes unseen messages.
func (p *linePrinter) print(messages []models.Message) error {
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if _, ok := p.printed[msg.ItemID]; ok {
			continue
		}
		p.printed[msg.ItemID] = struct{}{}
		if _, err := fmt.Fprintln(p.out, p.format(msg)); err != nil {
			return err
		}
	}
	return nil
}

func (p *linePrinter) format(msg models.Message) string {
	ts := time.UnixMicro(msg.Timestamp).Format("2006-01-02 15:04:05")
	if _, ok := msg.Payload.(models.ActionLogPayload); ok {
		return fmt.Sprintf("%s  * %s", ts, tui.PlainText(msg))
	}
	sender := p.thread.Peer().DisplayName()
	if msg.IsSentByViewer {
		sender = "You"
	}
	if sender == "" {
		sender = "Them"
	}
	return fmt.Sprintf("%s  %s: %s", ts, sender, tui.PlainText(msg))
}

// serveMetrics exposes m on addr/metrics and returns a shutdown func.
func serveMetrics(addr string, m *metrics.Metrics) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	logger := logging.Component("metrics")
	go func() {
		logger.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
