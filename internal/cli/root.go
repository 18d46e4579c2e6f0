// Package cli implements the dmsync command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tOgg1/dmsync/internal/config"
	"github.com/tOgg1/dmsync/internal/logging"
	"github.com/tOgg1/dmsync/internal/remote"
	"github.com/tOgg1/dmsync/internal/threadsync"
)

// Execute runs the root command.
func Execute(version string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd(version).ExecuteContext(ctx)
}

// app is shared by every command: the loaded config and the open log file.
type app struct {
	configFile string
	envFile    string
	statePath  string
	cfg        *config.Config
	logFile    *os.File

	// isTerminal reports whether the TUI can take over stdout.
	isTerminal func() bool
}

// flagKeys maps persistent flags onto config keys.
var flagKeys = map[string]string{
	"log-level":  "logging.level",
	"log-format": "logging.format",
	"base-url":   "remote.base_url",
}

func newRootCmd(version string) *cobra.Command {
	return newRootCmdFor(version, &app{isTerminal: hasTTY})
}

func newRootCmdFor(version string, a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dmsync [thread-id]",
		Short: "Follow direct message threads from the terminal",
		Long: "dmsync keeps a local, ordered, duplicate-free copy of a message thread " +
			"in sync with the conversation service.\n\n" +
			"With a thread id it opens the thread view on a terminal and tails the " +
			"thread otherwise.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			if a.isTerminal() {
				return a.runView(cmd.Context(), args[0])
			}
			return a.runTail(cmd.Context(), cmd.OutOrStdout(), args[0], tailOptions{follow: true, metricsAddr: a.cfg.Metrics.Addr})
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default $XDG_CONFIG_HOME/dmsync/config.yaml)")
	flags.StringVar(&a.envFile, "env-file", "", "dotenv file to load (default ./.env when present)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: console, json")
	flags.String("base-url", "", "conversation service base URL")

	cmd.AddCommand(
		newViewCmd(a),
		newTailCmd(a),
		newInboxCmd(a),
		newSendCmd(a),
		newServeCmd(a),
	)
	return cmd
}

// load reads configuration with flags taking precedence, then sets up logging.
func (a *app) load(cmd *cobra.Command) error {
	loader := config.NewLoader()
	if a.configFile != "" {
		loader.SetConfigFile(a.configFile)
	}
	if a.envFile != "" {
		loader.SetEnvFile(a.envFile)
	}
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			loader.Set(key, f.Value.String())
		}
	}

	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	logCfg := logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cmd.ErrOrStderr(),
		EnableCaller: cfg.Logging.EnableCaller,
	}
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		a.logFile = f
		logCfg.Output = f
	}
	logging.Init(logCfg)

	if used := loader.ConfigFileUsed(); used != "" {
		logging.Logger.Debug().Str("path", used).Msg("loaded config file")
	}
	return nil
}

func (a *app) close() {
	if a.logFile != nil {
		_ = a.logFile.Close()
		a.logFile = nil
	}
}

func (a *app) client() (*remote.Client, error) {
	return remote.NewClient(remote.Config{
		BaseURL:           a.cfg.Remote.BaseURL,
		Token:             a.cfg.Remote.Token,
		RequestTimeout:    a.cfg.Remote.RequestTimeout,
		RequestsPerSecond: a.cfg.Remote.RequestsPerSecond,
		Burst:             a.cfg.Remote.Burst,
	})
}

// openSession fetches the thread snapshot and starts syncing it.
func (a *app) openSession(ctx context.Context, threadID string, opts ...threadsync.Option) (*threadsync.Session, error) {
	client, err := a.client()
	if err != nil {
		return nil, err
	}
	thread, err := client.Thread(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}

	base := []threadsync.Option{
		threadsync.WithPollInterval(a.cfg.Sync.PollInterval),
		threadsync.WithFetchTimeout(a.cfg.Sync.FetchTimeout),
	}
	return threadsync.Open(ctx, thread, client, append(base, opts...)...)
}

func hasTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func fprintf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
