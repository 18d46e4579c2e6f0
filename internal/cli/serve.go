package cli

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/tOgg1/dmsync/internal/db"
	"github.com/tOgg1/dmsync/internal/devserver"
	"github.com/tOgg1/dmsync/internal/logging"
)

type serveOptions struct {
	addr     string
	database string
	pageSize int
	seed     int
	chatter  time.Duration
}

func newServeCmd(a *app) *cobra.Command {
	opts := serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the development conversation service",
		Long: "Run a local conversation service backed by SQLite. It speaks the " +
			"same HTTP API the client syncs against.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("addr") {
				opts.addr = a.cfg.Server.Addr
			}
			if !flags.Changed("db") {
				opts.database = a.cfg.Server.DatabasePath
			}
			if !flags.Changed("page-size") {
				opts.pageSize = a.cfg.Server.PageSize
			}
			return a.runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (default from config, :8000)")
	cmd.Flags().StringVar(&opts.database, "db", "", "SQLite database path, or :memory:")
	cmd.Flags().IntVar(&opts.pageSize, "page-size", 0, "items per snapshot and older page")
	cmd.Flags().IntVar(&opts.seed, "seed", 0, "create the demo thread with this many messages")
	cmd.Flags().DurationVar(&opts.chatter, "chatter", 0, "post a peer message to the demo thread at this interval")
	return cmd
}

func (a *app) runServe(ctx context.Context, opts serveOptions) error {
	logger := logging.Component("serve")

	a.cfg.Server.DatabasePath = opts.database
	if err := a.cfg.EnsureDirectories(); err != nil {
		return err
	}

	dbCfg := db.DefaultConfig()
	dbCfg.Path = opts.database
	database, err := db.Open(dbCfg)
	if err != nil {
		return err
	}
	defer database.Close()

	applied, err := database.MigrateUp(ctx)
	if err != nil {
		return err
	}
	logger.Info().Str("path", database.Path()).Int("migrations", applied).Msg("database ready")

	if opts.seed > 0 {
		if err := devserver.Seed(ctx, database, opts.seed); err != nil {
			return err
		}
		logger.Info().Str("thread", devserver.DemoThreadID).Int("messages", opts.seed).Msg("demo thread seeded")
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if opts.chatter > 0 {
		if opts.seed == 0 {
			return fmt.Errorf("--chatter needs the demo thread; pass --seed as well")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := devserver.Chatter(ctx, database, devserver.DemoThreadID, opts.chatter); err != nil {
				logger.Error().Err(err).Msg("chatter stopped")
			}
		}()
	}

	srv := devserver.New(devserver.Config{Addr: opts.addr, PageSize: opts.pageSize}, database)
	return srv.Run(ctx)
}
