package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/tOgg1/dmsync/internal/config"
	"github.com/tOgg1/dmsync/internal/logging"
	"github.com/tOgg1/dmsync/internal/tui"
)

var (
	errNeedsTerminal = errors.New("the thread view needs an interactive terminal; use `dmsync tail` instead")
	errNoThread      = errors.New("no thread id given and no thread opened before")
)

func newViewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "view [thread-id]",
		Short: "Open the interactive thread view",
		Long: "Open the interactive thread view. Without a thread id the most " +
			"recently viewed thread is reopened.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			threadID := ""
			if len(args) == 1 {
				threadID = args[0]
			}
			return a.runView(cmd.Context(), threadID)
		},
	}
}

func (a *app) runView(ctx context.Context, threadID string) error {
	if !a.isTerminal() {
		return errNeedsTerminal
	}

	store := config.NewStateStore(a.statePath)
	state, err := store.Load()
	if err != nil {
		return err
	}
	if threadID == "" {
		if state.IsEmpty() {
			return errNoThread
		}
		threadID = state.LastThreadID
	}

	// Log lines would tear the alternate screen.
	if a.cfg.Logging.File == "" {
		logging.Disable()
	}

	session, err := a.openSession(ctx, threadID)
	if err != nil {
		return err
	}
	defer session.Close()

	state.SetThread(threadID, session.Thread().Peer().DisplayName())
	if err := store.Save(state); err != nil {
		logging.Logger.Warn().Err(err).Msg("failed to remember thread")
	}

	return tui.Run(ctx, session, tui.Config{
		Theme:          a.cfg.TUI.Theme,
		ShowTimestamps: a.cfg.TUI.ShowTimestamps,
	})
}
