package cli

import (
	"context"
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
	"github.com/spf13/cobra"

	"github.com/tOgg1/dmsync/internal/models"
	"github.com/tOgg1/dmsync/internal/threadsync"
	"github.com/tOgg1/dmsync/internal/tui"
)

const previewWidth = 48

func newInboxCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "inbox",
		Aliases: []string{"threads", "ls"},
		Short:   "List threads by last activity",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInbox(cmd.Context(), cmd.OutOrStdout(), time.Now())
		},
	}
}

func (a *app) runInbox(ctx context.Context, out io.Writer, now time.Time) error {
	client, err := a.client()
	if err != nil {
		return err
	}
	threads, err := client.Threads(ctx)
	if err != nil {
		return err
	}
	if len(threads) == 0 {
		fprintf(out, "No threads.\n")
		return nil
	}

	slices.SortStableFunc(threads, func(x, y models.Thread) int {
		lx, ly := x.LastActivity(), y.LastActivity()
		switch {
		case lx > ly:
			return -1
		case lx < ly:
			return 1
		default:
			return 0
		}
	})

	rows := make([][]string, 0, len(threads))
	for _, thread := range threads {
		last := "never"
		if ts := thread.LastActivity(); ts > 0 {
			last = humanize.RelTime(time.UnixMicro(ts), now, "ago", "from now")
		}
		rows = append(rows, []string{
			thread.ThreadID,
			thread.Peer().DisplayName(),
			last,
			strconv.Itoa(len(thread.Items)),
			truncate.StringWithTail(latestPreview(thread), previewWidth, "…"),
		})
	}
	return writeTable(out, []string{"THREAD", "WITH", "LAST ACTIVITY", "ITEMS", "LATEST"}, rows)
}

// latestPreview is the newest snapshot message on one line.
func latestPreview(thread models.Thread) string {
	if len(thread.Items) == 0 {
		return ""
	}
	items := slices.Clone(thread.Items)
	threadsync.SortNewestFirst(items)
	return tui.PlainText(items[0])
}
