package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/crucial707/keykiosk/cmd/kiosk/output"
	"github.com/crucial707/keykiosk/internal/models"
	"github.com/crucial707/keykiosk/internal/timeutil"
)

func queueCmd() *cobra.Command {
	var all bool
	var limit int

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List transactions waiting to sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := a.Outbox.List(ctx, all, limit)
			if err != nil {
				return err
			}
			renderQueue(cmd.OutOrStdout(), entries, a.Zone)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include synced transactions")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows (0 for all)")
	return cmd
}

func renderQueue(w io.Writer, entries []models.QueuedTransaction, zone *time.Location) {
	rows := make([][]interface{}, 0, len(entries))
	for _, e := range entries {
		state := "pending"
		if e.Synced {
			state = "synced"
		}
		rows = append(rows, []interface{}{
			e.ID,
			e.Kind,
			e.AssetCode,
			e.UserCardID,
			e.OccurredAt.In(zone).Format(timeutil.DisplayLayout),
			state,
			e.Attempts,
			e.LastError,
		})
	}
	output.RenderTable(w, []string{"ID", "Kind", "Asset", "Card", "When", "State", "Attempts", "Last error"}, rows)
	if n := pendingIn(entries); n > 0 {
		fmt.Fprintf(w, "%d waiting to sync.\n", n)
	}
}

func pendingIn(entries []models.QueuedTransaction) int {
	n := 0
	for _, e := range entries {
		if !e.Synced {
			n++
		}
	}
	return n
}
