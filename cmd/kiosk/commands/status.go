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

func statusCmd() *cobra.Command {
	var fromServer bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show who holds each key fob",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			var list []models.AssetStatus
			if fromServer {
				list, err = a.Client.Status(ctx)
			} else {
				list, err = a.Store.Statuses(ctx, time.Now())
			}
			if err != nil {
				return err
			}
			renderStatus(cmd.OutOrStdout(), list, a.Zone)

			if !fromServer {
				pending, err := a.Outbox.PendingCount(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Local ledger, %d waiting to sync.\n", pending)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fromServer, "server", false, "ask the server instead of the local ledger")
	return cmd
}

func renderStatus(w io.Writer, list []models.AssetStatus, zone *time.Location) {
	rows := make([][]interface{}, 0, len(list))
	for _, s := range list {
		holder, since := "available", ""
		if s.Holder != nil {
			holder = s.Holder.UserName
			since = s.Holder.CheckedOutAt.In(zone).Format(timeutil.DisplayLayout)
		}
		reserved := ""
		if s.Reservation != nil {
			reserved = fmt.Sprintf("%s at %s", s.Reservation.ReservedFor(),
				s.Reservation.ReservedAt.In(zone).Format(timeutil.DisplayLayout))
		}
		rows = append(rows, []interface{}{s.Name, s.Code, s.Category, holder, since, reserved})
	}
	output.RenderTable(w, []string{"Asset", "Code", "Category", "Holder", "Since", "Reserved"}, rows)
}
