package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued transactions to the server now",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if !a.Monitor.Check(ctx) {
				return fmt.Errorf("server %s is not reachable", a.Config.ServerURL)
			}
			rep := a.Syncer.Run(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "Synced %d, %d remaining.\n", rep.Synced, rep.Remaining)
			return rep.Err
		},
	}
}
