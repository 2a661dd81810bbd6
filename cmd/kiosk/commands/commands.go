package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crucial707/keykiosk/cmd/kiosk/app"
	"github.com/crucial707/keykiosk/cmd/kiosk/root"
)

// Init registers every kiosk subcommand on rootCmd.
func Init(rootCmd *cobra.Command) {
	rootCmd.AddCommand(
		runCmd(),
		syncCmd(),
		queueCmd(),
		statusCmd(),
		replaceCardCmd(),
		watchCmd(),
	)
}

// openApp loads the configuration and opens the local database. The
// returned context is cancelled on SIGINT or SIGTERM.
func openApp(cmd *cobra.Command) (context.Context, *app.App, func(), error) {
	cfg, logger, err := root.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	a, err := app.Open(cfg, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening kiosk: %w", err)
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	cleanup := func() {
		stop()
		a.Close()
	}
	return ctx, a, cleanup, nil
}
