package commands

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crucial707/keykiosk/cmd/kiosk/terminal"
	"github.com/crucial707/keykiosk/internal/checkout"
)

// replaceCommand starts replace-card mode from the scan prompt.
const replaceCommand = ":replace"

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the kiosk scan loop",
		Long: `Read scans from stdin, one per line, and check fobs in and out.
Type ` + replaceCommand + ` to move a holder onto a new card.`,
		RunE: runKiosk,
	}
}

func runKiosk(cmd *cobra.Command, args []string) error {
	ctx, a, cleanup, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	term := terminal.New(cmd.InOrStdin(), cmd.OutOrStdout(), a.Zone)
	m := a.Machine(term)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Run(ctx) })
	g.Go(func() error { return expireSessions(ctx, m, a.Config.SessionTimeout, term) })
	g.Go(func() error { return scanLoop(ctx, m, term) })

	a.Logger.Info("kiosk ready", "server", a.Config.ServerURL, "db", a.Config.DBPath)
	err = g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, terminal.ErrClosed) {
		return nil
	}
	return err
}

func scanLoop(ctx context.Context, m *checkout.Machine, term *terminal.Terminal) error {
	term.Printf("Scan a card or key fob.\n")
	for {
		line, err := term.ReadLine(ctx)
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}

		if line == replaceCommand {
			term.Printf("Scan the card being replaced: ")
			old, err := term.ReadLine(ctx)
			if err != nil {
				return err
			}
			res, err := m.BeginReplaceCard(ctx, old)
			term.Printf("%s\n", describe(res, err))
			continue
		}

		res, err := m.Scan(ctx, line)
		term.Printf("%s\n", describe(res, err))
	}
}

// expireSessions clears a half-finished scan sequence once it has been idle
// for the session timeout.
func expireSessions(ctx context.Context, m *checkout.Machine, timeout time.Duration, term *terminal.Terminal) error {
	interval := timeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if m.ExpireIdle() {
				term.Printf("\nTimed out. Scan a card or key fob.\n")
			}
		}
	}
}
