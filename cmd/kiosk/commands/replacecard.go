package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crucial707/keykiosk/internal/checkout"
)

func replaceCardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replace-card OLD_CARD NEW_CARD",
		Short: "Move a card holder onto a new card",
		Long: `Replace a lost or damaged keycard. The server is updated first, so
the command fails while it is unreachable. A card that already belongs to
someone else is rejected.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			// Prompts are never needed when both cards are given.
			m := a.Machine(nil)
			user, err := m.ReplaceCard(ctx, args[0], args[1])
			if err != nil {
				return errors.New(describe(checkout.Result{}, err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Card updated for %s.\n", user.FullName())
			return nil
		},
	}
}
