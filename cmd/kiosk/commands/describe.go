package commands

import (
	"errors"
	"fmt"

	"github.com/crucial707/keykiosk/internal/checkout"
	"github.com/crucial707/keykiosk/internal/localstore"
)

// describe turns a scan outcome into the line shown to the operator.
func describe(res checkout.Result, err error) string {
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrCancelled):
			return "Cancelled."
		case errors.Is(err, checkout.ErrInactive) && res.User != nil:
			return fmt.Sprintf("The card for %s is deactivated.", res.User.FullName())
		case errors.Is(err, checkout.ErrInactive) && res.Asset != nil:
			return fmt.Sprintf("%s is deactivated.", res.Asset.Name)
		case errors.Is(err, checkout.ErrIdentifierTaken):
			return "That card or fob is already registered to someone else."
		case errors.Is(err, checkout.ErrServerRequired):
			return "Card replacement needs the server. Try again once it is reachable."
		case errors.Is(err, localstore.ErrNotFound):
			return "Unknown card."
		}
		return "Error: " + err.Error()
	}

	switch res.Action {
	case checkout.ActionUserScanned:
		return fmt.Sprintf("Hello %s. Scan a key fob.", res.User.FullName())
	case checkout.ActionAssetPending:
		return fmt.Sprintf("%s selected. Scan your card.", res.Asset.Name)
	case checkout.ActionCheckout:
		return fmt.Sprintf("%s checked out to %s.%s", res.Asset.Name, res.User.FullName(), modeNote(res))
	case checkout.ActionCheckin:
		return fmt.Sprintf("%s checked in.%s", res.Asset.Name, modeNote(res))
	case checkout.ActionHandoff:
		from := "previous holder"
		if res.Previous != nil && res.Previous.UserName != "" {
			from = res.Previous.UserName
		}
		return fmt.Sprintf("%s handed from %s to %s.%s", res.Asset.Name, from, res.User.FullName(), modeNote(res))
	case checkout.ActionDeclined:
		return fmt.Sprintf("Not checked out: %s is reserved for %s.", res.Asset.Name, res.Reservation.ReservedFor())
	case checkout.ActionReplaceCard:
		return fmt.Sprintf("Scan the new card for %s.", res.User.FullName())
	case checkout.ActionCardReplaced:
		return fmt.Sprintf("Card updated for %s.", res.User.FullName())
	}
	return ""
}

func modeNote(res checkout.Result) string {
	if res.Mode != checkout.ModeQueued {
		return ""
	}
	return fmt.Sprintf(" (offline, %d waiting to sync)", res.Pending)
}
