package checkout

import (
	"context"

	"github.com/crucial707/keykiosk/internal/models"
)

// Identity is what an operator says an unknown scan is.
type Identity int

const (
	IdentityUnknown Identity = iota
	IdentityKeycard
	IdentityAsset
)

// Prompter asks the operator for input. Any error, or an empty answer where
// one is required, cancels the scan sequence without writing anything.
type Prompter interface {
	// ClassifyUnknown asks whether id is a keycard or an asset.
	ClassifyUnknown(ctx context.Context, id string) (Identity, error)
	// RegisterUser asks for the name of a new card holder.
	RegisterUser(ctx context.Context, card string) (models.UserDetails, error)
	// RegisterAsset asks for the name, category and location of a new asset.
	RegisterAsset(ctx context.Context, code string) (models.AssetDetails, error)
	// ConfirmReservedCheckout asks whether u may take an asset reserved for
	// someone else.
	ConfirmReservedCheckout(ctx context.Context, u models.User, a models.Asset, r models.Reservation) (bool, error)
}
