package models

import "time"

const (
	SourceLive    = "live"
	SourceOffline = "offline"
)

// CheckoutRecord is one custody interval of an asset. CheckedInAt is nil while
// the asset is held; at most one such record exists per asset.
type CheckoutRecord struct {
	ID               int        `json:"id"`
	AssetID          int        `json:"asset_id"`
	UserID           int        `json:"user_id"`
	CheckedOutAt     time.Time  `json:"checked_out_at"`
	CheckedInAt      *time.Time `json:"checked_in_at,omitempty"`
	KioskID          string     `json:"kiosk_id"`
	CheckedInKioskID string     `json:"checked_in_kiosk_id,omitempty"`
	Source           string     `json:"source"`

	// Denormalized for display.
	AssetCode string `json:"asset_code,omitempty"`
	AssetName string `json:"asset_name,omitempty"`
	UserCard  string `json:"user_card_id,omitempty"`
	UserName  string `json:"user_name,omitempty"`
}

// Open reports whether the asset is still held under this record.
func (c CheckoutRecord) Open() bool {
	return c.CheckedInAt == nil
}

// AssetStatus is an asset together with its current holder and any
// reservation that is active right now.
type AssetStatus struct {
	Asset
	Holder       *CheckoutRecord `json:"holder,omitempty"`
	Reservation  *Reservation    `json:"reservation,omitempty"`
	Reservations []Reservation   `json:"-"`
	Note         string          `json:"note,omitempty"`
}

// Available reports whether nobody holds the asset.
func (s AssetStatus) Available() bool {
	return s.Holder == nil
}
