package models

import "time"

// TransactionKind is the normalized kind of a queued ledger change.
type TransactionKind string

const (
	KindCheckout TransactionKind = "checkout"
	KindCheckin  TransactionKind = "checkin"
)

// QueuedTransaction is an outbox entry recorded while the server could not
// be written. Entries are flagged synced, never removed.
type QueuedTransaction struct {
	ID            int64           `json:"id"`
	EventID       string          `json:"event_id"`
	Kind          TransactionKind `json:"kind"`
	UserCardID    string          `json:"user_card_id,omitempty"`
	UserFirstName string          `json:"user_first_name,omitempty"`
	UserLastName  string          `json:"user_last_name,omitempty"`
	AssetCode     string          `json:"asset_code"`
	AssetName     string          `json:"asset_name,omitempty"`
	AssetCategory string          `json:"asset_category,omitempty"`
	AssetLocation string          `json:"asset_location,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
	KioskID       string          `json:"kiosk_id"`
	Synced        bool            `json:"synced"`
	SyncedAt      *time.Time      `json:"synced_at,omitempty"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"last_error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// OfflineCheckout is the body of submit_offline_checkout. OccurredAt is
// optional only for live writes, where the server uses its own clock.
type OfflineCheckout struct {
	EventID       string     `json:"event_id,omitempty"`
	UserCardID    string     `json:"user_card_id" validate:"required,max=255"`
	UserFirstName string     `json:"user_first_name,omitempty" validate:"max=100"`
	UserLastName  string     `json:"user_last_name,omitempty" validate:"max=100"`
	AssetCode     string     `json:"asset_code" validate:"required,max=255"`
	AssetName     string     `json:"asset_name,omitempty" validate:"max=255"`
	AssetCategory string     `json:"asset_category,omitempty" validate:"max=100"`
	AssetLocation string     `json:"asset_location,omitempty" validate:"max=100"`
	OccurredAt    *time.Time `json:"timestamp,omitempty"`
	KioskID       string     `json:"kiosk_id" validate:"required,max=100"`

	// ReleasesEventID is the event id of the previous holder's checkin when
	// a live handoff is sent as this one checkout.
	ReleasesEventID string `json:"releases_event_id,omitempty" validate:"max=64"`
}

// OfflineCheckin is the body of submit_offline_checkin.
type OfflineCheckin struct {
	EventID    string     `json:"event_id,omitempty"`
	AssetCode  string     `json:"asset_code" validate:"required,max=255"`
	OccurredAt *time.Time `json:"timestamp,omitempty"`
	KioskID    string     `json:"kiosk_id" validate:"required,max=100"`
}

// ApplyResult reports whether a write changed the ledger. Applied is false
// when the same event had already been recorded.
type ApplyResult struct {
	Applied  bool `json:"applied"`
	RecordID int  `json:"record_id,omitempty"`
}

// CheckoutRequest converts a queued checkout back into its wire form.
func (q QueuedTransaction) CheckoutRequest() OfflineCheckout {
	at := q.OccurredAt
	return OfflineCheckout{
		EventID:       q.EventID,
		UserCardID:    q.UserCardID,
		UserFirstName: q.UserFirstName,
		UserLastName:  q.UserLastName,
		AssetCode:     q.AssetCode,
		AssetName:     q.AssetName,
		AssetCategory: q.AssetCategory,
		AssetLocation: q.AssetLocation,
		OccurredAt:    &at,
		KioskID:       q.KioskID,
	}
}

// CheckinRequest converts a queued checkin back into its wire form.
func (q QueuedTransaction) CheckinRequest() OfflineCheckin {
	at := q.OccurredAt
	return OfflineCheckin{
		EventID:    q.EventID,
		AssetCode:  q.AssetCode,
		OccurredAt: &at,
		KioskID:    q.KioskID,
	}
}
