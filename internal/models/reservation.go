package models

import (
	"strings"
	"time"
)

const DefaultLeadHours = 24

// Reservation holds an asset for someone at ReservedAt. It is shown and
// enforced during the LeadHours before that instant.
type Reservation struct {
	ID              int       `json:"id"`
	AssetID         int       `json:"asset_id"`
	AssetCode       string    `json:"asset_code,omitempty"`
	UserID          *int      `json:"user_id,omitempty"`
	UserCard        string    `json:"user_card_id,omitempty"`
	UserName        string    `json:"user_name,omitempty"`
	ReservedForName string    `json:"reserved_for_name,omitempty"`
	ReservedAt      time.Time `json:"reserved_at"`
	LeadHours       int       `json:"lead_hours"`
	Reason          string    `json:"reason,omitempty"`
	CreatedBy       string    `json:"created_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ReservedFor is the display name of whoever holds the reservation.
func (r Reservation) ReservedFor() string {
	if r.UserName != "" {
		return r.UserName
	}
	return r.ReservedForName
}

// IsFor reports whether the reservation belongs to u. A reservation with no
// linked user matches on the free-text name.
func (r Reservation) IsFor(u User) bool {
	if r.UserID != nil && u.ID != 0 && *r.UserID == u.ID {
		return true
	}
	if r.UserCard != "" {
		return strings.EqualFold(r.UserCard, u.CardID)
	}
	if r.UserID == nil && r.ReservedForName != "" {
		return strings.EqualFold(strings.TrimSpace(r.ReservedForName), u.FullName())
	}
	return false
}

// ReservationRequest is the body of a new reservation. Exactly one of
// UserCardID and ReservedForName names the holder.
type ReservationRequest struct {
	AssetCode       string    `json:"asset_code" validate:"required,max=255"`
	UserCardID      string    `json:"user_card_id,omitempty" validate:"required_without=ReservedForName,max=255"`
	ReservedForName string    `json:"reserved_for_name,omitempty" validate:"required_without=UserCardID,max=200"`
	ReservedAt      time.Time `json:"reserved_at" validate:"required"`
	LeadHours       *int      `json:"lead_hours,omitempty" validate:"omitempty,min=0,max=720"`
	Reason          string    `json:"reason,omitempty" validate:"max=500"`
}
