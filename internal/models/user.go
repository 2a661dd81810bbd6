package models

import (
	"strings"
	"time"
)

// User is a keycard holder. CardID is the scanned external identifier.
type User struct {
	ID           int       `json:"id"`
	CardID       string    `json:"card_id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Active       bool      `json:"active"`
	RegisteredAt time.Time `json:"registered_at"`
}

// FullName returns "First Last".
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// UserDetails is what an operator supplies when an unknown card is scanned.
type UserDetails struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
}
