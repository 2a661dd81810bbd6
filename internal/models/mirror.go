package models

import "time"

// Snapshot is the server state a kiosk mirrors locally.
type Snapshot struct {
	GeneratedAt   time.Time        `json:"generated_at"`
	Users         []User           `json:"users"`
	Assets        []Asset          `json:"assets"`
	OpenCheckouts []CheckoutRecord `json:"open_checkouts"`
	Reservations  []Reservation    `json:"reservations"`
}
