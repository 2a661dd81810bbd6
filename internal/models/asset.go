package models

import "time"

const (
	DefaultCategory = "Vehicle"
	DefaultLocation = "Main"
)

// Asset is a tracked key fob. Code is the scanned external identifier.
type Asset struct {
	ID           int       `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	Location     string    `json:"location"`
	Active       bool      `json:"active"`
	RegisteredAt time.Time `json:"registered_at"`
}

// AssetDetails is what an operator supplies when an unknown asset is scanned.
type AssetDetails struct {
	Name     string `json:"name" validate:"required,max=255"`
	Category string `json:"category" validate:"max=100"`
	Location string `json:"location" validate:"max=100"`
}

// Normalize fills in the default category and location.
func (d AssetDetails) Normalize() AssetDetails {
	if d.Category == "" {
		d.Category = DefaultCategory
	}
	if d.Location == "" {
		d.Location = DefaultLocation
	}
	return d
}
