package models

import "time"

// AuditEntry represents one audit log row.
type AuditEntry struct {
	ID           int       `json:"id"`
	Actor        string    `json:"actor"`
	Action       string    `json:"action"`        // register, replace, activate, deactivate, reserve, unreserve, offline_checkout, offline_checkin
	ResourceType string    `json:"resource_type"` // asset, user, reservation, checkout
	ResourceID   int       `json:"resource_id"`
	Details      string    `json:"details,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
