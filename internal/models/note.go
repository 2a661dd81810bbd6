package models

import "time"

// Note is the free-text remark attached to an asset, such as "low fuel".
type Note struct {
	AssetID   int       `json:"asset_id"`
	Note      string    `json:"note"`
	UpdatedBy string    `json:"updated_by"`
	UpdatedAt time.Time `json:"updated_at"`
}
