// Package reservation decides which reservations are in force at an instant.
package reservation

import (
	"time"

	"github.com/crucial707/keykiosk/internal/models"
)

// Window returns the interval [start, end) during which r is active.
func Window(r models.Reservation) (start, end time.Time) {
	end = r.ReservedAt
	start = end.Add(-time.Duration(r.LeadHours) * time.Hour)
	return start, end
}

// IsActive reports whether r is active at t: the target is still ahead and
// the lead window has opened.
func IsActive(r models.Reservation, t time.Time) bool {
	start, end := Window(r)
	return end.After(t) && !start.After(t)
}

// Active returns the first reservation for assetID that is active at t, in
// the order given. Overlapping reservations on one asset are a data-entry
// error, so the first match is good enough.
func Active(list []models.Reservation, assetID int, t time.Time) *models.Reservation {
	for i := range list {
		if list[i].AssetID != assetID {
			continue
		}
		if IsActive(list[i], t) {
			r := list[i]
			return &r
		}
	}
	return nil
}

// ActiveByAsset indexes the active reservation of every asset at t.
func ActiveByAsset(list []models.Reservation, t time.Time) map[int]models.Reservation {
	out := make(map[int]models.Reservation)
	for _, r := range list {
		if _, seen := out[r.AssetID]; seen {
			continue
		}
		if IsActive(r, t) {
			out[r.AssetID] = r
		}
	}
	return out
}

// Partition splits reservations into past (target at or before now) and
// upcoming, ignoring the lead window.
func Partition(list []models.Reservation, now time.Time) (past, upcoming []models.Reservation) {
	for _, r := range list {
		if r.ReservedAt.After(now) {
			upcoming = append(upcoming, r)
		} else {
			past = append(past, r)
		}
	}
	return past, upcoming
}

// Conflict returns the reservation that blocks u from taking assetID at t
// without confirmation, or nil.
func Conflict(list []models.Reservation, assetID int, u models.User, t time.Time) *models.Reservation {
	r := Active(list, assetID, t)
	if r == nil || r.IsFor(u) {
		return nil
	}
	return r
}

// Statuses joins assets with their open checkout and the reservation in
// force at now, sorted for display.
func Statuses(assets []models.Asset, open []models.CheckoutRecord, list []models.Reservation, now time.Time) []models.AssetStatus {
	holders := make(map[int]models.CheckoutRecord, len(open))
	for _, c := range open {
		holders[c.AssetID] = c
	}
	active := ActiveByAsset(list, now)

	out := make([]models.AssetStatus, 0, len(assets))
	for _, a := range assets {
		st := models.AssetStatus{Asset: a}
		if c, ok := holders[a.ID]; ok {
			st.Holder = &c
		}
		if r, ok := active[a.ID]; ok {
			st.Reservation = &r
		}
		out = append(out, st)
	}
	models.SortStatuses(out)
	return out
}
