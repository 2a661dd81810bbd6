package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/crucial707/keykiosk/internal/middleware"
	"github.com/crucial707/keykiosk/internal/models"
	"github.com/crucial707/keykiosk/internal/notify"
	"github.com/crucial707/keykiosk/internal/repo"
	"github.com/crucial707/keykiosk/internal/reservation"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ==========================
// StatusHandler
// ==========================

// StatusHandler serves the read side used by kiosks and displays.
type StatusHandler struct {
	DB           Pinger
	Assets       *repo.AssetRepo
	Users        *repo.UserRepo
	Ledger       *repo.LedgerRepo
	Reservations *repo.ReservationRepo
	Notes        *repo.NoteRepo
	Broadcaster  notify.Broadcaster

	// Now is the clock used for reservation windows; nil means time.Now.
	Now func() time.Time
}

func (h *StatusHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Live reports that the process is up. It does not touch the database.
func (h *StatusHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Health is the kiosk connectivity probe: it succeeds only when the
// database answers.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.DB.PingContext(ctx); err != nil {
		slog.Warn("health: database unreachable", "error", err)
		JSONError(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status lists active assets with holder, any reservation in force and
// the asset's note.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	assets, err := h.Assets.List(ctx, false)
	if err != nil {
		repoError(w, r, err, "")
		return
	}
	open, err := h.Ledger.Open(ctx)
	if err != nil {
		repoError(w, r, err, "")
		return
	}
	list, err := h.Reservations.List(ctx)
	if err != nil {
		repoError(w, r, err, "")
		return
	}
	statuses := reservation.Statuses(assets, open, list, h.now())
	if h.Notes != nil {
		notes, err := h.Notes.ByAsset(ctx)
		if err != nil {
			repoError(w, r, err, "")
			return
		}
		for i := range statuses {
			statuses[i].Note = notes[statuses[i].ID]
		}
	}
	writeJSON(w, http.StatusOK, statuses)
}

// Mirror returns everything a kiosk keeps locally. Reservations whose
// target has passed are left out.
func (h *StatusHandler) Mirror(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()
	snap := models.Snapshot{GeneratedAt: now.UTC()}

	var err error
	if snap.Users, err = h.Users.List(ctx, true); err != nil {
		repoError(w, r, err, "")
		return
	}
	if snap.Assets, err = h.Assets.List(ctx, true); err != nil {
		repoError(w, r, err, "")
		return
	}
	if snap.OpenCheckouts, err = h.Ledger.Open(ctx); err != nil {
		repoError(w, r, err, "")
		return
	}
	list, err := h.Reservations.List(ctx)
	if err != nil {
		repoError(w, r, err, "")
		return
	}
	_, snap.Reservations = reservation.Partition(list, now)
	writeJSON(w, http.StatusOK, snap)
}

// Notify republishes a kiosk's change notification. Delivery is best
// effort, so the kiosk always gets 202.
func (h *StatusHandler) Notify(w http.ResponseWriter, r *http.Request) {
	var input struct {
		KioskID string `json:"kiosk_id" validate:"max=100"`
		Event   string `json:"event" validate:"required,oneof=checkout checkin sync"`
	}
	if !decode(w, r, &input) {
		return
	}
	ev := notify.Event{KioskID: input.KioskID, Kind: input.Event, At: h.now().UTC()}
	if id := middleware.KioskID(r.Context()); id != "" {
		ev.KioskID = id
	}

	if h.Broadcaster != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := h.Broadcaster.Publish(ctx, ev); err != nil {
			slog.Warn("change broadcast failed", "kiosk", ev.KioskID, "event", ev.Kind, "error", err)
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
