package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/crucial707/keykiosk/internal/models"
	"github.com/crucial707/keykiosk/internal/repo"
	"github.com/crucial707/keykiosk/internal/reservation"
)

// ReservationHandler serves reservation admin.
type ReservationHandler struct {
	Repo      *repo.ReservationRepo
	AuditRepo *repo.AuditRepo
	Now       func() time.Time
}

// ListReservations splits reservations into upcoming and past.
func (h *ReservationHandler) ListReservations(w http.ResponseWriter, r *http.Request) {
	list, err := h.Repo.List(r.Context())
	if err != nil {
		repoError(w, r, err, "")
		return
	}
	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	past, upcoming := reservation.Partition(list, now)
	if past == nil {
		past = []models.Reservation{}
	}
	if upcoming == nil {
		upcoming = []models.Reservation{}
	}
	writeJSON(w, http.StatusOK, map[string][]models.Reservation{
		"upcoming": upcoming,
		"past":     past,
	})
}

func (h *ReservationHandler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req models.ReservationRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Repo.Create(r.Context(), req, actor(r))
	if err != nil {
		repoError(w, r, err, "asset or card not registered")
		return
	}
	h.audit(r, "reserve", res.ID, fmt.Sprintf("%s for %s", res.AssetCode, res.ReservedFor()))
	writeJSON(w, http.StatusCreated, res)
}

func (h *ReservationHandler) DeleteReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		JSONError(w, "invalid reservation id", http.StatusBadRequest)
		return
	}
	if err := h.Repo.Delete(r.Context(), id); err != nil {
		repoError(w, r, err, "reservation not found")
		return
	}
	h.audit(r, "unreserve", id, "")
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReservationHandler) audit(r *http.Request, action string, id int, details string) {
	if h.AuditRepo == nil {
		return
	}
	if err := h.AuditRepo.Log(r.Context(), actor(r), action, "reservation", id, details); err != nil {
		slog.Warn("audit log failed", "action", action, "error", err)
	}
}
