package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/crucial707/keykiosk/internal/models"
	"github.com/crucial707/keykiosk/internal/repo"
	"github.com/crucial707/keykiosk/internal/timeutil"
)

// LedgerRepo is the part of *repo.LedgerRepo the handlers use.
type LedgerRepo interface {
	Checkout(ctx context.Context, req models.OfflineCheckout, source string) (models.ApplyResult, error)
	Checkin(ctx context.Context, req models.OfflineCheckin, source string) (models.ApplyResult, error)
	History(ctx context.Context, assetCode string, limit, offset int) ([]models.CheckoutRecord, error)
}

// ==========================
// LedgerHandler
// ==========================
type LedgerHandler struct {
	Repo      LedgerRepo
	AuditRepo *repo.AuditRepo

	// Zone reads offline timestamps sent without an offset; nil means UTC.
	Zone *time.Location
}

func (h *LedgerHandler) zone() *time.Location {
	if h.Zone == nil {
		return time.UTC
	}
	return h.Zone
}

// Offline bodies take the timestamp as text so that naive local times from
// older kiosks are read in the site zone.
type offlineCheckoutBody struct {
	models.OfflineCheckout
	Timestamp string `json:"timestamp"`
}

type offlineCheckinBody struct {
	models.OfflineCheckin
	Timestamp string `json:"timestamp"`
}

// occurredAt parses the replayed timestamp, answering 400 itself when it
// is missing or unreadable.
func (h *LedgerHandler) occurredAt(w http.ResponseWriter, raw string) (*time.Time, bool) {
	if strings.TrimSpace(raw) == "" {
		JSONValidationError(w, "validation failed", map[string]string{"timestamp": "required"}, http.StatusBadRequest)
		return nil, false
	}
	t, err := timeutil.Parse(raw, h.zone())
	if err != nil {
		JSONValidationError(w, "validation failed", map[string]string{"timestamp": "format"}, http.StatusBadRequest)
		return nil, false
	}
	return &t, true
}

// ==========================
// Live writes (server clock)
// ==========================

func (h *LedgerHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req models.OfflineCheckout
	if !decode(w, r, &req) {
		return
	}
	req.OccurredAt = nil
	res, err := h.Repo.Checkout(r.Context(), req, models.SourceLive)
	if err != nil {
		h.ledgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *LedgerHandler) Checkin(w http.ResponseWriter, r *http.Request) {
	var req models.OfflineCheckin
	if !decode(w, r, &req) {
		return
	}
	req.OccurredAt = nil
	res, err := h.Repo.Checkin(r.Context(), req, models.SourceLive)
	if err != nil {
		h.ledgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ==========================
// Offline replay (kiosk clock, idempotent)
// ==========================

func (h *LedgerHandler) OfflineCheckout(w http.ResponseWriter, r *http.Request) {
	var body offlineCheckoutBody
	if !decode(w, r, &body) {
		return
	}
	at, ok := h.occurredAt(w, body.Timestamp)
	if !ok {
		return
	}
	req := body.OfflineCheckout
	req.OccurredAt = at
	res, err := h.Repo.Checkout(r.Context(), req, models.SourceOffline)
	if err != nil {
		h.ledgerError(w, r, err)
		return
	}
	if res.Applied {
		when, _ := timeutil.Canonical(body.Timestamp, h.zone())
		h.audit(r, "offline_checkout", res.RecordID,
			fmt.Sprintf("%s to %s at %s", req.AssetCode, req.UserCardID, when))
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *LedgerHandler) OfflineCheckin(w http.ResponseWriter, r *http.Request) {
	var body offlineCheckinBody
	if !decode(w, r, &body) {
		return
	}
	at, ok := h.occurredAt(w, body.Timestamp)
	if !ok {
		return
	}
	req := body.OfflineCheckin
	req.OccurredAt = at
	res, err := h.Repo.Checkin(r.Context(), req, models.SourceOffline)
	if err != nil {
		h.ledgerError(w, r, err)
		return
	}
	if res.Applied {
		when, _ := timeutil.Canonical(body.Timestamp, h.zone())
		h.audit(r, "offline_checkin", res.RecordID, fmt.Sprintf("%s at %s", req.AssetCode, when))
	}
	writeJSON(w, http.StatusOK, res)
}

// ==========================
// History
// ==========================

// History lists checkout records newest first. Query: asset, limit (default 50), offset.
func (h *LedgerHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r, 50, 500)
	list, err := h.Repo.History(r.Context(), strings.TrimSpace(r.URL.Query().Get("asset")), limit, offset)
	if err != nil {
		repoError(w, r, err, "asset not found")
		return
	}
	if list == nil {
		list = []models.CheckoutRecord{}
	}
	writeJSON(w, http.StatusOK, list)
}

// ledgerError answers 422 for a write naming a card or asset the server
// does not know and cannot register from the request.
func (h *LedgerHandler) ledgerError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, repo.ErrNotFound) {
		JSONError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	repoError(w, r, err, "not found")
}

func (h *LedgerHandler) audit(r *http.Request, action string, id int, details string) {
	if h.AuditRepo == nil {
		return
	}
	if err := h.AuditRepo.Log(r.Context(), actor(r), action, "checkout", id, details); err != nil {
		slog.Warn("audit log failed", "action", action, "error", err)
	}
}
