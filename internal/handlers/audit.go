package handlers

import (
	"net/http"

	"github.com/crucial707/keykiosk/internal/models"
	"github.com/crucial707/keykiosk/internal/repo"
)

// AuditHandler serves audit log endpoints.
type AuditHandler struct {
	Repo *repo.AuditRepo
}

// ListAudit returns recent audit log entries, newest first. Query: limit (default 50, max 200), offset.
func (h *AuditHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r, 50, 200)
	entries, err := h.Repo.List(r.Context(), limit, offset)
	if err != nil {
		repoError(w, r, err, "")
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
