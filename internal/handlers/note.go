package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/crucial707/keykiosk/internal/repo"
)

// ==========================
// NoteHandler
// ==========================

// NoteHandler edits the free-text note shown next to an asset.
type NoteHandler struct {
	Repo      *repo.NoteRepo
	AuditRepo *repo.AuditRepo
}

func (h *NoteHandler) SetNote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		JSONError(w, "invalid asset id", http.StatusBadRequest)
		return
	}
	var input struct {
		Note string `json:"note" validate:"required,max=500"`
	}
	if !decode(w, r, &input) {
		return
	}
	text := strings.TrimSpace(input.Note)
	if text == "" {
		JSONError(w, "note is empty", http.StatusBadRequest)
		return
	}

	note, err := h.Repo.Set(r.Context(), id, text, actor(r))
	if err != nil {
		repoError(w, r, err, "asset not found")
		return
	}
	h.audit(r, "note", id, text)
	writeJSON(w, http.StatusOK, note)
}

func (h *NoteHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		JSONError(w, "invalid asset id", http.StatusBadRequest)
		return
	}
	if err := h.Repo.Delete(r.Context(), id); err != nil {
		repoError(w, r, err, "no note on asset")
		return
	}
	h.audit(r, "clear note", id, "")
	w.WriteHeader(http.StatusNoContent)
}

func (h *NoteHandler) audit(r *http.Request, action string, id int, details string) {
	if h.AuditRepo == nil {
		return
	}
	if err := h.AuditRepo.Log(r.Context(), actor(r), action, "asset", id, details); err != nil {
		slog.Warn("audit log failed", "action", action, "error", err)
	}
}
