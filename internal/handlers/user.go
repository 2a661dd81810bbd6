package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/crucial707/keykiosk/internal/models"
	"github.com/crucial707/keykiosk/internal/repo"
)

// ==========================
// UserHandler
// ==========================
type UserHandler struct {
	Repo      *repo.UserRepo
	AuditRepo *repo.AuditRepo
}

// ==========================
// Register User
// ==========================
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var input struct {
		CardID string `json:"card_id" validate:"required,max=255"`
		models.UserDetails
	}
	if !decode(w, r, &input) {
		return
	}

	user, err := h.Repo.Create(r.Context(), strings.TrimSpace(input.CardID), input.UserDetails)
	if err != nil {
		repoError(w, r, err, "")
		return
	}
	h.audit(r, "register", user.ID, user.CardID+" "+user.FullName())
	writeJSON(w, http.StatusCreated, user)
}

// ==========================
// List Users
// ==========================
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Repo.List(r.Context(), r.URL.Query().Get("all") == "true")
	if err != nil {
		repoError(w, r, err, "")
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// ==========================
// Activate / Deactivate
// ==========================
func (h *UserHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		JSONError(w, "invalid user id", http.StatusBadRequest)
		return
	}
	var input struct {
		Active *bool `json:"active" validate:"required"`
	}
	if !decode(w, r, &input) {
		return
	}

	user, err := h.Repo.SetActive(r.Context(), id, *input.Active)
	if err != nil {
		repoError(w, r, err, "user not found")
		return
	}
	action := "deactivate"
	if user.Active {
		action = "activate"
	}
	h.audit(r, action, user.ID, user.CardID)
	writeJSON(w, http.StatusOK, user)
}

// ==========================
// Update User
// ==========================

// UpdateUser corrects a card holder's name. The card is changed through
// ReplaceCard.
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		JSONError(w, "invalid user id", http.StatusBadRequest)
		return
	}
	var input models.UserDetails
	if !decode(w, r, &input) {
		return
	}
	input.FirstName, input.LastName = strings.TrimSpace(input.FirstName), strings.TrimSpace(input.LastName)

	user, err := h.Repo.UpdateName(r.Context(), id, input)
	if err != nil {
		repoError(w, r, err, "user not found")
		return
	}
	h.audit(r, "update", user.ID, user.CardID+" "+user.FullName())
	writeJSON(w, http.StatusOK, user)
}

// ==========================
// Replace Card
// ==========================

// ReplaceCard assigns a new card to user {id}. A card already in use is 409.
func (h *UserHandler) ReplaceCard(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		JSONError(w, "invalid user id", http.StatusBadRequest)
		return
	}
	var input struct {
		CardID string `json:"card_id" validate:"required,max=255"`
	}
	if !decode(w, r, &input) {
		return
	}
	h.replace(w, r, id, strings.TrimSpace(input.CardID))
}

// ReplaceCardByCard is the kiosk's replace-card mode: the holder is named
// by the old card rather than by id.
func (h *UserHandler) ReplaceCardByCard(w http.ResponseWriter, r *http.Request) {
	var input struct {
		OldCardID string `json:"old_card_id" validate:"required,max=255"`
		NewCardID string `json:"new_card_id" validate:"required,max=255"`
	}
	if !decode(w, r, &input) {
		return
	}
	user, err := h.Repo.GetByCard(r.Context(), strings.TrimSpace(input.OldCardID))
	if err != nil {
		repoError(w, r, err, "card not registered")
		return
	}
	h.replace(w, r, user.ID, strings.TrimSpace(input.NewCardID))
}

func (h *UserHandler) replace(w http.ResponseWriter, r *http.Request, id int, card string) {
	user, err := h.Repo.ReplaceCard(r.Context(), id, card)
	if err != nil {
		repoError(w, r, err, "user not found")
		return
	}
	h.audit(r, "replace", user.ID, "card "+user.CardID)
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) audit(r *http.Request, action string, id int, details string) {
	if h.AuditRepo == nil {
		return
	}
	if err := h.AuditRepo.Log(r.Context(), actor(r), action, "user", id, details); err != nil {
		slog.Warn("audit log failed", "action", action, "error", err)
	}
}
