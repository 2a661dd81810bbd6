package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/crucial707/keykiosk/internal/models"
	"github.com/crucial707/keykiosk/internal/repo"
)

type AssetHandler struct {
	Repo      *repo.AssetRepo
	AuditRepo *repo.AuditRepo
}

//
// ==========================
// Register Asset
// ==========================
//

func (h *AssetHandler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Code string `json:"code" validate:"required,max=255"`
		models.AssetDetails
	}
	if !decode(w, r, &input) {
		return
	}

	asset, err := h.Repo.Create(r.Context(), strings.TrimSpace(input.Code), input.AssetDetails)
	if err != nil {
		repoError(w, r, err, "")
		return
	}
	h.audit(r, "register", asset.ID, fmt.Sprintf("%s (%s)", asset.Code, asset.Name))
	writeJSON(w, http.StatusCreated, asset)
}

//
// ==========================
// List Assets
// ==========================
//

// ListAssets returns active assets; ?all=true includes deactivated ones.
func (h *AssetHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.Repo.List(r.Context(), r.URL.Query().Get("all") == "true")
	if err != nil {
		repoError(w, r, err, "")
		return
	}
	if assets == nil {
		assets = []models.Asset{}
	}
	writeJSON(w, http.StatusOK, assets)
}

//
// ==========================
// Activate / Deactivate
// ==========================
//

func (h *AssetHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		JSONError(w, "invalid asset id", http.StatusBadRequest)
		return
	}
	var input struct {
		Active *bool `json:"active" validate:"required"`
	}
	if !decode(w, r, &input) {
		return
	}

	asset, err := h.Repo.SetActive(r.Context(), id, *input.Active)
	if err != nil {
		repoError(w, r, err, "asset not found")
		return
	}
	action := "deactivate"
	if asset.Active {
		action = "activate"
	}
	h.audit(r, action, asset.ID, asset.Code)
	writeJSON(w, http.StatusOK, asset)
}

//
// ==========================
// Update Asset
// ==========================
//

// UpdateAsset edits name, category and location. The code is changed
// through ReplaceCode.
func (h *AssetHandler) UpdateAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		JSONError(w, "invalid asset id", http.StatusBadRequest)
		return
	}
	var input models.AssetDetails
	if !decode(w, r, &input) {
		return
	}
	input.Name = strings.TrimSpace(input.Name)
	input.Category = strings.TrimSpace(input.Category)
	input.Location = strings.TrimSpace(input.Location)

	asset, err := h.Repo.UpdateDetails(r.Context(), id, input)
	if err != nil {
		repoError(w, r, err, "asset not found")
		return
	}
	h.audit(r, "update", asset.ID, fmt.Sprintf("%s (%s, %s, %s)", asset.Code, asset.Name, asset.Category, asset.Location))
	writeJSON(w, http.StatusOK, asset)
}

//
// ==========================
// Replace Code
// ==========================
//

// ReplaceCode moves an asset onto a new fob. A code already in use is 409.
func (h *AssetHandler) ReplaceCode(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		JSONError(w, "invalid asset id", http.StatusBadRequest)
		return
	}
	var input struct {
		Code string `json:"code" validate:"required,max=255"`
	}
	if !decode(w, r, &input) {
		return
	}

	asset, err := h.Repo.ReplaceCode(r.Context(), id, strings.TrimSpace(input.Code))
	if err != nil {
		repoError(w, r, err, "asset not found")
		return
	}
	h.audit(r, "replace", asset.ID, "code "+asset.Code)
	writeJSON(w, http.StatusOK, asset)
}

func (h *AssetHandler) audit(r *http.Request, action string, id int, details string) {
	if h.AuditRepo == nil {
		return
	}
	if err := h.AuditRepo.Log(r.Context(), actor(r), action, "asset", id, details); err != nil {
		slog.Warn("audit log failed", "action", action, "error", err)
	}
}
