package handler

import (
	"net/http"

	"github.com/biohunter/internal/domain"
	"github.com/go-chi/chi/v5"
)

type creditRequest struct {
	Amount int64 `json:"amount"`
}

// GetPlayer handles GET /players/{playerID}
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")

	player, err := h.svc.Players.Profile(r.Context(), playerID)
	if err != nil {
		h.writeServiceError(w, r, "get player", playerID, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "player": player})
}

// ProvisionPlayer handles PUT /players/{playerID}
func (h *Handler) ProvisionPlayer(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")

	var req domain.ProvisionRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	player, created, err := h.svc.Players.Provision(r.Context(), playerID, req)
	if err != nil {
		h.writeServiceError(w, r, "provision player", playerID, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, map[string]interface{}{"success": true, "created": created, "player": player})
}

// CreditPlayer handles POST /players/{playerID}/credit
func (h *Handler) CreditPlayer(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")

	var req creditRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	balance, err := h.svc.Players.Credit(r.Context(), playerID, req.Amount)
	if err != nil {
		h.writeServiceError(w, r, "credit player", playerID, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "currencyBalance": balance})
}
