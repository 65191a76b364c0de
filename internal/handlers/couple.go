package handlers

import (
	"net/http"

	"couple-todo-backend/internal/middleware"
	"couple-todo-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// CoupleHandler handles pairing requests
type CoupleHandler struct {
	couples *services.CoupleService
	hub     *services.WSHub
}

// NewCoupleHandler creates a new couple handler
func NewCoupleHandler(couples *services.CoupleService, hub *services.WSHub) *CoupleHandler {
	return &CoupleHandler{
		couples: couples,
		hub:     hub,
	}
}

// JoinCoupleRequest represents a request to join a couple
type JoinCoupleRequest struct {
	Code string `json:"code" validate:"required"`
}

// CouplePreview is what a non-member may see of a couple
type CouplePreview struct {
	Code            string `json:"code"`
	Available       bool   `json:"available"`
	CreatorNickname string `json:"creator_nickname"`
}

// CreateCouple handles POST /api/v1/couples
func (h *CoupleHandler) CreateCouple(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	couple, err := h.couples.GenerateCode(r.Context(), identity)
	if err != nil {
		log.Error().Err(err).Str("user_id", identity.ID).Msg("Failed to create couple")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, couple)
}

// JoinCouple handles POST /api/v1/couples/join
func (h *CoupleHandler) JoinCouple(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	var req JoinCoupleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	couple, err := h.couples.JoinWithCode(r.Context(), identity, req.Code)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", identity.ID).
			Str("couple_code", req.Code).
			Msg("Failed to join couple")
		respondServiceError(w, err)
		return
	}

	h.hub.NotifyCoupleJoined(couple)

	respondJSON(w, http.StatusOK, couple)
}

// GetCouple handles GET /api/v1/couples/{code}
func (h *CoupleHandler) GetCouple(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	code := chi.URLParam(r, "code")

	couple, err := h.couples.LookupCouple(r.Context(), code)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if !couple.HasMember(userID) {
		respondJSON(w, http.StatusOK, CouplePreview{
			Code:            couple.Code,
			Available:       couple.Available(),
			CreatorNickname: couple.CreatorNickname,
		})
		return
	}

	respondJSON(w, http.StatusOK, couple)
}
