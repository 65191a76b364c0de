package handlers

import (
	"net/http"

	"couple-todo-backend/internal/middleware"
	"couple-todo-backend/internal/models"
	"couple-todo-backend/internal/roles"
	"couple-todo-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// ProfileHandler handles identity record requests
type ProfileHandler struct {
	identity *services.IdentityService
	couples  *services.CoupleService
	hub      *services.WSHub
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(identity *services.IdentityService, couples *services.CoupleService, hub *services.WSHub) *ProfileHandler {
	return &ProfileHandler{
		identity: identity,
		couples:  couples,
		hub:      hub,
	}
}

// MeResponse is the caller's profile with their couple and resolved labels
type MeResponse struct {
	Profile         *models.Profile `json:"profile"`
	Couple          *models.Couple  `json:"couple,omitempty"`
	Labels          roles.LabelSet  `json:"labels"`
	AssigneeOptions []roles.Option  `json:"assignee_options"`
}

// UpdateNicknameRequest represents a nickname change
type UpdateNicknameRequest struct {
	Nickname string `json:"nickname" validate:"required"`
}

// PushTokenRequest represents a device token registration
type PushTokenRequest struct {
	PushToken string `json:"push_token"`
}

// EnsureProfile handles POST /api/v1/me
func (h *ProfileHandler) EnsureProfile(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	profile, err := h.identity.EnsureProfile(r.Context(), identity)
	if err != nil {
		log.Error().Err(err).Str("user_id", identity.ID).Msg("Failed to ensure profile")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, profile)
}

// GetMe handles GET /api/v1/me
func (h *ProfileHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	if _, err := h.identity.EnsureProfile(ctx, identity); err != nil {
		log.Error().Err(err).Str("user_id", identity.ID).Msg("Failed to ensure profile")
		respondServiceError(w, err)
		return
	}

	profile, couple, err := h.couples.CoupleForUser(ctx, identity.ID)
	if err != nil {
		log.Error().Err(err).Str("user_id", identity.ID).Msg("Failed to get couple")
		respondServiceError(w, err)
		return
	}

	labels := roles.Resolve(profile, couple)
	respondJSON(w, http.StatusOK, MeResponse{
		Profile:         profile,
		Couple:          couple,
		Labels:          labels,
		AssigneeOptions: labels.Options(),
	})
}

// UpdateNickname handles PUT /api/v1/me/nickname
func (h *ProfileHandler) UpdateNickname(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	var req UpdateNicknameRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	profile, err := h.identity.UpdateNickname(r.Context(), identity, req.Nickname)
	if err != nil {
		log.Error().Err(err).Str("user_id", identity.ID).Msg("Failed to update nickname")
		respondServiceError(w, err)
		return
	}

	h.broadcastCouple(r, identity.ID)
	respondJSON(w, http.StatusOK, profile)
}

// UpdatePhoto handles PUT /api/v1/me/photo
func (h *ProfileHandler) UpdatePhoto(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	data, name, err := readUpload(w, r, "photo")
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	profile, err := h.identity.UpdatePhoto(r.Context(), identity, name, data)
	if err != nil {
		log.Error().Err(err).Str("user_id", identity.ID).Msg("Failed to update profile photo")
		respondServiceError(w, err)
		return
	}

	h.broadcastCouple(r, identity.ID)
	respondJSON(w, http.StatusOK, profile)
}

// UpdatePushToken handles PUT /api/v1/me/push-token
func (h *ProfileHandler) UpdatePushToken(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	var req PushTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.identity.RegisterPushToken(r.Context(), identity, req.PushToken); err != nil {
		log.Error().Err(err).Str("user_id", identity.ID).Msg("Failed to update push token")
		respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// broadcastCouple pushes the refreshed couple so both members re-resolve labels
func (h *ProfileHandler) broadcastCouple(r *http.Request, userID string) {
	_, couple, err := h.couples.CoupleForUser(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to load couple for broadcast")
		return
	}
	if couple != nil {
		h.hub.NotifyCoupleUpdated(couple)
	}
}
