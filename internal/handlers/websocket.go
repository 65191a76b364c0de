package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"couple-todo-backend/internal/models"
	"couple-todo-backend/internal/roles"
	"couple-todo-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// CoupleStatus is sent once after a session connects
type CoupleStatus struct {
	HasCouple bool           `json:"has_couple"`
	Couple    *models.Couple `json:"couple,omitempty"`
	Labels    roles.LabelSet `json:"labels"`
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub      *services.WSHub
	identity *services.IdentityService
	couples  *services.CoupleService
	tasks    *services.TaskService
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	hub *services.WSHub,
	identity *services.IdentityService,
	couples *services.CoupleService,
	tasks *services.TaskService,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		identity: identity,
		couples:  couples,
		tasks:    tasks,
	}
}

// HandleWebSocket handles GET /ws?token=
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, "token required", http.StatusUnauthorized)
		return
	}

	identity, err := h.identity.ValidateJWT(token)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	ctx := r.Context()
	if _, err := h.identity.EnsureProfile(ctx, identity); err != nil {
		log.Error().Err(err).Str("user_id", identity.ID).Msg("Failed to ensure profile")
		respondServiceError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := h.hub.Register(identity.ID, conn)

	h.hub.NotifyPartnerStatus(h.sendStatus(ctx, client), true)
	defer func() {
		h.hub.Unregister(client)
		// other sessions of the same user keep them online
		if !h.hub.IsOnline(identity.ID) {
			h.hub.NotifyPartnerStatus(h.partnerOf(identity.ID), false)
		}
	}()

	log.Info().Str("user_id", identity.ID).Msg("WebSocket connection established")

	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("user_id", identity.ID).Msg("WebSocket error")
			}
			break
		}

		var msg services.WSMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			h.sendError(client, "Invalid message format")
			continue
		}

		switch msg.Type {
		case "refresh":
			h.sendStatus(ctx, client)
		default:
			h.sendError(client, "Unknown message type")
		}
	}
}

// sendStatus sends couple_status and, for a paired user, the current task
// snapshot. It returns the partner's id.
func (h *WebSocketHandler) sendStatus(ctx context.Context, client *services.WSClient) string {
	profile, couple, err := h.couples.CoupleForUser(ctx, client.UserID)
	if err != nil {
		log.Error().Err(err).Str("user_id", client.UserID).Msg("Failed to load couple status")
		h.sendError(client, "Failed to load couple status")
		return ""
	}

	status := CoupleStatus{
		HasCouple: couple != nil,
		Couple:    couple,
		Labels:    roles.Resolve(profile, couple),
	}
	if err := client.Send(services.WSMessage{Type: services.MsgCoupleStatus, Data: status}); err != nil {
		log.Error().Err(err).Str("user_id", client.UserID).Msg("Failed to send couple_status message")
		return ""
	}
	if couple == nil {
		return ""
	}

	snapshot, err := h.tasks.Snapshot(ctx, couple.Code, client.UserID)
	if err != nil {
		log.Error().Err(err).Str("user_id", client.UserID).Str("couple_code", couple.Code).Msg("Failed to load task snapshot")
		h.sendError(client, "Failed to load tasks")
	} else if err := client.Send(services.WSMessage{Type: services.MsgTasksSnapshot, Data: snapshot}); err != nil {
		log.Error().Err(err).Str("user_id", client.UserID).Msg("Failed to send task snapshot")
	}

	return couple.PartnerOf(client.UserID)
}

// partnerOf looks the partner up again since the couple may have filled
// while the session was open
func (h *WebSocketHandler) partnerOf(userID string) string {
	_, couple, err := h.couples.CoupleForUser(context.Background(), userID)
	if err != nil || couple == nil {
		return ""
	}
	return couple.PartnerOf(userID)
}

func (h *WebSocketHandler) sendError(client *services.WSClient, message string) {
	if err := client.Send(services.WSMessage{Type: services.MsgError, Message: message}); err != nil {
		log.Error().Err(err).Str("user_id", client.UserID).Msg("Failed to send error message")
	}
}
