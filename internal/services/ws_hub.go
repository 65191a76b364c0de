package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"couple-todo-backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocket message types
const (
	MsgTasksSnapshot = "tasks_snapshot"
	MsgCoupleStatus  = "couple_status"
	MsgCoupleJoined  = "couple_joined"
	MsgCoupleUpdated = "couple_updated"
	MsgPartnerStatus = "partner_status"
	MsgError         = "error"
)

// writeWait bounds a single write to a session
var writeWait = 10 * time.Second

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string      `json:"type"`
	Online  *bool       `json:"online,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// WSClient is one open session of a user. Writes are serialized per connection.
type WSClient struct {
	UserID string
	conn   *websocket.Conn
	mu     sync.Mutex
}

// Send writes message to this session only
func (c *WSClient) Send(message WSMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// WSHub manages WebSocket connections. A user may hold several sessions at once.
type WSHub struct {
	mu      sync.RWMutex
	clients map[string]map[*WSClient]struct{}
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		clients: make(map[string]map[*WSClient]struct{}),
	}
}

// Register registers a new WebSocket connection for a user
func (h *WSHub) Register(userID string, conn *websocket.Conn) *WSClient {
	client := &WSClient{UserID: userID, conn: conn}

	h.mu.Lock()
	sessions, ok := h.clients[userID]
	if !ok {
		sessions = make(map[*WSClient]struct{})
		h.clients[userID] = sessions
	}
	sessions[client] = struct{}{}
	h.mu.Unlock()

	log.Info().Str("user_id", userID).Msg("WebSocket connection registered")
	return client
}

// Unregister removes and closes one session
func (h *WSHub) Unregister(client *WSClient) {
	h.mu.Lock()
	sessions, ok := h.clients[client.UserID]
	if ok {
		if _, exists := sessions[client]; exists {
			delete(sessions, client)
			if len(sessions) == 0 {
				delete(h.clients, client.UserID)
			}
		} else {
			ok = false
		}
	}
	h.mu.Unlock()

	if ok {
		client.conn.Close()
		log.Info().Str("user_id", client.UserID).Msg("WebSocket connection unregistered")
	}
}

// SendToUser sends a message to every session of a user
func (h *WSHub) SendToUser(userID string, message WSMessage) error {
	h.mu.RLock()
	sessions := make([]*WSClient, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		sessions = append(sessions, c)
	}
	h.mu.RUnlock()

	if len(sessions) == 0 {
		return fmt.Errorf("user %s is not connected", userID)
	}

	var firstErr error
	for _, c := range sessions {
		if err := c.Send(message); err != nil {
			h.Unregister(c)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// IsOnline checks if a user has at least one open session
func (h *WSHub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// HandleSnapshot forwards a confirmed snapshot to the online members of its couple
func (h *WSHub) HandleSnapshot(snapshot *models.TaskSnapshot) {
	message := WSMessage{Type: MsgTasksSnapshot, Data: snapshot}
	for _, memberID := range snapshot.MemberIDs {
		if !h.IsOnline(memberID) {
			continue
		}
		if err := h.SendToUser(memberID, message); err != nil {
			log.Error().
				Err(err).
				Str("user_id", memberID).
				Str("couple_code", snapshot.CoupleCode).
				Msg("Failed to push task snapshot")
		}
	}
}

// NotifyPartnerStatus notifies partner about online/offline status
func (h *WSHub) NotifyPartnerStatus(partnerID string, online bool) {
	if partnerID == "" || !h.IsOnline(partnerID) {
		return
	}

	message := WSMessage{
		Type:   MsgPartnerStatus,
		Online: &online,
	}

	if err := h.SendToUser(partnerID, message); err != nil {
		log.Error().
			Err(err).
			Str("user_id", partnerID).
			Msg("Failed to notify partner status")
	}
}

// NotifyCoupleJoined tells the creator that the partner slot was claimed
func (h *WSHub) NotifyCoupleJoined(couple *models.Couple) {
	if !h.IsOnline(couple.CreatorID) {
		return
	}
	if err := h.SendToUser(couple.CreatorID, WSMessage{Type: MsgCoupleJoined, Data: couple}); err != nil {
		log.Error().Err(err).Str("user_id", couple.CreatorID).Msg("Failed to notify couple joined")
	}
}

// NotifyCoupleUpdated pushes the refreshed couple record to both members,
// e.g. after a nickname change
func (h *WSHub) NotifyCoupleUpdated(couple *models.Couple) {
	message := WSMessage{Type: MsgCoupleUpdated, Data: couple}
	for _, memberID := range couple.MemberIDs() {
		if !h.IsOnline(memberID) {
			continue
		}
		if err := h.SendToUser(memberID, message); err != nil {
			log.Error().Err(err).Str("user_id", memberID).Msg("Failed to notify couple update")
		}
	}
}
