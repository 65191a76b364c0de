package livesync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"couple-todo-backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// snapshotMessageType matches the server's task snapshot push
const snapshotMessageType = "tasks_snapshot"

const closeWait = time.Second

// WSSource reads task snapshots from the server's websocket endpoint
type WSSource struct {
	endpoint string
	token    string
	dialer   *websocket.Dialer
}

// NewWSSource creates a source for the server at baseURL (http, https, ws or
// wss) authenticating with token
func NewWSSource(baseURL, token string) (*WSSource, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"

	return &WSSource{
		endpoint: u.String(),
		token:    token,
		dialer:   websocket.DefaultDialer,
	}, nil
}

type envelope struct {
	Type    string          `json:"type"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Subscribe opens one websocket session and hands every snapshot of
// coupleCode to handler until released. A session that drops before release
// is reported to onError.
func (s *WSSource) Subscribe(ctx context.Context, coupleCode string, handler SnapshotHandler, onError ErrorHandler) (func() error, error) {
	q := url.Values{}
	q.Set("token", s.token)

	conn, _, err := s.dialer.DialContext(ctx, s.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", s.endpoint, err)
	}

	var released atomic.Bool
	done := make(chan struct{})
	go func() {
		var ended error
		defer func() {
			close(done)
			// after done so onError may release
			if ended != nil && onError != nil {
				onError(ended)
			}
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if !released.Load() {
					ended = fmt.Errorf("task subscription to %s ended: %w", coupleCode, err)
				}
				return
			}

			var msg envelope
			if err := json.Unmarshal(data, &msg); err != nil {
				log.Error().Err(err).Msg("Failed to decode websocket message")
				continue
			}
			switch msg.Type {
			case snapshotMessageType:
				var snapshot models.TaskSnapshot
				if err := json.Unmarshal(msg.Data, &snapshot); err != nil {
					log.Error().Err(err).Msg("Failed to decode task snapshot")
					continue
				}
				if snapshot.CoupleCode == coupleCode {
					handler(&snapshot)
				}
			case "error":
				log.Warn().Str("couple_code", coupleCode).Str("message", msg.Message).Msg("Server reported an error")
			}
		}
	}()

	release := func() error {
		released.Store(true)
		deadline := time.Now().Add(closeWait)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		err := conn.Close()
		<-done
		return err
	}
	return release, nil
}
