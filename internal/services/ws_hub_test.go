package services

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSClient_SendGivesUpOnStalledReader(t *testing.T) {
	old := writeWait
	writeWait = 50 * time.Millisecond
	t.Cleanup(func() { writeWait = old })

	hub := NewWSHub()
	registered := make(chan *WSClient, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		registered <- hub.Register("user-a", conn)
	}))
	t.Cleanup(srv.Close)

	// the peer connects and never reads
	peer, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = peer.Close() })

	var client *WSClient
	select {
	case client = <-registered:
	case <-time.After(2 * time.Second):
		t.Fatal("session never registered")
	}
	t.Cleanup(func() { hub.Unregister(client) })

	payload := WSMessage{Type: MsgTasksSnapshot, Data: strings.Repeat("x", 1<<20)}
	start := time.Now()
	var sendErr error
	for i := 0; i < 256 && sendErr == nil; i++ {
		sendErr = client.Send(payload)
	}
	assert.Error(t, sendErr)
	assert.Less(t, time.Since(start), 10*time.Second)
}
