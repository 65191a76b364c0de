package livesync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"couple-todo-backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// snapshotServer pushes the given messages to every session that presents token
func snapshotServer(t *testing.T, token string, messages ...any) (*httptest.Server, <-chan struct{}) {
	t.Helper()
	closed := make(chan struct{}, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" || r.URL.Query().Get("token") != token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, m := range messages {
			if err := conn.WriteJSON(m); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closed <- struct{}{}
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, closed
}

func message(typ string, data any) map[string]any {
	raw, _ := json.Marshal(data)
	return map[string]any{"type": typ, "data": json.RawMessage(raw)}
}

func TestNewWSSource_Endpoint(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws"},
		{"https://api.example.com/", "wss://api.example.com/ws"},
		{"wss://api.example.com/prefix", "wss://api.example.com/prefix/ws"},
	}
	for _, tt := range tests {
		src, err := NewWSSource(tt.base, "tok")
		require.NoError(t, err)
		assert.Equal(t, tt.want, src.endpoint)
	}

	_, err := NewWSSource("ftp://example.com", "tok")
	assert.Error(t, err)
}

func TestWSSource_DeliversMatchingSnapshots(t *testing.T) {
	srv, closed := snapshotServer(t, "tok",
		message("couple_status", map[string]any{"has_couple": true}),
		message("tasks_snapshot", models.TaskSnapshot{CoupleCode: "OTHER0", Tasks: []*models.Task{{ID: "x"}}}),
		message("tasks_snapshot", models.TaskSnapshot{CoupleCode: "ABC123", Tasks: []*models.Task{{ID: "t1", Text: "Buy milk"}}}),
	)

	src, err := NewWSSource(srv.URL, "tok")
	require.NoError(t, err)

	got := make(chan *models.TaskSnapshot, 4)
	ended := make(chan error, 1)
	release, err := src.Subscribe(context.Background(), "ABC123",
		func(s *models.TaskSnapshot) { got <- s },
		func(err error) { ended <- err })
	require.NoError(t, err)

	select {
	case s := <-got:
		assert.Equal(t, "ABC123", s.CoupleCode)
		require.Len(t, s.Tasks, 1)
		assert.Equal(t, "Buy milk", s.Tasks[0].Text)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
	}

	require.NoError(t, release())
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not see the session close")
	}
	assert.Empty(t, got)
	assert.Empty(t, ended, "release is not reported as an error")
}

func TestWSSource_BadToken(t *testing.T) {
	srv, _ := snapshotServer(t, "tok")

	src, err := NewWSSource(srv.URL, "wrong")
	require.NoError(t, err)

	_, err = src.Subscribe(context.Background(), "ABC123", func(*models.TaskSnapshot) {}, nil)
	assert.Error(t, err)
}

func TestSynchronizer_OverWebSocket(t *testing.T) {
	srv, _ := snapshotServer(t, "tok",
		message("tasks_snapshot", models.TaskSnapshot{CoupleCode: "ABC123", Tasks: []*models.Task{{ID: "t1"}, {ID: "t2"}}}),
	)
	src, err := NewWSSource(srv.URL, "tok")
	require.NoError(t, err)

	s := New(src)
	changed := make(chan []*models.Task, 1)
	s.OnChange(func(tasks []*models.Task) { changed <- tasks })

	require.NoError(t, s.SetCoupleCode(context.Background(), "abc123"))

	select {
	case tasks := <-changed:
		assert.Len(t, tasks, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("synchronizer never became active")
	}
	assert.Equal(t, StateActive, s.State())
	require.NoError(t, s.Close())
	assert.Equal(t, StateUnsubscribed, s.State())
}

// droppingServer sends one snapshot per session and then cuts the connection
func droppingServer(t *testing.T, dials *atomic.Int32) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		dials.Add(1)
		_ = conn.WriteJSON(message("tasks_snapshot", models.TaskSnapshot{CoupleCode: "ABC123", Tasks: []*models.Task{{ID: "t1"}}}))
		_ = conn.NetConn().Close()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSynchronizer_ConnectionDropped(t *testing.T) {
	var dials atomic.Int32
	srv := droppingServer(t, &dials)
	src, err := NewWSSource(srv.URL, "tok")
	require.NoError(t, err)

	s := New(src)
	changed := make(chan []*models.Task, 4)
	s.OnChange(func(tasks []*models.Task) { changed <- tasks })
	failed := make(chan string, 4)
	s.OnError(func(code string, err error) {
		assert.Error(t, err)
		failed <- code
	})

	require.NoError(t, s.SetCoupleCode(context.Background(), "ABC123"))

	select {
	case tasks := <-changed:
		assert.Len(t, tasks, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot before the drop")
	}
	select {
	case code := <-failed:
		assert.Equal(t, "ABC123", code)
	case <-time.After(2 * time.Second):
		t.Fatal("dropped connection was not reported")
	}
	assert.Equal(t, StateUnsubscribed, s.State())
	assert.Empty(t, s.Tasks())

	require.NoError(t, s.SetCoupleCode(context.Background(), "ABC123"))
	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("resubscribe did not deliver")
	}
	assert.Equal(t, int32(2), dials.Load())
	require.NoError(t, s.Close())
}
