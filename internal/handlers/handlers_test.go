package handlers

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"couple-todo-backend/internal/blob"
	"couple-todo-backend/internal/broker"
	"couple-todo-backend/internal/imageproc"
	"couple-todo-backend/internal/models"
	"couple-todo-backend/internal/notify"
	"couple-todo-backend/internal/repository/memory"
	"couple-todo-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ann = models.Identity{ID: "user-a", Email: "ann@example.com"}
	ben = models.Identity{ID: "user-b", Email: "ben@example.com"}
	cat = models.Identity{ID: "user-c", Email: "cat@example.com"}
)

type testServer struct {
	*httptest.Server
	identity *services.IdentityService
	blobs    *blob.MemoryStore
	hub      *services.WSHub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.New()
	blobs := blob.NewMemoryStore("http://blobs.local/blobs")
	snapshots := broker.NewMemoryBroker()
	hub := services.NewWSHub()
	snapshots.Subscribe(hub.HandleSnapshot)
	opts := imageproc.DefaultOptions()

	identity := services.NewIdentityService(store.Profiles(), blobs, opts, "handler-secret")
	couples := services.NewCoupleService(store.Couples(), store.Profiles(), notify.Noop{})
	tasks := services.NewTaskService(store.Tasks(), store.Couples(), blobs, snapshots, notify.Noop{}, opts)

	r := chi.NewRouter()
	Routes{
		Auth:      identity,
		Profile:   NewProfileHandler(identity, couples, hub),
		Couple:    NewCoupleHandler(couples, hub),
		Task:      NewTaskHandler(tasks, couples),
		WebSocket: NewWebSocketHandler(hub, identity, couples, tasks),
		Blob:      NewBlobHandler(blobs),
	}.Register(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, identity: identity, blobs: blobs, hub: hub}
}

func (s *testServer) token(t *testing.T, identity models.Identity) string {
	t.Helper()
	token, err := s.identity.GenerateJWT(identity)
	require.NoError(t, err)
	return token
}

// do sends a JSON request as identity and decodes the JSON response into out
func (s *testServer) do(t *testing.T, identity models.Identity, method, path string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+s.token(t, identity))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.send(t, req, out)
}

// upload posts a multipart form with one file field
func (s *testServer) upload(t *testing.T, identity models.Identity, method, path, field string, data []byte, out any) int {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "kitchen.png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+s.token(t, identity))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.send(t, req, out)
}

func (s *testServer) send(t *testing.T, req *http.Request, out any) int {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// pair creates a couple for creator and joins partner into it
func (s *testServer) pair(t *testing.T, creator, partner models.Identity) string {
	t.Helper()
	var couple models.Couple
	require.Equal(t, http.StatusCreated, s.do(t, creator, http.MethodPost, "/api/v1/couples", nil, &couple))
	require.Len(t, couple.Code, 6)
	require.Equal(t, http.StatusOK, s.do(t, partner, http.MethodPost, "/api/v1/couples/join",
		JoinCoupleRequest{Code: couple.Code}, nil))
	return couple.Code
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPIRequiresToken(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/me")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
