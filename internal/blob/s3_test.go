package blob

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method string
	path   string
	body   string
}

func newFakeS3(t *testing.T) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var requests []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, recordedRequest{method: r.Method, path: r.URL.Path, body: string(body)})
		mu.Unlock()

		switch r.Method {
		case http.MethodPut:
			w.Header().Set("ETag", `"etag"`)
			w.WriteHeader(http.StatusOK)
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)

	return srv, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), requests...)
	}
}

func newTestS3Store(t *testing.T, endpoint string) *S3Store {
	t.Helper()
	store, err := NewS3Store(context.Background(), S3Options{
		Region:    "us-east-1",
		Bucket:    "couple-todo",
		AccessKey: "test-access",
		SecretKey: "test-secret",
		Endpoint:  endpoint,
		URLTTL:    time.Hour,
	})
	require.NoError(t, err)
	return store
}

func TestS3Store_UploadAndDelete(t *testing.T) {
	srv, requests := newFakeS3(t)
	store := newTestS3Store(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "images/AB12CD/1_cat.jpg", []byte("jpeg-bytes"), "image/jpeg"))
	require.NoError(t, store.Delete(ctx, "images/AB12CD/1_cat.jpg"))

	got := requests()
	require.Len(t, got, 2)
	assert.Equal(t, http.MethodPut, got[0].method)
	assert.Equal(t, "/couple-todo/images/AB12CD/1_cat.jpg", got[0].path)
	assert.Contains(t, got[0].body, "jpeg-bytes")
	assert.Equal(t, http.MethodDelete, got[1].method)
	assert.Equal(t, "/couple-todo/images/AB12CD/1_cat.jpg", got[1].path)
}

func TestS3Store_DownloadURLIsPresigned(t *testing.T) {
	srv, requests := newFakeS3(t)
	store := newTestS3Store(t, srv.URL)

	url, err := store.DownloadURL(context.Background(), "images/AB12CD/1_cat.jpg")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(url, srv.URL+"/couple-todo/images/AB12CD/1_cat.jpg"))
	assert.Contains(t, url, "X-Amz-Signature=")
	assert.Contains(t, url, "X-Amz-Expires=3600")
	assert.Empty(t, requests(), "presigning must not call the store")
}
