package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// BlobReader serves stored objects by path
type BlobReader interface {
	Get(path string) ([]byte, bool)
}

// BlobHandler serves objects of the in-memory blob backend
type BlobHandler struct {
	blobs BlobReader
}

// NewBlobHandler creates a new blob handler
func NewBlobHandler(blobs BlobReader) *BlobHandler {
	return &BlobHandler{blobs: blobs}
}

// GetBlob handles GET /blobs/*
func (h *BlobHandler) GetBlob(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")

	data, ok := h.blobs.Get(path)
	if !ok {
		respondError(w, "blob not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
