package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"couple-todo-backend/internal/models"

	"github.com/stretchr/testify/assert"
)

type staticValidator map[string]models.Identity

func (v staticValidator) ValidateJWT(token string) (models.Identity, error) {
	identity, ok := v[token]
	if !ok {
		return models.Identity{}, errors.New("bad token")
	}
	return identity, nil
}

func TestAuthMiddleware(t *testing.T) {
	validator := staticValidator{"good": {ID: "user-a", Email: "ann@example.com"}}

	var seen models.Identity
	handler := AuthMiddleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetIdentity(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer good", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	assert.Equal(t, "user-a", seen.ID)
	assert.Equal(t, "ann@example.com", seen.Email)
}

func TestGetUserID_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", GetUserID(req.Context()))
}
