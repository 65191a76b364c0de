package handlers

import (
	"net/http"

	"couple-todo-backend/internal/middleware"

	"github.com/go-chi/chi/v5"
)

// Routes groups the handlers served by the API
type Routes struct {
	Auth      middleware.TokenValidator
	Profile   *ProfileHandler
	Couple    *CoupleHandler
	Task      *TaskHandler
	WebSocket *WebSocketHandler
	// Blob is set only for the in-memory blob backend
	Blob *BlobHandler
}

// Register mounts every route on r
func (rt Routes) Register(r chi.Router) {
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(rt.Auth))

		r.Post("/me", rt.Profile.EnsureProfile)
		r.Get("/me", rt.Profile.GetMe)
		r.Put("/me/nickname", rt.Profile.UpdateNickname)
		r.Put("/me/photo", rt.Profile.UpdatePhoto)
		r.Put("/me/push-token", rt.Profile.UpdatePushToken)

		r.Post("/couples", rt.Couple.CreateCouple)
		r.Post("/couples/join", rt.Couple.JoinCouple)
		r.Get("/couples/{code}", rt.Couple.GetCouple)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", rt.Task.ListTasks)
			r.Post("/", rt.Task.CreateTask)
			r.Get("/{id}", rt.Task.GetTask)
			r.Delete("/{id}", rt.Task.DeleteTask)
			r.Post("/{id}/toggle", rt.Task.ToggleTask)
			r.Post("/{id}/comments", rt.Task.AddComment)
			r.Post("/{id}/images", rt.Task.AddImage)
			r.Get("/{id}/images/{imageID}/url", rt.Task.GetImageURL)
			r.Delete("/{id}/images/{imageID}", rt.Task.DeleteImage)
		})
	})

	r.Get("/ws", rt.WebSocket.HandleWebSocket)

	if rt.Blob != nil {
		r.Get("/blobs/*", rt.Blob.GetBlob)
	}
}
