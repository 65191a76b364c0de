package handlers

import (
	"net/http"
	"time"

	"couple-todo-backend/internal/middleware"
	"couple-todo-backend/internal/models"
	"couple-todo-backend/internal/roles"
	"couple-todo-backend/internal/services"
	"couple-todo-backend/internal/taskview"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// TaskHandler handles shared task requests
type TaskHandler struct {
	tasks   *services.TaskService
	couples *services.CoupleService
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(tasks *services.TaskService, couples *services.CoupleService) *TaskHandler {
	return &TaskHandler{
		tasks:   tasks,
		couples: couples,
	}
}

// CreateTaskRequest represents a new task. Assignee is relative to the caller.
type CreateTaskRequest struct {
	Text     string `json:"text" validate:"required"`
	Assignee string `json:"assignee" validate:"omitempty,oneof=self partner shared"`
	DueDate  string `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
}

// CommentRequest represents a new comment
type CommentRequest struct {
	Text string `json:"text" validate:"required"`
}

// TaskResponse is a task with its assignee resolved for the caller
type TaskResponse struct {
	*models.Task
	AssigneeRelative models.Assignee `json:"assignee_relative"`
	AssigneeLabel    string          `json:"assignee_label"`
}

// TaskListResponse is the filtered and sorted task view
type TaskListResponse struct {
	Tasks  []TaskResponse  `json:"tasks"`
	Counts taskview.Counts `json:"counts"`
	Filter taskview.Filter `json:"filter"`
	Labels roles.LabelSet  `json:"labels"`
}

// ImageURLResponse carries a freshly resolved download URL
type ImageURLResponse struct {
	URL string `json:"url"`
}

func toTaskResponse(task *models.Task, labels roles.LabelSet) TaskResponse {
	return TaskResponse{
		Task:             task,
		AssigneeRelative: labels.Relative(task.Assignee),
		AssigneeLabel:    labels.Display(task.Assignee),
	}
}

// ListTasks handles GET /api/v1/tasks
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	filter, err := taskview.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	profile, couple, err := h.couples.CoupleForUser(ctx, userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if couple == nil {
		respondError(w, "user is not in a couple", http.StatusNotFound)
		return
	}

	tasks, err := h.tasks.ListTasks(ctx, couple.Code, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("couple_code", couple.Code).Msg("Failed to list tasks")
		respondServiceError(w, err)
		return
	}

	labels := roles.Resolve(profile, couple)
	view := taskview.Apply(tasks, filter, labels)

	resp := TaskListResponse{
		Tasks:  make([]TaskResponse, 0, len(view)),
		Counts: taskview.Count(tasks),
		Filter: filter,
		Labels: labels,
	}
	for _, t := range view {
		resp.Tasks = append(resp.Tasks, toTaskResponse(t, labels))
	}

	respondJSON(w, http.StatusOK, resp)
}

// CreateTask handles POST /api/v1/tasks
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req CreateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var due *time.Time
	if req.DueDate != "" {
		d, err := time.Parse(time.DateOnly, req.DueDate)
		if err != nil {
			respondError(w, "due_date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		due = &d
	}

	profile, couple, err := h.couples.CoupleForUser(ctx, userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if couple == nil {
		respondError(w, "user is not in a couple", http.StatusNotFound)
		return
	}

	labels := roles.Resolve(profile, couple)
	assignee := models.AssigneeShared
	if req.Assignee != "" {
		assignee = labels.Stored(models.Assignee(req.Assignee))
	}

	task, err := h.tasks.CreateTask(ctx, services.CreateTaskInput{
		CoupleCode: couple.Code,
		Text:       req.Text,
		Assignee:   assignee,
		DueDate:    due,
		AuthorID:   userID,
	})
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("couple_code", couple.Code).Msg("Failed to create task")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, toTaskResponse(task, labels))
}

// GetTask handles GET /api/v1/tasks/{id}
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	h.respondTask(w, r, func(userID, taskID string) (*models.Task, error) {
		return h.tasks.GetTask(r.Context(), taskID, userID)
	})
}

// ToggleTask handles POST /api/v1/tasks/{id}/toggle
func (h *TaskHandler) ToggleTask(w http.ResponseWriter, r *http.Request) {
	h.respondTask(w, r, func(userID, taskID string) (*models.Task, error) {
		return h.tasks.ToggleCompletion(r.Context(), taskID, userID)
	})
}

// AddComment handles POST /api/v1/tasks/{id}/comments
func (h *TaskHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req CommentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.respondTask(w, r, func(userID, taskID string) (*models.Task, error) {
		return h.tasks.AppendComment(r.Context(), taskID, req.Text, userID)
	})
}

// AddImage handles POST /api/v1/tasks/{id}/images
func (h *TaskHandler) AddImage(w http.ResponseWriter, r *http.Request) {
	data, name, err := readUpload(w, r, "image")
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.respondTask(w, r, func(userID, taskID string) (*models.Task, error) {
		return h.tasks.AppendImage(r.Context(), services.AppendImageInput{
			TaskID:     taskID,
			UploaderID: userID,
			Name:       name,
			Data:       data,
		})
	})
}

// DeleteImage handles DELETE /api/v1/tasks/{id}/images/{imageID}
func (h *TaskHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "imageID")
	h.respondTask(w, r, func(userID, taskID string) (*models.Task, error) {
		return h.tasks.DeleteImage(r.Context(), taskID, imageID, userID)
	})
}

// GetImageURL handles GET /api/v1/tasks/{id}/images/{imageID}/url
func (h *TaskHandler) GetImageURL(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	taskID := chi.URLParam(r, "id")
	imageID := chi.URLParam(r, "imageID")

	url, err := h.tasks.ResolveImageURL(r.Context(), taskID, imageID, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("task_id", taskID).Msg("Failed to resolve image url")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ImageURLResponse{URL: url})
}

// DeleteTask handles DELETE /api/v1/tasks/{id}?confirm=true
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	taskID := chi.URLParam(r, "id")
	confirmed := r.URL.Query().Get("confirm") == "true"

	if err := h.tasks.DeleteTask(r.Context(), taskID, userID, confirmed); err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("task_id", taskID).Msg("Failed to delete task")
		respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// respondTask runs op for the task in the URL and writes it with the caller's labels
func (h *TaskHandler) respondTask(w http.ResponseWriter, r *http.Request, op func(userID, taskID string) (*models.Task, error)) {
	userID := middleware.GetUserID(r.Context())
	taskID := chi.URLParam(r, "id")

	task, err := op(userID, taskID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("task_id", taskID).Msg("Task request failed")
		respondServiceError(w, err)
		return
	}

	labels, err := h.couples.Labels(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toTaskResponse(task, labels))
}
