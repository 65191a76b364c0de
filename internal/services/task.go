package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"couple-todo-backend/internal/blob"
	"couple-todo-backend/internal/imageproc"
	"couple-todo-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TaskService handles the shared task store of a couple
type TaskService struct {
	tasks     TaskStore
	couples   CoupleStore
	blobs     blob.Store
	publisher SnapshotPublisher
	notifier  Notifier
	images    imageproc.Options
	now       func() time.Time
	newID     func() string
}

// NewTaskService creates a new task service
func NewTaskService(
	tasks TaskStore,
	couples CoupleStore,
	blobs blob.Store,
	publisher SnapshotPublisher,
	notifier Notifier,
	images imageproc.Options,
) *TaskService {
	return &TaskService{
		tasks:     tasks,
		couples:   couples,
		blobs:     blobs,
		publisher: publisher,
		notifier:  notifier,
		images:    images,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// CreateTaskInput holds the fields of a new task. Assignee is in stored form.
type CreateTaskInput struct {
	CoupleCode string
	Text       string
	Assignee   models.Assignee
	DueDate    *time.Time
	AuthorID   string
}

// AppendImageInput holds an uploaded image for a task
type AppendImageInput struct {
	TaskID     string
	CoupleCode string
	UploaderID string
	Name       string
	Data       []byte
}

// CreateTask validates and stores a new task
func (s *TaskService) CreateTask(ctx context.Context, in CreateTaskInput) (*models.Task, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, validationError("text is required")
	}
	code := NormalizeCode(in.CoupleCode)
	if code == "" {
		return nil, validationError("couple code is required")
	}
	assignee := in.Assignee
	if assignee == "" {
		assignee = models.AssigneeShared
	}
	if !assignee.Valid() {
		return nil, validationError("unknown assignee %q", in.Assignee)
	}

	couple, err := s.couples.GetByCode(ctx, code)
	if err != nil {
		return nil, storeError("get couple", err)
	}
	if !couple.HasMember(in.AuthorID) {
		return nil, fmt.Errorf("couple %s: %w", code, ErrForbidden)
	}

	task := &models.Task{
		ID:         s.newID(),
		CoupleCode: code,
		Text:       in.Text,
		Assignee:   assignee,
		DueDate:    dateOnly(in.DueDate),
		Comments:   []models.Comment{},
		Images:     []models.Image{},
		CreatedBy:  in.AuthorID,
		CreatedAt:  s.timestamp(),
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, storeError("create task", err)
	}

	log.Info().Str("task_id", task.ID).Str("couple_code", code).Str("user_id", in.AuthorID).Msg("Task created")

	s.publish(ctx, couple)
	s.notifyPartner(ctx, couple, in.AuthorID, "New task", strings.TrimSpace(in.Text))
	return task, nil
}

// GetTask returns one task of the caller's couple
func (s *TaskService) GetTask(ctx context.Context, taskID, actorID string) (*models.Task, error) {
	task, _, err := s.load(ctx, taskID, actorID)
	return task, err
}

// ListTasks returns the couple's tasks, newest first
func (s *TaskService) ListTasks(ctx context.Context, coupleCode, actorID string) ([]*models.Task, error) {
	snapshot, err := s.Snapshot(ctx, coupleCode, actorID)
	if err != nil {
		return nil, err
	}
	return snapshot.Tasks, nil
}

// Snapshot returns the confirmed task collection of a couple
func (s *TaskService) Snapshot(ctx context.Context, coupleCode, actorID string) (*models.TaskSnapshot, error) {
	couple, err := s.couples.GetByCode(ctx, NormalizeCode(coupleCode))
	if err != nil {
		return nil, storeError("get couple", err)
	}
	if !couple.HasMember(actorID) {
		return nil, fmt.Errorf("couple %s: %w", couple.Code, ErrForbidden)
	}
	return s.snapshot(ctx, couple)
}

// ToggleCompletion flips the completion flag. Concurrent toggles are last write wins.
func (s *TaskService) ToggleCompletion(ctx context.Context, taskID, actorID string) (*models.Task, error) {
	task, couple, err := s.load(ctx, taskID, actorID)
	if err != nil {
		return nil, err
	}

	if err := s.tasks.SetCompleted(ctx, taskID, !task.Completed, actorID, s.timestamp()); err != nil {
		return nil, storeError("update task", err)
	}

	return s.reload(ctx, taskID, couple)
}

// DeleteTask hard-deletes a task. Image blobs of the task are left in place.
func (s *TaskService) DeleteTask(ctx context.Context, taskID, actorID string, confirmed bool) error {
	if !confirmed {
		return validationError("task deletion must be confirmed")
	}

	_, couple, err := s.load(ctx, taskID, actorID)
	if err != nil {
		return err
	}

	if err := s.tasks.Delete(ctx, taskID); err != nil {
		return storeError("delete task", err)
	}

	log.Info().Str("task_id", taskID).Str("couple_code", couple.Code).Str("user_id", actorID).Msg("Task deleted")

	s.publish(ctx, couple)
	return nil
}

// AppendComment adds a comment authored by authorID
func (s *TaskService) AppendComment(ctx context.Context, taskID, text, authorID string) (*models.Task, error) {
	if strings.TrimSpace(text) == "" {
		return nil, validationError("comment text is required")
	}

	_, couple, err := s.load(ctx, taskID, authorID)
	if err != nil {
		return nil, err
	}

	comment := &models.Comment{
		ID:        s.newID(),
		Text:      text,
		AuthorID:  authorID,
		CreatedAt: s.timestamp(),
	}
	if err := s.tasks.AddComment(ctx, taskID, comment); err != nil {
		return nil, storeError("add comment", err)
	}

	task, err := s.reload(ctx, taskID, couple)
	if err != nil {
		return nil, err
	}
	s.notifyPartner(ctx, couple, authorID, "New comment", strings.TrimSpace(text))
	return task, nil
}

// AppendImage downscales and uploads an image, then records it on the task.
// The uploaded blob is removed again if the record cannot be written.
func (s *TaskService) AppendImage(ctx context.Context, in AppendImageInput) (*models.Task, error) {
	if len(in.Data) == 0 {
		return nil, validationError("image is required")
	}

	task, couple, err := s.load(ctx, in.TaskID, in.UploaderID)
	if err != nil {
		return nil, err
	}
	if in.CoupleCode != "" && NormalizeCode(in.CoupleCode) != task.CoupleCode {
		return nil, validationError("task %s does not belong to couple %s", task.ID, in.CoupleCode)
	}

	resized, err := imageproc.Downscale(in.Data, s.images)
	if err != nil {
		return nil, validationError("%v", err)
	}

	now := s.timestamp()
	name := cleanName(in.Name)
	storagePath := fmt.Sprintf("images/%s/%d_%s", task.CoupleCode, now.UnixMilli(), name)

	if err := s.blobs.Upload(ctx, storagePath, resized, imageproc.ContentType); err != nil {
		return nil, storeError("upload image", err)
	}
	url, err := s.blobs.DownloadURL(ctx, storagePath)
	if err != nil {
		s.discardBlob(ctx, storagePath)
		return nil, storeError("resolve image url", err)
	}

	image := &models.Image{
		ID:          s.newID(),
		URL:         url,
		StoragePath: storagePath,
		Name:        name,
		UploadedBy:  in.UploaderID,
		UploadedAt:  now,
	}
	if err := s.tasks.AddImage(ctx, task.ID, image); err != nil {
		s.discardBlob(ctx, storagePath)
		return nil, storeError("add image", err)
	}

	return s.reload(ctx, task.ID, couple)
}

// DeleteImage deletes the blob first and removes the entry only once the blob is gone
func (s *TaskService) DeleteImage(ctx context.Context, taskID, imageID, actorID string) (*models.Task, error) {
	task, couple, err := s.load(ctx, taskID, actorID)
	if err != nil {
		return nil, err
	}

	image := task.FindImage(imageID)
	if image == nil {
		return nil, fmt.Errorf("image %s: %w", imageID, ErrNotFound)
	}

	if err := s.blobs.Delete(ctx, image.StoragePath); err != nil {
		return nil, storeError("delete image blob", err)
	}
	if err := s.tasks.RemoveImage(ctx, taskID, imageID, actorID); err != nil {
		return nil, storeError("remove image", err)
	}

	return s.reload(ctx, taskID, couple)
}

// ResolveImageURL issues a fresh download URL from the image's storage path
func (s *TaskService) ResolveImageURL(ctx context.Context, taskID, imageID, actorID string) (string, error) {
	task, _, err := s.load(ctx, taskID, actorID)
	if err != nil {
		return "", err
	}

	image := task.FindImage(imageID)
	if image == nil {
		return "", fmt.Errorf("image %s: %w", imageID, ErrNotFound)
	}

	url, err := s.blobs.DownloadURL(ctx, image.StoragePath)
	if err != nil {
		return "", storeError("resolve image url", err)
	}
	return url, nil
}

// load fetches a task and checks that actorID belongs to its couple
func (s *TaskService) load(ctx context.Context, taskID, actorID string) (*models.Task, *models.Couple, error) {
	if taskID == "" {
		return nil, nil, validationError("task id is required")
	}

	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, nil, storeError("get task", err)
	}
	couple, err := s.couples.GetByCode(ctx, task.CoupleCode)
	if err != nil {
		return nil, nil, storeError("get couple", err)
	}
	if !couple.HasMember(actorID) {
		return nil, nil, fmt.Errorf("task %s: %w", taskID, ErrForbidden)
	}
	return task, couple, nil
}

// reload reads back a mutated task and pushes the new snapshot
func (s *TaskService) reload(ctx context.Context, taskID string, couple *models.Couple) (*models.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, storeError("get task", err)
	}
	s.publish(ctx, couple)
	return task, nil
}

func (s *TaskService) snapshot(ctx context.Context, couple *models.Couple) (*models.TaskSnapshot, error) {
	tasks, err := s.tasks.ListByCouple(ctx, couple.Code)
	if err != nil {
		return nil, storeError("list tasks", err)
	}
	return &models.TaskSnapshot{
		CoupleCode:  couple.Code,
		MemberIDs:   couple.MemberIDs(),
		Tasks:       tasks,
		PublishedAt: s.now().UTC(),
	}, nil
}

// publish failures are logged only; the write itself already succeeded
func (s *TaskService) publish(ctx context.Context, couple *models.Couple) {
	snapshot, err := s.snapshot(ctx, couple)
	if err != nil {
		log.Error().Err(err).Str("couple_code", couple.Code).Msg("Failed to build task snapshot")
		return
	}
	if err := s.publisher.Publish(ctx, snapshot); err != nil {
		log.Error().Err(err).Str("couple_code", couple.Code).Msg("Failed to publish task snapshot")
	}
}

func (s *TaskService) notifyPartner(ctx context.Context, couple *models.Couple, actorID, title, body string) {
	partnerID := couple.PartnerOf(actorID)
	if partnerID == "" {
		return
	}
	if err := s.notifier.Notify(ctx, partnerID, title, body); err != nil {
		log.Error().Err(err).Str("user_id", partnerID).Msg("Failed to notify partner")
	}
}

func (s *TaskService) discardBlob(ctx context.Context, storagePath string) {
	if err := s.blobs.Delete(ctx, storagePath); err != nil {
		log.Error().Err(err).Str("storage_path", storagePath).Msg("Failed to discard uploaded image")
	}
}

// timestamp has the precision the database keeps
func (s *TaskService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func dateOnly(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &day
}
