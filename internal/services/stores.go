package services

import (
	"context"
	"time"

	"couple-todo-backend/internal/models"
)

// ProfileStore persists identity records
type ProfileStore interface {
	GetByID(ctx context.Context, id string) (*models.Profile, error)
	Ensure(ctx context.Context, identity models.Identity) (*models.Profile, error)
	UpdateNickname(ctx context.Context, id, nickname string) error
	UpdatePhoto(ctx context.Context, id, photoURL string) error
	UpdatePushToken(ctx context.Context, id string, pushToken *string) error
}

// CoupleStore persists pairing records. Create and Join also update the
// member's profile in the same transaction.
type CoupleStore interface {
	Create(ctx context.Context, couple *models.Couple) error
	GetByCode(ctx context.Context, code string) (*models.Couple, error)
	Join(ctx context.Context, code string, partner models.CoupleMember) error
}

// TaskStore persists tasks with their comment and image entries
type TaskStore interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id string) (*models.Task, error)
	ListByCouple(ctx context.Context, coupleCode string) ([]*models.Task, error)
	SetCompleted(ctx context.Context, id string, completed bool, actorID string, at time.Time) error
	Delete(ctx context.Context, id string) error
	AddComment(ctx context.Context, taskID string, comment *models.Comment) error
	AddImage(ctx context.Context, taskID string, image *models.Image) error
	RemoveImage(ctx context.Context, taskID, imageID, actorID string) error
}

// SnapshotPublisher pushes confirmed task snapshots to live sessions
type SnapshotPublisher interface {
	Publish(ctx context.Context, snapshot *models.TaskSnapshot) error
}

// Notifier sends a push notification to a user
type Notifier interface {
	Notify(ctx context.Context, userID, title, body string) error
}
