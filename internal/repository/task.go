package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"couple-todo-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TaskRepository handles database operations for tasks and their comments and images
type TaskRepository struct {
	db *pgxpool.Pool
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `id, couple_code, text, completed, assignee, due_date, created_by, created_at, updated_at, updated_by`

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	var assignee string
	err := row.Scan(
		&t.ID, &t.CoupleCode, &t.Text, &t.Completed, &assignee, &t.DueDate,
		&t.CreatedBy, &t.CreatedAt, &t.UpdatedAt, &t.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	t.Assignee = models.Assignee(assignee)
	if !t.Assignee.Valid() {
		return nil, fmt.Errorf("task %s has unknown assignee %q", t.ID, assignee)
	}
	t.Comments = []models.Comment{}
	t.Images = []models.Image{}
	return &t, nil
}

// Create creates a new task
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (id, couple_code, text, completed, assignee, due_date, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		task.ID, task.CoupleCode, task.Text, task.Completed, string(task.Assignee),
		task.DueDate, task.CreatedBy, task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetByID retrieves a task with its comments and images
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	task, err := scanTask(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	if err := r.attachChildren(ctx, []*models.Task{task}); err != nil {
		return nil, err
	}
	return task, nil
}

// ListByCouple retrieves all tasks of a couple, newest first
func (r *TaskRepository) ListByCouple(ctx context.Context, coupleCode string) ([]*models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE couple_code = $1
		ORDER BY created_at DESC, id
	`
	rows, err := r.db.Query(ctx, query, coupleCode)
	if err != nil {
		return nil, fmt.Errorf("failed to get tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*models.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	if err := r.attachChildren(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// attachChildren loads comments and images for tasks in creation order
func (r *TaskRepository) attachChildren(ctx context.Context, tasks []*models.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	byID := make(map[string]*models.Task, len(tasks))
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}

	rows, err := r.db.Query(ctx, `
		SELECT task_id, id, text, author_id, created_at
		FROM task_comments
		WHERE task_id = ANY($1)
		ORDER BY created_at, id
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to get comments: %w", err)
	}
	for rows.Next() {
		var taskID string
		var c models.Comment
		if err := rows.Scan(&taskID, &c.ID, &c.Text, &c.AuthorID, &c.CreatedAt); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan comment: %w", err)
		}
		byID[taskID].Comments = append(byID[taskID].Comments, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating comments: %w", err)
	}

	rows, err = r.db.Query(ctx, `
		SELECT task_id, id, url, storage_path, name, uploaded_by, uploaded_at
		FROM task_images
		WHERE task_id = ANY($1)
		ORDER BY uploaded_at, id
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to get images: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var taskID string
		var img models.Image
		if err := rows.Scan(&taskID, &img.ID, &img.URL, &img.StoragePath, &img.Name, &img.UploadedBy, &img.UploadedAt); err != nil {
			return fmt.Errorf("failed to scan image: %w", err)
		}
		byID[taskID].Images = append(byID[taskID].Images, img)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating images: %w", err)
	}
	return nil
}

// SetCompleted writes the completion flag
func (r *TaskRepository) SetCompleted(ctx context.Context, id string, completed bool, actorID string, at time.Time) error {
	query := `UPDATE tasks SET completed = $1, updated_at = $2, updated_by = $3 WHERE id = $4`
	result, err := r.db.Exec(ctx, query, completed, at, actorID, id)
	if err != nil {
		return fmt.Errorf("failed to update task completion: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// Delete deletes a task; comment and image rows go with it
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// AddComment appends a comment and touches the task
func (r *TaskRepository) AddComment(ctx context.Context, taskID string, comment *models.Comment) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if err := touch(ctx, tx, taskID, comment.AuthorID, comment.CreatedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO task_comments (id, task_id, text, author_id, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, comment.ID, taskID, comment.Text, comment.AuthorID, comment.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to add comment: %w", err)
		}
		return nil
	})
}

// AddImage appends an image record and touches the task
func (r *TaskRepository) AddImage(ctx context.Context, taskID string, image *models.Image) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if err := touch(ctx, tx, taskID, image.UploadedBy, image.UploadedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO task_images (id, task_id, url, storage_path, name, uploaded_by, uploaded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, image.ID, taskID, image.URL, image.StoragePath, image.Name, image.UploadedBy, image.UploadedAt)
		if err != nil {
			return fmt.Errorf("failed to add image: %w", err)
		}
		return nil
	})
}

// RemoveImage deletes one image record and touches the task
func (r *TaskRepository) RemoveImage(ctx context.Context, taskID, imageID, actorID string) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `DELETE FROM task_images WHERE id = $1 AND task_id = $2`, imageID, taskID)
		if err != nil {
			return fmt.Errorf("failed to remove image: %w", err)
		}
		if result.RowsAffected() == 0 {
			return fmt.Errorf("image %s: %w", imageID, ErrNotFound)
		}
		return touch(ctx, tx, taskID, actorID, time.Now())
	})
}

func touch(ctx context.Context, q querier, taskID, actorID string, at time.Time) error {
	result, err := q.Exec(ctx, `UPDATE tasks SET updated_at = $1, updated_by = $2 WHERE id = $3`, at, actorID, taskID)
	if err != nil {
		return fmt.Errorf("failed to touch task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	return nil
}
