// Package memory holds process-local versions of the repositories with the
// same error contract as the PostgreSQL ones. Used for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"couple-todo-backend/internal/models"
	"couple-todo-backend/internal/repository"
)

// Store is the shared state behind the three repositories
type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	profiles map[string]*models.Profile
	couples  map[string]*models.Couple
	tasks    map[string]*models.Task
}

// New creates an empty store
func New() *Store {
	return &Store{
		now:      time.Now,
		profiles: make(map[string]*models.Profile),
		couples:  make(map[string]*models.Couple),
		tasks:    make(map[string]*models.Task),
	}
}

// Profiles returns the profile repository
func (s *Store) Profiles() *ProfileRepository { return &ProfileRepository{s} }

// Couples returns the couple repository
func (s *Store) Couples() *CoupleRepository { return &CoupleRepository{s} }

// Tasks returns the task repository
func (s *Store) Tasks() *TaskRepository { return &TaskRepository{s} }

func copyProfile(p *models.Profile) *models.Profile {
	cp := *p
	return &cp
}

func copyCouple(c *models.Couple) *models.Couple {
	cp := *c
	return &cp
}

func copyTask(t *models.Task) *models.Task {
	cp := *t
	cp.Comments = append([]models.Comment{}, t.Comments...)
	cp.Images = append([]models.Image{}, t.Images...)
	return &cp
}

func strPtr(s string) *string { return &s }

// setPairing mirrors the profile upsert done inside couple transactions
func (s *Store) setPairing(member models.CoupleMember, code string, role models.Role) {
	now := s.now()
	p, ok := s.profiles[member.ID]
	if !ok {
		p = &models.Profile{ID: member.ID, Email: member.Email, CreatedAt: now}
		s.profiles[member.ID] = p
	}
	if p.Email == "" {
		p.Email = member.Email
	}
	p.CoupleCode = strPtr(code)
	p.Role = role
	p.UpdatedAt = now
}

// ProfileRepository stores identity records
type ProfileRepository struct{ s *Store }

// GetByID retrieves a profile by identity ID
func (r *ProfileRepository) GetByID(_ context.Context, id string) (*models.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.profiles[id]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", id, repository.ErrNotFound)
	}
	return copyProfile(p), nil
}

// Ensure creates the profile on first sight and returns the stored record
func (r *ProfileRepository) Ensure(_ context.Context, identity models.Identity) (*models.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.profiles[identity.ID]
	if !ok {
		now := r.s.now()
		p = &models.Profile{
			ID:        identity.ID,
			Email:     identity.Email,
			Role:      models.RoleUnassigned,
			PhotoURL:  identity.PhotoURL,
			CreatedAt: now,
			UpdatedAt: now,
		}
		r.s.profiles[identity.ID] = p
	}
	return copyProfile(p), nil
}

// UpdateNickname sets the nickname and mirrors it into the slot of the current couple
func (r *ProfileRepository) UpdateNickname(_ context.Context, id, nickname string) error {
	return r.update(id, func(p *models.Profile, c *models.Couple) {
		p.Nickname = nickname
		if c == nil {
			return
		}
		switch c.RoleOf(id) {
		case models.RoleCreator:
			c.CreatorNickname = nickname
		case models.RolePartner:
			c.PartnerNickname = strPtr(nickname)
		}
	})
}

// UpdatePhoto sets the profile photo and mirrors it into the slot of the current couple
func (r *ProfileRepository) UpdatePhoto(_ context.Context, id, photoURL string) error {
	return r.update(id, func(p *models.Profile, c *models.Couple) {
		p.PhotoURL = strPtr(photoURL)
		if c == nil {
			return
		}
		switch c.RoleOf(id) {
		case models.RoleCreator:
			c.CreatorPhotoURL = strPtr(photoURL)
		case models.RolePartner:
			c.PartnerPhotoURL = strPtr(photoURL)
		}
	})
}

// UpdatePushToken updates the push token for a user
func (r *ProfileRepository) UpdatePushToken(_ context.Context, id string, pushToken *string) error {
	return r.update(id, func(p *models.Profile, _ *models.Couple) {
		p.PushToken = pushToken
	})
}

func (r *ProfileRepository) update(id string, fn func(*models.Profile, *models.Couple)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.profiles[id]
	if !ok {
		return fmt.Errorf("profile %s: %w", id, repository.ErrNotFound)
	}
	var couple *models.Couple
	if p.CoupleCode != nil {
		couple = r.s.couples[*p.CoupleCode]
	}
	fn(p, couple)
	p.UpdatedAt = r.s.now()
	if couple != nil {
		couple.UpdatedAt = p.UpdatedAt
	}
	return nil
}

// CoupleRepository stores pairing records
type CoupleRepository struct{ s *Store }

// Create inserts a new couple and marks its creator.
// Returns repository.ErrCodeTaken when the code already exists.
func (r *CoupleRepository) Create(_ context.Context, couple *models.Couple) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, taken := r.s.couples[couple.Code]; taken {
		return repository.ErrCodeTaken
	}
	r.s.couples[couple.Code] = copyCouple(couple)
	r.s.setPairing(models.CoupleMember{ID: couple.CreatorID, Email: couple.CreatorEmail}, couple.Code, models.RoleCreator)
	return nil
}

// GetByCode retrieves a couple by code
func (r *CoupleRepository) GetByCode(_ context.Context, code string) (*models.Couple, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.couples[code]
	if !ok {
		return nil, fmt.Errorf("couple %s: %w", code, repository.ErrNotFound)
	}
	return copyCouple(c), nil
}

// Join claims the partner slot and records the pairing on the joiner's profile
func (r *CoupleRepository) Join(_ context.Context, code string, partner models.CoupleMember) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.couples[code]
	if !ok {
		return fmt.Errorf("couple %s: %w", code, repository.ErrNotFound)
	}
	if c.PartnerID != nil || c.CreatorID == partner.ID {
		return repository.ErrSlotTaken
	}
	c.PartnerID = strPtr(partner.ID)
	c.PartnerEmail = strPtr(partner.Email)
	c.PartnerNickname = strPtr(partner.Nickname)
	c.PartnerPhotoURL = partner.PhotoURL
	c.UpdatedAt = r.s.now()
	r.s.setPairing(partner, code, models.RolePartner)
	return nil
}

// TaskRepository stores tasks with their comments and images
type TaskRepository struct{ s *Store }

// Create creates a new task
func (r *TaskRepository) Create(_ context.Context, task *models.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.couples[task.CoupleCode]; !ok {
		return fmt.Errorf("couple %s: %w", task.CoupleCode, repository.ErrNotFound)
	}
	if _, exists := r.s.tasks[task.ID]; exists {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	r.s.tasks[task.ID] = copyTask(task)
	return nil
}

// GetByID retrieves a task with its comments and images
func (r *TaskRepository) GetByID(_ context.Context, id string) (*models.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, repository.ErrNotFound)
	}
	return copyTask(t), nil
}

// ListByCouple retrieves all tasks of a couple, newest first
func (r *TaskRepository) ListByCouple(_ context.Context, coupleCode string) ([]*models.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tasks := []*models.Task{}
	for _, t := range r.s.tasks {
		if t.CoupleCode == coupleCode {
			tasks = append(tasks, copyTask(t))
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks, nil
}

// SetCompleted writes the completion flag
func (r *TaskRepository) SetCompleted(_ context.Context, id string, completed bool, actorID string, at time.Time) error {
	return r.mutate(id, actorID, at, func(t *models.Task) error {
		t.Completed = completed
		return nil
	})
}

// Delete deletes a task with its comments and images
func (r *TaskRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tasks[id]; !ok {
		return fmt.Errorf("task %s: %w", id, repository.ErrNotFound)
	}
	delete(r.s.tasks, id)
	return nil
}

// AddComment appends a comment and touches the task
func (r *TaskRepository) AddComment(_ context.Context, taskID string, comment *models.Comment) error {
	return r.mutate(taskID, comment.AuthorID, comment.CreatedAt, func(t *models.Task) error {
		t.Comments = append(t.Comments, *comment)
		return nil
	})
}

// AddImage appends an image record and touches the task
func (r *TaskRepository) AddImage(_ context.Context, taskID string, image *models.Image) error {
	return r.mutate(taskID, image.UploadedBy, image.UploadedAt, func(t *models.Task) error {
		t.Images = append(t.Images, *image)
		return nil
	})
}

// RemoveImage deletes one image record and touches the task
func (r *TaskRepository) RemoveImage(_ context.Context, taskID, imageID, actorID string) error {
	return r.mutate(taskID, actorID, r.s.now(), func(t *models.Task) error {
		for i := range t.Images {
			if t.Images[i].ID == imageID {
				t.Images = append(t.Images[:i], t.Images[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("image %s: %w", imageID, repository.ErrNotFound)
	})
}

func (r *TaskRepository) mutate(id, actorID string, at time.Time, fn func(*models.Task) error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, repository.ErrNotFound)
	}
	if err := fn(t); err != nil {
		return err
	}
	t.UpdatedAt = &at
	t.UpdatedBy = strPtr(actorID)
	return nil
}
