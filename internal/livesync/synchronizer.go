package livesync

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"couple-todo-backend/internal/models"
	"couple-todo-backend/internal/roles"
	"couple-todo-backend/internal/taskview"

	"github.com/rs/zerolog/log"
)

// State is the lifecycle of the synchronizer's subscription
type State int

const (
	StateUnsubscribed State = iota
	StateSubscribing
	StateActive
)

func (s State) String() string {
	switch s {
	case StateUnsubscribed:
		return "unsubscribed"
	case StateSubscribing:
		return "subscribing"
	case StateActive:
		return "active"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Synchronizer reconciles a local task list with confirmed snapshots of one couple
type Synchronizer struct {
	src Source

	mu       sync.Mutex
	state    State
	code     string
	sub      *Subscription
	gen      uint64
	tasks    []*models.Task
	onChange func(tasks []*models.Task)
	onError  func(coupleCode string, err error)
}

// New creates an unsubscribed synchronizer reading from src
func New(src Source) *Synchronizer {
	return &Synchronizer{src: src}
}

// OnChange registers fn to run after every accepted snapshot
func (s *Synchronizer) OnChange(fn func(tasks []*models.Task)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// OnError registers fn to run when the live query of coupleCode ends on its
// own. The synchronizer is Unsubscribed by then, so SetCoupleCode with the same
// code subscribes again.
func (s *Synchronizer) OnError(fn func(coupleCode string, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// SetCoupleCode points the synchronizer at a couple. The same code while
// subscribing or active is a no-op. Any other code releases the current
// subscription first; an empty code just tears down.
func (s *Synchronizer) SetCoupleCode(ctx context.Context, raw string) error {
	code := strings.ToUpper(strings.TrimSpace(raw))

	s.mu.Lock()
	if code != "" && code == s.code && s.state != StateUnsubscribed {
		s.mu.Unlock()
		return nil
	}

	old := s.sub
	s.reset()
	if code == "" {
		s.mu.Unlock()
		return releaseSub(old)
	}

	s.gen++
	gen := s.gen
	s.code = code
	s.state = StateSubscribing
	s.mu.Unlock()

	if err := releaseSub(old); err != nil {
		log.Error().Err(err).Str("couple_code", old.CoupleCode()).Msg("Failed to release task subscription")
	}

	sub, err := Subscribe(ctx, s.src, code, func(snapshot *models.TaskSnapshot) {
		s.deliver(gen, snapshot)
	}, func(err error) {
		s.fail(gen, err)
	})

	s.mu.Lock()
	if gen != s.gen {
		// superseded while subscribing
		s.mu.Unlock()
		if sub != nil {
			return releaseSub(sub)
		}
		return nil
	}
	if err != nil {
		s.reset()
		s.mu.Unlock()
		return fmt.Errorf("failed to subscribe to couple %s: %w", code, err)
	}
	s.sub = sub
	s.mu.Unlock()

	log.Debug().Str("couple_code", code).Msg("Task subscription opened")
	return nil
}

// Close releases the current subscription
func (s *Synchronizer) Close() error {
	return s.SetCoupleCode(context.Background(), "")
}

// State reports the subscription state
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CoupleCode is the code currently subscribed to, empty when unsubscribed
func (s *Synchronizer) CoupleCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

// Tasks returns the last confirmed task list in store order, newest first
func (s *Synchronizer) Tasks() []*models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Task(nil), s.tasks...)
}

// View returns the filtered and due-date sorted tasks plus counts over all tasks
func (s *Synchronizer) View(filter taskview.Filter, labels roles.LabelSet) ([]*models.Task, taskview.Counts) {
	tasks := s.Tasks()
	return taskview.Apply(tasks, filter, labels), taskview.Count(tasks)
}

// deliver accepts confirmed snapshots of the current subscription only
func (s *Synchronizer) deliver(gen uint64, snapshot *models.TaskSnapshot) {
	if snapshot == nil || snapshot.HasPendingWrites {
		return
	}

	s.mu.Lock()
	if gen != s.gen || s.state == StateUnsubscribed || snapshot.CoupleCode != s.code {
		s.mu.Unlock()
		return
	}
	s.tasks = append([]*models.Task(nil), snapshot.Tasks...)
	s.state = StateActive
	fn := s.onChange
	tasks := append([]*models.Task(nil), s.tasks...)
	s.mu.Unlock()

	if fn != nil {
		fn(tasks)
	}
}

// fail drops a live query that ended on its own
func (s *Synchronizer) fail(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	code := s.code
	sub := s.sub
	s.reset()
	fn := s.onError
	s.mu.Unlock()

	log.Warn().Err(err).Str("couple_code", code).Msg("Task subscription ended")
	if rerr := releaseSub(sub); rerr != nil {
		log.Debug().Err(rerr).Str("couple_code", code).Msg("Failed to release ended task subscription")
	}
	if fn != nil {
		fn(code, err)
	}
}

// reset moves to Unsubscribed. Callers hold mu and release the old subscription.
func (s *Synchronizer) reset() {
	s.gen++
	s.state = StateUnsubscribed
	s.code = ""
	s.sub = nil
	s.tasks = nil
}

func releaseSub(sub *Subscription) error {
	if sub == nil {
		return nil
	}
	return sub.Release()
}
