// Package livesync keeps a client's view of its couple's tasks in step with
// the server. A Synchronizer owns at most one live subscription, switches it
// when the couple code changes, and only shows confirmed snapshots.
package livesync

import (
	"context"
	"sync"

	"couple-todo-backend/internal/models"
)

// SnapshotHandler receives every snapshot delivered by a live query
type SnapshotHandler func(snapshot *models.TaskSnapshot)

// ErrorHandler is told when a live query ends without being released. It runs
// at most once per query and never after release.
type ErrorHandler func(err error)

// Source opens live queries of one couple's tasks. The returned release func
// stops delivery; Subscription makes sure it runs only once. onError may be nil.
type Source interface {
	Subscribe(ctx context.Context, coupleCode string, handler SnapshotHandler, onError ErrorHandler) (release func() error, err error)
}

// Subscription owns one live query
type Subscription struct {
	code    string
	release func() error
	once    sync.Once
	err     error
}

// Subscribe opens a live query for coupleCode
func Subscribe(ctx context.Context, src Source, coupleCode string, handler SnapshotHandler, onError ErrorHandler) (*Subscription, error) {
	release, err := src.Subscribe(ctx, coupleCode, handler, onError)
	if err != nil {
		return nil, err
	}
	return &Subscription{code: coupleCode, release: release}, nil
}

// CoupleCode is the code the subscription listens on
func (s *Subscription) CoupleCode() string {
	return s.code
}

// Release stops the live query. Later calls return the first result.
func (s *Subscription) Release() error {
	s.once.Do(func() {
		s.err = s.release()
	})
	return s.err
}

// With opens a subscription, runs fn and releases the subscription however fn returns
func With(ctx context.Context, src Source, coupleCode string, handler SnapshotHandler, fn func(*Subscription) error) (err error) {
	sub, err := Subscribe(ctx, src, coupleCode, handler, nil)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := sub.Release(); err == nil {
			err = rerr
		}
	}()
	return fn(sub)
}
