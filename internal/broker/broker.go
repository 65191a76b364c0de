// Package broker fans confirmed task snapshots out to every connected session.
package broker

import (
	"context"
	"sync"

	"couple-todo-backend/internal/models"
)

// Handler receives published snapshots
type Handler func(snapshot *models.TaskSnapshot)

// Broker delivers every published snapshot to all subscribed handlers
type Broker interface {
	Publish(ctx context.Context, snapshot *models.TaskSnapshot) error
	Subscribe(handler Handler) (unsubscribe func())
	Close() error
}

// fanout is the local handler registry shared by both brokers
type fanout struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
}

func newFanout() *fanout {
	return &fanout{handlers: make(map[int]Handler)}
}

func (f *fanout) subscribe(handler Handler) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.handlers[id] = handler
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.handlers, id)
			f.mu.Unlock()
		})
	}
}

func (f *fanout) deliver(snapshot *models.TaskSnapshot) {
	f.mu.RLock()
	handlers := make([]Handler, 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.RUnlock()

	for _, h := range handlers {
		h(snapshot)
	}
}

// MemoryBroker delivers snapshots within a single process
type MemoryBroker struct {
	*fanout
}

// NewMemoryBroker creates an in-process broker
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{fanout: newFanout()}
}

// Publish delivers snapshot to every handler before returning
func (b *MemoryBroker) Publish(_ context.Context, snapshot *models.TaskSnapshot) error {
	b.deliver(snapshot)
	return nil
}

// Subscribe registers handler
func (b *MemoryBroker) Subscribe(handler Handler) func() {
	return b.subscribe(handler)
}

// Close is a no-op
func (b *MemoryBroker) Close() error {
	return nil
}
