package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"couple-todo-backend/internal/blob"
	"couple-todo-backend/internal/imageproc"
	"couple-todo-backend/internal/models"
	"couple-todo-backend/internal/repository/memory"
)

// faultyCouples fails Join with joinErr when set
type faultyCouples struct {
	*memory.CoupleRepository
	mu      sync.Mutex
	joinErr error
}

func (c *faultyCouples) failJoin(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joinErr = err
}

func (c *faultyCouples) Join(ctx context.Context, code string, partner models.CoupleMember) error {
	c.mu.Lock()
	err := c.joinErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.CoupleRepository.Join(ctx, code, partner)
}

// faultyBlobs fails uploads or deletes when the matching error is set
type faultyBlobs struct {
	*blob.MemoryStore
	uploadErr error
	deleteErr error
}

func (b *faultyBlobs) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	if b.uploadErr != nil {
		return b.uploadErr
	}
	return b.MemoryStore.Upload(ctx, path, data, contentType)
}

func (b *faultyBlobs) Delete(ctx context.Context, path string) error {
	if b.deleteErr != nil {
		return b.deleteErr
	}
	return b.MemoryStore.Delete(ctx, path)
}

type recordingPublisher struct {
	mu        sync.Mutex
	snapshots []*models.TaskSnapshot
}

func (p *recordingPublisher) Publish(_ context.Context, s *models.TaskSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, s)
	return nil
}

func (p *recordingPublisher) last() *models.TaskSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.snapshots) == 0 {
		return nil
	}
	return p.snapshots[len(p.snapshots)-1]
}

type sentNotification struct {
	UserID, Title, Body string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(_ context.Context, userID, title, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{userID, title, body})
	return nil
}

var testClock = time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)

type testEnv struct {
	store     *memory.Store
	couple    *faultyCouples
	blobs     *faultyBlobs
	publisher *recordingPublisher
	notifier  *recordingNotifier
	identity  *IdentityService
	couples   *CoupleService
	tasks     *TaskService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New()
	env := &testEnv{
		store:     store,
		couple:    &faultyCouples{CoupleRepository: store.Couples()},
		blobs:     &faultyBlobs{MemoryStore: blob.NewMemoryStore("https://blobs.test")},
		publisher: &recordingPublisher{},
		notifier:  &recordingNotifier{},
	}
	opts := imageproc.DefaultOptions()

	env.identity = NewIdentityService(store.Profiles(), env.blobs, opts, "test-secret")
	env.identity.now = func() time.Time { return testClock }

	env.couples = NewCoupleService(env.couple, store.Profiles(), env.notifier)
	env.couples.now = func() time.Time { return testClock }

	env.tasks = NewTaskService(store.Tasks(), env.couple, env.blobs, env.publisher, env.notifier, opts)
	env.tasks.now = func() time.Time { return testClock }
	var seq atomic.Int64
	env.tasks.newID = func() string {
		return fmt.Sprintf("id-%d", seq.Add(1))
	}
	return env
}

// codes makes GenerateCode hand out the given codes in order
func codes(list ...string) func() string {
	i := 0
	return func() string {
		c := list[i%len(list)]
		i++
		return c
	}
}

// pair creates a couple with code between a and b
func (e *testEnv) pair(t *testing.T, code string, a, b models.Identity) *models.Couple {
	t.Helper()
	e.couples.newCode = codes(code)
	if _, err := e.couples.GenerateCode(context.Background(), a); err != nil {
		t.Fatalf("generate code: %v", err)
	}
	couple, err := e.couples.JoinWithCode(context.Background(), b, strings.ToLower(code))
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	return couple
}

var (
	ann = models.Identity{ID: "user-a", Email: "ann@example.com"}
	ben = models.Identity{ID: "user-b", Email: "ben@example.com"}
	cat = models.Identity{ID: "user-c", Email: "cat@example.com"}
)
