package broker

import (
	"context"
	"testing"
	"time"

	"couple-todo-backend/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot(code string) *models.TaskSnapshot {
	return &models.TaskSnapshot{
		CoupleCode: code,
		MemberIDs:  []string{"user-a", "user-b"},
		Tasks: []*models.Task{
			{ID: "t1", CoupleCode: code, Text: "movie night", Assignee: models.AssigneeShared},
		},
		PublishedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func TestMemoryBroker_DeliversToAllSubscribers(t *testing.T) {
	b := NewMemoryBroker()
	var first, second []*models.TaskSnapshot
	b.Subscribe(func(s *models.TaskSnapshot) { first = append(first, s) })
	b.Subscribe(func(s *models.TaskSnapshot) { second = append(second, s) })

	require.NoError(t, b.Publish(context.Background(), testSnapshot("AB12CD")))

	assert.Len(t, first, 1)
	assert.Len(t, second, 1)
	assert.Equal(t, "AB12CD", first[0].CoupleCode)
}

func TestMemoryBroker_UnsubscribeIsIdempotent(t *testing.T) {
	b := NewMemoryBroker()
	calls := 0
	unsubscribe := b.Subscribe(func(*models.TaskSnapshot) { calls++ })

	unsubscribe()
	unsubscribe()
	require.NoError(t, b.Publish(context.Background(), testSnapshot("AB12CD")))

	assert.Equal(t, 0, calls)
}

func TestRedisBroker_PublishRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewRedisClient(mr.Addr(), "", 0)
	defer client.Close()

	ctx := context.Background()
	b, err := NewRedisBroker(ctx, client, "test:snapshots")
	require.NoError(t, err)
	defer b.Close()

	received := make(chan *models.TaskSnapshot, 1)
	b.Subscribe(func(s *models.TaskSnapshot) { received <- s })

	require.NoError(t, b.Publish(ctx, testSnapshot("AB12CD")))

	select {
	case s := <-received:
		assert.Equal(t, "AB12CD", s.CoupleCode)
		assert.Equal(t, []string{"user-a", "user-b"}, s.MemberIDs)
		require.Len(t, s.Tasks, 1)
		assert.Equal(t, "movie night", s.Tasks[0].Text)
		assert.False(t, s.HasPendingWrites)
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot was not delivered")
	}
}

func TestRedisBroker_SubscribeFailsWhenServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client := NewRedisClient(addr, "", 0)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisBroker(ctx, client, "test:snapshots")
	assert.Error(t, err)
}
