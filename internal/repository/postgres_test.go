//go:build integration

package repository

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"couple-todo-backend/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run with: TEST_DATABASE_DSN=postgres://... go test -tags integration ./internal/repository/
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}
	require.NoError(t, Migrate(dsn))

	pool, err := NewPool(context.Background(), PoolConfig{DSN: dsn, MaxConns: 4, MaxConnLife: time.Minute})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func randomCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
}

func createCouple(t *testing.T, couples *CoupleRepository, creatorID string) string {
	t.Helper()
	code := randomCode()
	require.NoError(t, couples.Create(context.Background(), &models.Couple{
		Code:            code,
		CreatorID:       creatorID,
		CreatorEmail:    creatorID + "@example.com",
		CreatorNickname: "anonymous",
		CreatedAt:       time.Now().UTC(),
	}))
	return code
}

func TestCoupleRepository_ConcurrentJoinersOneWins(t *testing.T) {
	ctx := context.Background()
	pool := testPool(t)
	couples := NewCoupleRepository(pool)

	code := createCouple(t, couples, uuid.NewString())

	const joiners = 8
	errs := make([]error, joiners)
	var wg sync.WaitGroup
	for i := range joiners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = couples.Join(ctx, code, models.CoupleMember{ID: uuid.NewString(), Nickname: "joiner"})
		}()
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, ErrSlotTaken)
	}
	assert.Equal(t, 1, won)

	assert.ErrorIs(t, couples.Join(ctx, "ZZZZZZ", models.CoupleMember{ID: uuid.NewString()}), ErrNotFound)
}

func TestProfileRepository_UpdatesOnlyCurrentCouple(t *testing.T) {
	ctx := context.Background()
	pool := testPool(t)
	couples := NewCoupleRepository(pool)
	profiles := NewProfileRepository(pool)

	a, b := uuid.NewString(), uuid.NewString()
	old := createCouple(t, couples, b)
	current := createCouple(t, couples, a)
	photo := "https://blobs.test/b.jpg"
	require.NoError(t, couples.Join(ctx, current, models.CoupleMember{ID: b, Nickname: "Ben", PhotoURL: &photo}))

	joined, err := couples.GetByCode(ctx, current)
	require.NoError(t, err)
	require.NotNil(t, joined.PartnerPhotoURL)
	assert.Equal(t, photo, *joined.PartnerPhotoURL)

	require.NoError(t, profiles.UpdateNickname(ctx, b, "Benji"))

	joined, err = couples.GetByCode(ctx, current)
	require.NoError(t, err)
	assert.Equal(t, "Benji", *joined.PartnerNickname)

	left, err := couples.GetByCode(ctx, old)
	require.NoError(t, err)
	assert.Equal(t, "anonymous", left.CreatorNickname)
}
