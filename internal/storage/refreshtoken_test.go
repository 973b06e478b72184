package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charleshuang3/finansecure/internal/models"
)

var testNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func setupTestTokenStore(t *testing.T) *RefreshTokenStore {
	t.Helper()

	s := NewRefreshTokenStore(setupTestDB(t), time.Second)
	s.now = func() time.Time { return testNow }
	return s
}

func addToken(t *testing.T, s *RefreshTokenStore, userID uuid.UUID, token string, expiresAt time.Time) *models.RefreshToken {
	t.Helper()

	rt := &models.RefreshToken{
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
		UserAgent: "test-agent",
		IPAddress: "127.0.0.1",
	}
	require.NoError(t, s.Create(context.Background(), rt))
	return rt
}

func TestRefreshTokenStore_CreateAndFind(t *testing.T) {
	s := setupTestTokenStore(t)
	ctx := context.Background()
	userID := uuid.New()

	created := addToken(t, s, userID, "tok-1", testNow.Add(time.Hour))
	assert.NotEqual(t, uuid.Nil, created.ID)

	got, err := s.Find(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, userID, got.UserID)
	assert.Equal(t, "test-agent", got.UserAgent)
	assert.Equal(t, "127.0.0.1", got.IPAddress)
	assert.True(t, got.ExpiresAt.Equal(testNow.Add(time.Hour)))
	assert.Nil(t, got.RevokedAt)
	assert.True(t, got.IsActive(testNow))

	_, err = s.Find(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRefreshTokenStore_CreateDuplicate(t *testing.T) {
	s := setupTestTokenStore(t)

	addToken(t, s, uuid.New(), "dup", testNow.Add(time.Hour))

	err := s.Create(context.Background(), &models.RefreshToken{
		UserID:    uuid.New(),
		Token:     "dup",
		ExpiresAt: testNow.Add(time.Hour),
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRefreshTokenStore_Revoke(t *testing.T) {
	s := setupTestTokenStore(t)
	ctx := context.Background()

	addToken(t, s, uuid.New(), "tok", testNow.Add(time.Hour))

	ok, err := s.Revoke(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Find(ctx, "tok")
	require.NoError(t, err)
	require.NotNil(t, got.RevokedAt)
	assert.True(t, got.RevokedAt.Equal(testNow))
	assert.False(t, got.IsActive(testNow))
	assert.False(t, got.IsRotated(), "A logout is not a rotation")

	// idempotent, keeps the first revocation time
	s.now = func() time.Time { return testNow.Add(time.Minute) }
	ok, err = s.Revoke(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = s.Find(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, got.RevokedAt.Equal(testNow))

	ok, err = s.Revoke(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRefreshTokenStore_RevokeAll(t *testing.T) {
	s := setupTestTokenStore(t)
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	addToken(t, s, alice, "a1", testNow.Add(time.Hour))
	addToken(t, s, alice, "a2", testNow.Add(2*time.Hour))
	addToken(t, s, alice, "a-expired", testNow.Add(-time.Hour))
	addToken(t, s, alice, "a-revoked", testNow.Add(time.Hour))
	addToken(t, s, bob, "b1", testNow.Add(time.Hour))

	_, err := s.Revoke(ctx, "a-revoked")
	require.NoError(t, err)

	n, err := s.RevokeAll(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, tok := range []string{"a1", "a2"} {
		got, err := s.Find(ctx, tok)
		require.NoError(t, err)
		assert.False(t, got.IsActive(testNow), tok)
	}

	got, err := s.Find(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, got.IsActive(testNow), "Other users must keep their sessions")

	active, err := s.ListActive(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, active)

	n, err = s.RevokeAll(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestRefreshTokenStore_ListActive(t *testing.T) {
	s := setupTestTokenStore(t)
	ctx := context.Background()
	userID := uuid.New()

	addToken(t, s, userID, "old", testNow.Add(time.Hour))
	time.Sleep(2 * time.Millisecond)
	addToken(t, s, userID, "new", testNow.Add(time.Hour))
	addToken(t, s, userID, "expired", testNow.Add(-time.Second))
	addToken(t, s, userID, "revoked", testNow.Add(time.Hour))
	addToken(t, s, uuid.New(), "other", testNow.Add(time.Hour))

	_, err := s.Revoke(ctx, "revoked")
	require.NoError(t, err)

	active, err := s.ListActive(ctx, userID)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "new", active[0].Token)
	assert.Equal(t, "old", active[1].Token)
}

func TestRefreshTokenStore_PurgeExpired(t *testing.T) {
	s := setupTestTokenStore(t)
	ctx := context.Background()
	userID := uuid.New()

	addToken(t, s, userID, "expired", testNow.Add(-time.Minute))
	addToken(t, s, userID, "expired-revoked", testNow.Add(-time.Hour))
	addToken(t, s, userID, "at-cutoff", testNow)
	addToken(t, s, userID, "active", testNow.Add(time.Minute))
	addToken(t, s, userID, "revoked", testNow.Add(time.Minute))

	_, err := s.Revoke(ctx, "expired-revoked")
	require.NoError(t, err)
	_, err = s.Revoke(ctx, "revoked")
	require.NoError(t, err)

	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, tok := range []string{"expired", "expired-revoked"} {
		_, err := s.Find(ctx, tok)
		assert.ErrorIs(t, err, ErrNotFound, tok)
	}
	for _, tok := range []string{"at-cutoff", "active", "revoked"} {
		_, err := s.Find(ctx, tok)
		assert.NoError(t, err, tok)
	}
}

func TestRefreshTokenStore_PurgeExpired_ConcurrentLogins(t *testing.T) {
	s := setupTestTokenStore(t)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 20; i++ {
		addToken(t, s, userID, fmt.Sprintf("expired-%d", i), testNow.Add(-time.Hour))
	}

	var wg sync.WaitGroup
	created := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok := fmt.Sprintf("fresh-%d", i)
			err := s.Create(ctx, &models.RefreshToken{
				UserID:    userID,
				Token:     tok,
				ExpiresAt: testNow.Add(7 * 24 * time.Hour),
			})
			if assert.NoError(t, err) {
				created <- tok
			}
		}(i)
	}

	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20), n)

	wg.Wait()
	close(created)

	count := 0
	for tok := range created {
		_, err := s.Find(ctx, tok)
		assert.NoError(t, err, tok)
		count++
	}
	assert.Equal(t, 20, count)
}

func TestRefreshTokenStore_Rotate(t *testing.T) {
	s := setupTestTokenStore(t)
	ctx := context.Background()
	userID := uuid.New()

	addToken(t, s, userID, "current", testNow.Add(time.Hour))

	next := &models.RefreshToken{UserID: userID, Token: "next", ExpiresAt: testNow.Add(7 * 24 * time.Hour)}
	require.NoError(t, s.Rotate(ctx, "current", next))
	assert.NotEqual(t, uuid.Nil, next.ID)

	old, err := s.Find(ctx, "current")
	require.NoError(t, err)
	assert.False(t, old.IsActive(testNow))
	assert.True(t, old.IsRotated())
	require.NotNil(t, old.ReplacedByID)
	assert.Equal(t, next.ID, *old.ReplacedByID)

	got, err := s.Find(ctx, "next")
	require.NoError(t, err)
	assert.True(t, got.IsActive(testNow))

	// replay
	err = s.Rotate(ctx, "current", &models.RefreshToken{UserID: userID, Token: "next-2", ExpiresAt: testNow.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrTokenInactive)

	_, err = s.Find(ctx, "next-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRefreshTokenStore_Rotate_Inactive(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, s *RefreshTokenStore)
	}{
		{
			name:    "missing",
			prepare: func(t *testing.T, s *RefreshTokenStore) {},
		},
		{
			name: "expired",
			prepare: func(t *testing.T, s *RefreshTokenStore) {
				addToken(t, s, uuid.New(), "presented", testNow.Add(-time.Second))
			},
		},
		{
			name: "revoked",
			prepare: func(t *testing.T, s *RefreshTokenStore) {
				addToken(t, s, uuid.New(), "presented", testNow.Add(time.Hour))
				_, err := s.Revoke(context.Background(), "presented")
				require.NoError(t, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestTokenStore(t)
			tt.prepare(t, s)

			err := s.Rotate(context.Background(), "presented", &models.RefreshToken{
				UserID:    uuid.New(),
				Token:     "next",
				ExpiresAt: testNow.Add(time.Hour),
			})
			assert.ErrorIs(t, err, ErrTokenInactive)

			_, err = s.Find(context.Background(), "next")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestRefreshTokenStore_Rotate_RollsBackOnConflict(t *testing.T) {
	s := setupTestTokenStore(t)
	ctx := context.Background()
	userID := uuid.New()

	addToken(t, s, userID, "current", testNow.Add(time.Hour))
	addToken(t, s, userID, "taken", testNow.Add(time.Hour))

	err := s.Rotate(ctx, "current", &models.RefreshToken{UserID: userID, Token: "taken", ExpiresAt: testNow.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrConflict)

	got, err := s.Find(ctx, "current")
	require.NoError(t, err)
	assert.True(t, got.IsActive(testNow), "Presented token must stay active when the insert fails")
}

func TestRefreshTokenStore_Rotate_Concurrent(t *testing.T) {
	s := setupTestTokenStore(t)
	ctx := context.Background()
	userID := uuid.New()

	addToken(t, s, userID, "current", testNow.Add(time.Hour))

	const attempts = 10
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Rotate(ctx, "current", &models.RefreshToken{
				UserID:    userID,
				Token:     fmt.Sprintf("next-%d", i),
				ExpiresAt: testNow.Add(time.Hour),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrTokenInactive)
	}
	assert.Equal(t, 1, succeeded)

	active, err := s.ListActive(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestRefreshTokenStore_ClosedDB(t *testing.T) {
	s := setupTestTokenStore(t)
	require.NoError(t, s.db.Close())

	_, err := s.Find(context.Background(), "tok")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = s.PurgeExpired(context.Background())
	assert.Error(t, err)
}

func TestRegisterRefreshTokensCleaner(t *testing.T) {
	s := setupTestTokenStore(t)
	addToken(t, s, uuid.New(), "expired", testNow.Add(-time.Hour))
	addToken(t, s, uuid.New(), "active", testNow.Add(time.Hour))

	scheduler, err := gocron.NewScheduler()
	require.NoError(t, err)
	t.Cleanup(func() { scheduler.Shutdown() })

	require.NoError(t, RegisterRefreshTokensCleaner(scheduler, s, ""))
	jobs := scheduler.Jobs()
	require.Len(t, jobs, 1)

	scheduler.Start()
	require.NoError(t, jobs[0].RunNow())

	assert.Eventually(t, func() bool {
		_, err := s.Find(context.Background(), "expired")
		return err == ErrNotFound
	}, 2*time.Second, 10*time.Millisecond)

	_, err = s.Find(context.Background(), "active")
	assert.NoError(t, err)
}

func TestRegisterRefreshTokensCleaner_BadSchedule(t *testing.T) {
	s := setupTestTokenStore(t)

	scheduler, err := gocron.NewScheduler()
	require.NoError(t, err)
	t.Cleanup(func() { scheduler.Shutdown() })

	assert.Error(t, RegisterRefreshTokensCleaner(scheduler, s, "every tuesday"))
}
