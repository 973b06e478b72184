package storage

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/charleshuang3/finansecure/internal/gormw"
	"github.com/charleshuang3/finansecure/internal/models"
)

var (
	logger = log.With().Str("component", "storage").Logger()
)

const (
	DefaultTimeout = 5 * time.Second

	// 4am Daily
	DefaultCleanerSchedule = "0 4 * * *"
)

// RefreshTokenStore persists refresh token records. Every call is bounded by
// the store timeout on top of the caller's context.
type RefreshTokenStore struct {
	db      *gormw.DB
	timeout time.Duration

	now func() time.Time
}

func NewRefreshTokenStore(db *gormw.DB, timeout time.Duration) *RefreshTokenStore {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RefreshTokenStore{
		db:      db,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *RefreshTokenStore) withTimeout(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return s.db.WithContext(ctx), cancel
}

func (s *RefreshTokenStore) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	o := &models.RefreshToken{}
	if err := db.Where("token = ?", token).First(o).Error; err != nil {
		return nil, translateError(err)
	}
	return o, nil
}

// Create inserts the record, assigning an id when missing. A duplicate token
// fails with ErrConflict.
func (s *RefreshTokenStore) Create(ctx context.Context, rt *models.RefreshToken) error {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	prepareRefreshToken(rt)
	return translateError(db.Create(rt).Error)
}

func prepareRefreshToken(rt *models.RefreshToken) {
	if rt.ID == uuid.Nil {
		rt.ID = uuid.New()
	}
	rt.ExpiresAt = rt.ExpiresAt.UTC()
}

// Revoke marks the token revoked. Revoking an already revoked token is not an
// error, the result is false only when the token does not exist.
func (s *RefreshTokenStore) Revoke(ctx context.Context, token string) (bool, error) {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	res := db.Model(&models.RefreshToken{}).
		Where("token = ? AND revoked_at IS NULL", token).
		Update("revoked_at", s.now())
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	if err := db.Model(&models.RefreshToken{}).Where("token = ?", token).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// RevokeAll revokes every active token of the user and returns how many were
// revoked.
func (s *RefreshTokenStore) RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.now()
	res := db.Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, now).
		Update("revoked_at", now)
	return res.RowsAffected, res.Error
}

// ListActive returns the user's active tokens, newest first.
func (s *RefreshTokenStore) ListActive(ctx context.Context, userID uuid.UUID) ([]models.RefreshToken, error) {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	var tokens []models.RefreshToken
	err := db.Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, s.now()).
		Order("created_at DESC").
		Find(&tokens).Error
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// PurgeExpired hard deletes records that expired before the call started.
// Records created while it runs expire in the future and are kept.
func (s *RefreshTokenStore) PurgeExpired(ctx context.Context) (int64, error) {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	cutoff := s.now()
	res := db.Where("expires_at < ?", cutoff).Delete(&models.RefreshToken{})
	return res.RowsAffected, res.Error
}

// Rotate revokes presented, pointing it at next, and inserts next in one
// transaction. The revoke is
// conditional on presented still being active, so of two concurrent rotations
// of the same token only one succeeds, the other gets ErrTokenInactive.
func (s *RefreshTokenStore) Rotate(ctx context.Context, presented string, next *models.RefreshToken) error {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	prepareRefreshToken(next)
	now := s.now()

	err := db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RefreshToken{}).
			Where("token = ? AND revoked_at IS NULL AND expires_at > ?", presented, now).
			Updates(map[string]any{"revoked_at": now, "replaced_by_id": next.ID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTokenInactive
		}

		return tx.Create(next).Error
	})
	if errors.Is(err, ErrTokenInactive) {
		return err
	}
	return translateError(err)
}

type ExpiredTokenPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Refresh token will exists in database forever if not register a cleaner.
func RegisterRefreshTokensCleaner(scheduler gocron.Scheduler, store ExpiredTokenPurger, schedule string) error {
	if schedule == "" {
		schedule = DefaultCleanerSchedule
	}

	_, err := scheduler.NewJob(
		gocron.CronJob(schedule, false),
		gocron.NewTask(
			func() {
				logger.Info().Msg("Cleaning up expired refresh tokens")
				n, err := store.PurgeExpired(context.Background())
				if err != nil {
					logger.Error().Err(err).Msg("Failed to purge expired refresh tokens")
					return
				}
				logger.Info().Int64("purged", n).Msg("Expired refresh tokens purged")
			},
		),
		gocron.WithName("purge-expired-refresh-tokens"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	return err
}
