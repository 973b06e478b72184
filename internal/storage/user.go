package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/charleshuang3/finansecure/internal/gormw"
	"github.com/charleshuang3/finansecure/internal/models"
)

type UserStore struct {
	db      *gormw.DB
	timeout time.Duration
}

func NewUserStore(db *gormw.DB, timeout time.Duration) *UserStore {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &UserStore{db: db, timeout: timeout}
}

func (s *UserStore) withTimeout(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return s.db.WithContext(ctx), cancel
}

func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	user := &models.User{}
	if err := db.Where("id = ?", id).First(user).Error; err != nil {
		return nil, translateError(err)
	}
	return user, nil
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	user := &models.User{}
	if err := db.Where("username = ?", username).First(user).Error; err != nil {
		return nil, translateError(err)
	}
	return user, nil
}

func (s *UserStore) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	var count int64
	err := db.Model(&models.User{}).
		Where("username = ? OR email = ?", username, email).
		Count(&count).Error
	return count > 0, err
}

// Create inserts the user. The unique indexes on username and email still
// guard against a concurrent registration, reported as ErrConflict.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	return translateError(db.Create(user).Error)
}

func (s *UserStore) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	return db.Model(&models.User{}).Where("id = ?", id).Update("last_login_at", at.UTC()).Error
}

func (s *UserStore) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	res := db.Model(&models.User{}).Where("id = ?", id).Update("password_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
