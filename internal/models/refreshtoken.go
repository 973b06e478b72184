package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is one issued refresh token, which is also one login session.
// Token holds the opaque string given to the client. Records are never
// un-revoked.
type RefreshToken struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null"` // with index, easy to find all sessions of a user
	Token     string    `gorm:"uniqueIndex;size:128;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	RevokedAt *time.Time
	// ReplacedByID is set when the token was revoked by rotation.
	ReplacedByID *uuid.UUID `gorm:"type:uuid"`
	CreatedAt    time.Time
	UserAgent    string `gorm:"size:512"`
	IPAddress    string `gorm:"size:64"`
}

func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsRotated reports whether the token was exchanged for a newer one, as
// opposed to revoked by a logout.
func (t *RefreshToken) IsRotated() bool {
	return t.RevokedAt != nil && t.ReplacedByID != nil
}

func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// IsActive reports whether the token can still be exchanged at now.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.IsRevoked() && !t.IsExpired(now)
}
