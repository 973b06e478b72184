package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username     string    `gorm:"uniqueIndex;size:32;not null"`
	Email        string    `gorm:"uniqueIndex;size:255;not null"`
	FirstName    string    `gorm:"size:100"`
	LastName     string    `gorm:"size:100"`
	PasswordHash string    `gorm:"not null"`
	IsActive     bool      `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  *time.Time
}
