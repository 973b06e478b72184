package storage

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrConflict      = errors.New("record already exists")
	ErrTokenInactive = errors.New("refresh token is revoked or expired")
)

// translateError maps gorm errors to the errors of this package, others are
// returned as is.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), isUniqueViolation(err):
		return ErrConflict
	}
	return err
}

// isUniqueViolation covers drivers without error translation.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
