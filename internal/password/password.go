// Package password hashes and verifies user credentials.
package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt only looks at the first 72 bytes of the input.
const MaxLength = 72

var (
	ErrPasswordTooLong = errors.New("password is longer than 72 bytes")
	ErrEmptyPassword   = errors.New("password is empty")
)

// Hasher is a salted one-way password hash. The salt lives inside the digest.
type Hasher interface {
	Hash(plaintext string) (string, error)
	// Verify reports whether plaintext matches digest. A malformed digest is a mismatch.
	Verify(plaintext, digest string) bool
}

type Bcrypt struct {
	Cost int
}

func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{Cost: cost}
}

func (b *Bcrypt) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	if len(plaintext) > MaxLength {
		return "", ErrPasswordTooLong
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), b.Cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

func (b *Bcrypt) Verify(plaintext, digest string) bool {
	if plaintext == "" || digest == "" {
		return false
	}
	// bcrypt ignores everything past 72 bytes, such input was never hashed.
	if len(plaintext) > MaxLength {
		return false
	}
	// CompareHashAndPassword compares with subtle.ConstantTimeCompare.
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
