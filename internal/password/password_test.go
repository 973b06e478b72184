package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcrypt_HashAndVerify(t *testing.T) {
	h := NewBcrypt(bcrypt.MinCost)

	passwords := []string{
		"Password123!",
		"correct horse battery staple",
		"ÄÖÜ-unicode-✓",
		strings.Repeat("a", MaxLength),
	}

	for _, pw := range passwords {
		t.Run(pw, func(t *testing.T) {
			digest, err := h.Hash(pw)
			require.NoError(t, err)
			assert.NotEqual(t, pw, digest, "Digest must not contain the plaintext")

			assert.True(t, h.Verify(pw, digest))
			assert.False(t, h.Verify(pw+"x", digest))
			assert.False(t, h.Verify(strings.ToUpper(pw)+"!", digest))
		})
	}
}

func TestBcrypt_HashIsSalted(t *testing.T) {
	h := NewBcrypt(bcrypt.MinCost)

	a, err := h.Hash("Password123!")
	require.NoError(t, err)
	b, err := h.Hash("Password123!")
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "Two hashes of the same password must differ")
	assert.True(t, h.Verify("Password123!", a))
	assert.True(t, h.Verify("Password123!", b))
}

func TestBcrypt_HashRejects(t *testing.T) {
	h := NewBcrypt(bcrypt.MinCost)

	_, err := h.Hash("")
	assert.ErrorIs(t, err, ErrEmptyPassword)

	_, err = h.Hash(strings.Repeat("a", MaxLength+1))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestBcrypt_VerifyInvalidDigest(t *testing.T) {
	h := NewBcrypt(bcrypt.MinCost)

	tests := []struct {
		name   string
		digest string
	}{
		{name: "empty", digest: ""},
		{name: "garbage", digest: "not-a-bcrypt-digest"},
		{name: "truncated", digest: "$2a$10$abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, h.Verify("Password123!", tt.digest))
		})
	}
}

func TestNewBcrypt_DefaultCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewBcrypt(0).Cost)
	assert.Equal(t, bcrypt.DefaultCost, NewBcrypt(99).Cost)
	assert.Equal(t, 12, NewBcrypt(12).Cost)
}
