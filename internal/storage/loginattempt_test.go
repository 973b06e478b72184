package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoginAttemptStorage(t *testing.T) {
	s := NewLoginAttemptStorage(time.Minute)
	t.Cleanup(s.Close)

	assert.Equal(t, 0, s.Failures("alice"))

	assert.Equal(t, 1, s.RecordFailure("alice"))
	assert.Equal(t, 2, s.RecordFailure("alice"))
	assert.Equal(t, 1, s.RecordFailure("bob"))
	assert.Equal(t, 2, s.Failures("alice"))

	s.Reset("alice")
	assert.Equal(t, 0, s.Failures("alice"))
	assert.Equal(t, 1, s.Failures("bob"))
}

func TestLoginAttemptStorage_WindowExpires(t *testing.T) {
	s := NewLoginAttemptStorage(50 * time.Millisecond)
	t.Cleanup(s.Close)

	s.RecordFailure("alice")
	assert.Equal(t, 1, s.Failures("alice"))

	assert.Eventually(t, func() bool {
		return s.Failures("alice") == 0
	}, 3*time.Second, 20*time.Millisecond)
}
