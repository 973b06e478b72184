package storage

import (
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rs/zerolog/log"
)

const (
	maxLoginAttemptKeys = 100000
)

// LoginAttemptStorage counts failed logins per username. A count lives for the
// lockout window after the latest failure.
type LoginAttemptStorage struct {
	cache  *ristretto.Cache[string, int]
	window time.Duration

	// serializes read-modify-write of a counter.
	mu sync.Mutex
}

func NewLoginAttemptStorage(window time.Duration) *LoginAttemptStorage {
	c, err := ristretto.NewCache(&ristretto.Config[string, int]{
		NumCounters: maxLoginAttemptKeys * 10,
		MaxCost:     maxLoginAttemptKeys,
		BufferItems: 64,
	})

	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create login attempt storage")
	}

	return &LoginAttemptStorage{
		cache:  c,
		window: window,
	}
}

// Failures returns the number of failed logins inside the window.
func (s *LoginAttemptStorage) Failures(username string) int {
	n, _ := s.cache.Get(username)
	return n
}

// RecordFailure increments the counter and returns the new count.
func (s *LoginAttemptStorage) RecordFailure(username string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, _ := s.cache.Get(username)
	n++
	s.cache.SetWithTTL(username, n, 1, s.window)
	s.cache.Wait()
	return n
}

func (s *LoginAttemptStorage) Reset(username string) {
	s.cache.Del(username)
	s.cache.Wait()
}

func (s *LoginAttemptStorage) Close() {
	s.cache.Close()
}
