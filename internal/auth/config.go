package auth

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
	defaultStoreTimeout    = 5 * time.Second
	defaultLockoutWindow   = 15 * time.Minute
)

type Config struct {
	// RefreshTokenTTL defaults to 7 days.
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`

	// StoreTimeout bounds every storage call. Defaults to 5s.
	StoreTimeout time.Duration `yaml:"store_timeout"`

	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int `yaml:"bcrypt_cost"`

	// RevokeSessionsOnPasswordChange logs the user out everywhere after a
	// password change. Off by default, existing sessions stay valid until they
	// expire.
	RevokeSessionsOnPasswordChange bool `yaml:"revoke_sessions_on_password_change"`

	// RevokeAllOnReplay revokes every session of a user when one of its
	// already rotated refresh tokens is presented again.
	RevokeAllOnReplay bool `yaml:"revoke_all_on_replay"`

	// MaxFailedLogins locks a username after this many failed logins within
	// LockoutWindow. Zero or negative leaves the lockout off, the default.
	MaxFailedLogins int           `yaml:"max_failed_logins"`
	LockoutWindow   time.Duration `yaml:"lockout_window"`
}

func (c *Config) ApplyDefaults() {
	if c.RefreshTokenTTL == 0 {
		c.RefreshTokenTTL = defaultRefreshTokenTTL
	}
	if c.StoreTimeout == 0 {
		c.StoreTimeout = defaultStoreTimeout
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
	if c.LockoutWindow == 0 {
		c.LockoutWindow = defaultLockoutWindow
	}
}

// LockoutEnabled reports whether failed logins are counted.
func (c *Config) LockoutEnabled() bool {
	return c.MaxFailedLogins > 0
}

// Validate applies defaults and reports the first invalid field.
func (c *Config) Validate() error {
	c.ApplyDefaults()

	if c.RefreshTokenTTL < 0 {
		return errors.New("auth: refresh token ttl must be positive")
	}
	if c.StoreTimeout < 0 {
		return errors.New("auth: store timeout must be positive")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return errors.New("auth: bcrypt cost out of range")
	}
	if c.LockoutWindow < 0 {
		return errors.New("auth: lockout window must be positive")
	}
	return nil
}
