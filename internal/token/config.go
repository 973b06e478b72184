package token

import (
	"errors"
	"time"
)

const (
	// MinSecretKeyLength is the minimum HS256 key size in bytes.
	MinSecretKeyLength = 32

	defaultAccessTokenTTL = 15 * time.Minute
	defaultIssuer         = "FinanSecure.Auth"
	defaultAudience       = "FinanSecure.App"
)

// Config is shared by every service that issues or verifies access tokens.
// It is built once at startup and must not be modified afterwards.
type Config struct {
	// SecretKey is the HMAC-SHA256 signing key. At least 32 bytes.
	SecretKey string `yaml:"secret_key"`

	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`

	// AccessTokenTTL defaults to 15 minutes.
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`

	// ClockSkew tolerated when checking iat/exp. Zero by default.
	ClockSkew time.Duration `yaml:"clock_skew"`
}

func (c *Config) ApplyDefaults() {
	if c.Issuer == "" {
		c.Issuer = defaultIssuer
	}
	if c.Audience == "" {
		c.Audience = defaultAudience
	}
	if c.AccessTokenTTL == 0 {
		c.AccessTokenTTL = defaultAccessTokenTTL
	}
}

// Validate applies defaults and reports the first weak or missing field.
func (c *Config) Validate() error {
	c.ApplyDefaults()

	if c.SecretKey == "" {
		return errors.New("jwt: secret key is missing")
	}
	if len(c.SecretKey) < MinSecretKeyLength {
		return errors.New("jwt: secret key must be at least 32 bytes")
	}
	if c.AccessTokenTTL < 0 {
		return errors.New("jwt: access token ttl must be positive")
	}
	if c.ClockSkew < 0 {
		return errors.New("jwt: clock skew must not be negative")
	}
	return nil
}
