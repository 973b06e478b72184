// Package token issues and verifies the access and refresh tokens handed out by
// the auth service.
//
// Access tokens are HS256 JWTs verified by signature alone, so any service that
// shares the secret can check them without a database. Refresh tokens are opaque
// random strings whose state lives in storage.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/rs/zerolog/log"
)

var (
	logger = log.With().Str("component", "token").Logger()
)

const (
	claimName  = "name"
	claimEmail = "email"
	claimType  = "type"

	accessTokenType = "access"

	refreshTokenBytes = 64
)

var (
	ErrInvalidToken = errors.New("invalid access token")
	ErrTokenExpired = fmt.Errorf("%w: expired", ErrInvalidToken)
)

// Claims is the identity carried by a verified access token.
type Claims struct {
	Subject   string
	Username  string
	Email     string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// UserID parses the subject as the user's id.
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

type Signer struct {
	config *Config
	secret []byte

	now func() time.Time
}

// NewSigner validates the config and fails on a missing or weak secret.
func NewSigner(config *Config) (*Signer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Signer{
		config: config,
		secret: []byte(config.SecretKey),
		now:    time.Now,
	}, nil
}

func (s *Signer) IssueAccessToken(userID, username, email string) (string, error) {
	now := s.now()

	tok, err := jwt.NewBuilder().
		Issuer(s.config.Issuer).
		Audience([]string{s.config.Audience}).
		Subject(userID).
		IssuedAt(now).
		Expiration(now.Add(s.config.AccessTokenTTL)).
		JwtID(uuid.NewString()).
		Claim(claimName, username).
		Claim(claimEmail, email).
		Claim(claimType, accessTokenType).
		Build()
	if err != nil {
		return "", fmt.Errorf("failed to build access token claims: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256(), s.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return string(signed), nil
}

// IssueRefreshToken returns 64 random bytes, base64 encoded. It carries no claims.
func (s *Signer) IssueRefreshToken() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// VerifyAccessToken checks signature, issuer, audience, lifetime and token type.
// Every rejection wraps ErrInvalidToken.
func (s *Signer) VerifyAccessToken(signed string) (*Claims, error) {
	if signed == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidToken)
	}

	tok, err := jwt.Parse([]byte(signed),
		jwt.WithKey(jwa.HS256(), s.secret),
		jwt.WithValidate(true),
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithAudience(s.config.Audience),
		jwt.WithAcceptableSkew(s.config.ClockSkew),
		jwt.WithClock(jwt.ClockFunc(s.now)),
	)
	if err != nil {
		if errors.Is(err, jwt.TokenExpiredError()) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var typ string
	if err := tok.Get(claimType, &typ); err != nil || typ != accessTokenType {
		return nil, fmt.Errorf("%w: not an access token", ErrInvalidToken)
	}

	claims := &Claims{}

	var ok bool
	if claims.Subject, ok = tok.Subject(); !ok || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if claims.ExpiresAt, ok = tok.Expiration(); !ok {
		return nil, fmt.Errorf("%w: missing expiration", ErrInvalidToken)
	}
	claims.IssuedAt, _ = tok.IssuedAt()
	claims.TokenID, _ = tok.JwtID()

	// name and email are informational, a token without them is still valid.
	if err := tok.Get(claimName, &claims.Username); err != nil {
		logger.Debug().Err(err).Str("sub", claims.Subject).Msg("access token without name claim")
	}
	if err := tok.Get(claimEmail, &claims.Email); err != nil {
		logger.Debug().Err(err).Str("sub", claims.Subject).Msg("access token without email claim")
	}

	return claims, nil
}

// TokenExpiry is the expiry an access token issued right now would get.
func (s *Signer) TokenExpiry() time.Time {
	return s.now().Add(s.config.AccessTokenTTL)
}

// ExpiresIn is the access token lifetime in seconds.
func (s *Signer) ExpiresIn() int64 {
	return int64(s.config.AccessTokenTTL / time.Second)
}
