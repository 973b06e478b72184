package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/charleshuang3/finansecure/internal/handlers/firewall"
	"github.com/charleshuang3/finansecure/internal/token"
)

const (
	keyIdentity = "identity"

	bearerPrefix = "Bearer "
)

// Verifier checks an access token, *token.Signer satisfies it.
type Verifier interface {
	VerifyAccessToken(signed string) (*token.Claims, error)
}

// BearerAuth rejects requests without a valid access token in the
// Authorization header. The verified claims become the request's identity,
// handlers must read the caller's id from CurrentIdentity and never from the
// request body or query.
func BearerAuth(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
			abortUnauthorized(c, "missing bearer token")
			return
		}

		claims, err := v.VerifyAccessToken(strings.TrimSpace(header[len(bearerPrefix):]))
		if err != nil {
			if !errors.Is(err, token.ErrTokenExpired) {
				// expiry is routine, a bad signature or audience is not.
				firewall.Report(c, "invalid bearer token")
			}
			abortUnauthorized(c, err.Error())
			return
		}

		if _, err := claims.UserID(); err != nil {
			abortUnauthorized(c, "subject is not a user id")
			return
		}

		c.Set(keyIdentity, claims)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, reason string) {
	logger.Debug().Str("request_id", RequestIDFrom(c)).Str("reason", reason).Msg("Bearer authentication failed")

	c.Header("WWW-Authenticate", `Bearer realm="finansecure"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"message": "Unauthorized.",
	})
}

// CurrentIdentity returns the claims stored by BearerAuth.
func CurrentIdentity(c *gin.Context) (*token.Claims, bool) {
	v, ok := c.Get(keyIdentity)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*token.Claims)
	return claims, ok
}

// CurrentUserID is the subject of the request's identity.
func CurrentUserID(c *gin.Context) (uuid.UUID, bool) {
	claims, ok := CurrentIdentity(c)
	if !ok {
		return uuid.Nil, false
	}
	id, err := claims.UserID()
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
