package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charleshuang3/finansecure/internal/handlers/firewall"
	"github.com/charleshuang3/finansecure/internal/token"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setupTestBearer(t *testing.T) (*token.Signer, *gin.Engine) {
	t.Helper()

	signer, err := token.NewSigner(&token.Config{SecretKey: testSecret})
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	protected := router.Group("/", BearerAuth(signer))
	protected.GET("/me", func(c *gin.Context) {
		claims, ok := CurrentIdentity(c)
		require.True(t, ok)
		id, ok := CurrentUserID(c)
		require.True(t, ok)
		_, reported := c.Get(firewall.KeyHackingError)
		c.JSON(http.StatusOK, gin.H{"sub": claims.Subject, "id": id.String(), "name": claims.Username, "reported": reported})
	})
	router.GET("/public", func(c *gin.Context) {
		_, ok := CurrentIdentity(c)
		assert.False(t, ok)
		c.Status(http.StatusOK)
	})

	return signer, router
}

func TestBearerAuth_Accepts(t *testing.T) {
	signer, router := setupTestBearer(t)
	userID := uuid.NewString()

	access, err := signer.IssueAccessToken(userID, "alice", "alice@x.com")
	require.NoError(t, err)

	for _, scheme := range []string{"Bearer ", "bearer "} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", scheme+access)
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"sub":"`+userID+`","id":"`+userID+`","name":"alice","reported":false}`, rec.Body.String())
	}
}

func TestBearerAuth_Rejects(t *testing.T) {
	signer, router := setupTestBearer(t)

	other, err := token.NewSigner(&token.Config{SecretKey: "ffffffffffffffffffffffffffffffff"})
	require.NoError(t, err)
	forged, err := other.IssueAccessToken(uuid.NewString(), "alice", "alice@x.com")
	require.NoError(t, err)
	notUUID, err := signer.IssueAccessToken("alice", "alice", "alice@x.com")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "no header"},
		{name: "basic auth", header: "Basic YWxpY2U6cGFzcw=="},
		{name: "empty bearer", header: "Bearer "},
		{name: "garbage", header: "Bearer garbage"},
		{name: "other key", header: "Bearer " + forged},
		{name: "subject not a user id", header: "Bearer " + notUUID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"success":false,"message":"Unauthorized."}`, rec.Body.String())
			assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
		})
	}
}

func TestBearerAuth_ReportsForgedTokens(t *testing.T) {
	signer, err := token.NewSigner(&token.Config{SecretKey: testSecret, AccessTokenTTL: time.Second})
	require.NoError(t, err)
	other, err := token.NewSigner(&token.Config{SecretKey: "ffffffffffffffffffffffffffffffff"})
	require.NoError(t, err)

	forged, err := other.IssueAccessToken(uuid.NewString(), "alice", "alice@x.com")
	require.NoError(t, err)

	// a verifier whose clock is past the expiry of its own tokens.
	expired, err := signer.IssueAccessToken(uuid.NewString(), "alice", "alice@x.com")
	require.NoError(t, err)
	late := verifierFunc(func(s string) (*token.Claims, error) {
		if s == expired {
			return nil, token.ErrTokenExpired
		}
		return signer.VerifyAccessToken(s)
	})

	tests := []struct {
		name     string
		token    string
		reported bool
	}{
		{name: "forged", token: forged, reported: true},
		{name: "expired", token: expired, reported: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			router := gin.New()
			var reported bool
			router.Use(func(c *gin.Context) {
				c.Next()
				_, reported = c.Get(firewall.KeyHackingError)
			})
			router.GET("/me", BearerAuth(late), func(c *gin.Context) {})

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tt.reported, reported)
		})
	}
}

type verifierFunc func(string) (*token.Claims, error)

func (f verifierFunc) VerifyAccessToken(s string) (*token.Claims, error) {
	return f(s)
}

func TestCurrentIdentity_Public(t *testing.T) {
	_, router := setupTestBearer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/public", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
