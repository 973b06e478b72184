package testapp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charleshuang3/finansecure/internal/token"
)

func setupTestRouter(t *testing.T, secret string) (*gin.Engine, *token.Signer) {
	t.Helper()

	gin.SetMode(gin.TestMode)
	signer, err := token.NewSigner(&token.Config{SecretKey: secret})
	require.NoError(t, err)
	return NewRouter(signer), signer
}

func get(router *gin.Engine, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestTransactions(t *testing.T) {
	router, signer := setupTestRouter(t, "0123456789abcdef0123456789abcdef")

	userID := uuid.New()
	access, err := signer.IssueAccessToken(userID.String(), "alice", "alice@x.com")
	require.NoError(t, err)

	rec := get(router, "/api/v1/transactions", access)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		UserID       string        `json:"userId"`
		Transactions []transaction `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, userID.String(), resp.UserID)
	assert.Len(t, resp.Transactions, 3)

	// same user, same ledger.
	assert.Equal(t, fakeLedger(userID)[0].ID, resp.Transactions[0].ID)
	assert.NotEqual(t, fakeLedger(uuid.New())[0].ID, resp.Transactions[0].ID)

	rec = get(router, "/api/v1/whoami", access)
	require.Equal(t, http.StatusOK, rec.Code)
	var who whoamiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &who))
	assert.Equal(t, "alice", who.Username)
	assert.Equal(t, "alice@x.com", who.Email)
	assert.NotEmpty(t, who.TokenID)
}

func TestTransactions_Unauthorized(t *testing.T) {
	router, _ := setupTestRouter(t, "0123456789abcdef0123456789abcdef")

	// signed by a service with another secret.
	_, other := setupTestRouter(t, "fedcba9876543210fedcba9876543210")
	foreign, err := other.IssueAccessToken(uuid.NewString(), "mallory", "m@x.com")
	require.NoError(t, err)

	for _, bearer := range []string{"", "garbage", foreign} {
		rec := get(router, "/api/v1/transactions", bearer)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}
