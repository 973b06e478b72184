// Package testapp is a stand-in for a downstream FinanSecure service. It keeps
// no users of its own and trusts any access token signed with the shared
// secret.
package testapp

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/charleshuang3/finansecure/internal/handlers/middleware"
)

var (
	logger = log.With().Str("component", "testapp").Logger()
)

type transaction struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"accountId"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	Description string    `json:"description"`
	BookedAt    time.Time `json:"bookedAt"`
}

type whoamiResponse struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	TokenID   string    `json:"tokenId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func NewRouter(verifier middleware.Verifier) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.AccessLog(), middleware.Recovery())

	api := router.Group("/api/v1", middleware.BearerAuth(verifier))
	api.GET("/whoami", whoami)
	api.GET("/transactions", listTransactions)

	return router
}

func NewServer(port int, verifier middleware.Verifier) {
	addr := fmt.Sprintf(":%d", port)
	logger.Info().Msgf("Starting test app server on %s", addr)
	if err := NewRouter(verifier).Run(addr); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start test app server")
	}
}

func whoami(c *gin.Context) {
	claims, ok := middleware.CurrentIdentity(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	c.JSON(http.StatusOK, &whoamiResponse{
		UserID:    claims.Subject,
		Username:  claims.Username,
		Email:     claims.Email,
		TokenID:   claims.TokenID,
		ExpiresAt: claims.ExpiresAt,
	})
}

// listTransactions returns a fixed ledger derived from the caller's id, so
// different users see different data.
func listTransactions(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":       userID.String(),
		"transactions": fakeLedger(userID),
	})
}

func fakeLedger(userID uuid.UUID) []transaction {
	account := uuid.NewSHA1(userID, []byte("checking")).String()
	booked := time.Date(2024, time.January, 2, 9, 0, 0, 0, time.UTC)

	descriptions := []string{"Salary", "Rent", "Groceries"}
	amounts := []string{"4200.00", "-1350.00", "-86.40"}

	ledger := make([]transaction, 0, len(descriptions))
	for i := range descriptions {
		ledger = append(ledger, transaction{
			ID:          uuid.NewSHA1(userID, fmt.Appendf(nil, "tx-%d", i)).String(),
			AccountID:   account,
			Amount:      amounts[i],
			Currency:    "EUR",
			Description: descriptions[i],
			BookedAt:    booked.AddDate(0, 0, i),
		})
	}
	return ledger
}
