// Package authapi serves the auth service over JSON under /api/v1/auth.
package authapi

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/charleshuang3/finansecure/internal/auth"
	"github.com/charleshuang3/finansecure/internal/handlers/middleware"
)

var (
	logger = log.With().Str("component", "authapi").Logger()
)

const serviceName = "FinanSecure.Auth"

type API struct {
	svc      *auth.Service
	verifier middleware.Verifier
	version  string
}

func New(svc *auth.Service, verifier middleware.Verifier, version string) *API {
	return &API{
		svc:      svc,
		verifier: verifier,
		version:  version,
	}
}

func (a *API) RegisterHandlers(rg *gin.RouterGroup) {
	rg.GET("/health", a.handleHealth)
	rg.GET("/api/v1/health", a.handleHealth)

	authRoutes := rg.Group("/api/v1/auth")
	{
		authRoutes.POST("/register", a.handleRegister)
		authRoutes.POST("/login", a.handleLogin)
		authRoutes.POST("/refresh-token", a.handleRefreshToken)
		authRoutes.POST("/logout", a.handleLogout)
		authRoutes.POST("/validate", a.handleValidate)
	}

	// ---- Caller identified by its access token ----
	sessionRoutes := rg.Group("/api/v1/auth", middleware.BearerAuth(a.verifier))
	{
		sessionRoutes.POST("/change-password", a.handleChangePassword)
		sessionRoutes.POST("/logout-all", a.handleLogoutAll)
		sessionRoutes.GET("/sessions", a.handleSessions)
	}
}
