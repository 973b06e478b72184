package authapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charleshuang3/finansecure/internal/auth"
	"github.com/charleshuang3/finansecure/internal/handlers/middleware"
)

func clientInfo(c *gin.Context) auth.ClientInfo {
	return auth.ClientInfo{
		UserAgent: c.Request.UserAgent(),
		IP:        c.ClientIP(),
	}
}

func (a *API) handleRegister(c *gin.Context) {
	params := &auth.RegisterRequest{}
	if err := c.ShouldBindJSON(params); err != nil {
		responseBadRequestAndLogMaybeHack(c, "Invalid registration data.", err)
		return
	}

	resp, err := a.svc.Register(c.Request.Context(), *params)
	if err != nil {
		responseError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) handleLogin(c *gin.Context) {
	params := &auth.LoginRequest{}
	if err := c.ShouldBindJSON(params); err != nil {
		responseBadRequestAndLogMaybeHack(c, "Invalid login data.", err)
		return
	}

	resp, err := a.svc.Login(c.Request.Context(), *params, clientInfo(c))
	if err != nil {
		responseError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) handleRefreshToken(c *gin.Context) {
	params := &auth.RefreshTokenRequest{}
	if err := c.ShouldBindJSON(params); err != nil {
		responseBadRequestAndLogMaybeHack(c, "Refresh token is required.", err)
		return
	}

	resp, err := a.svc.RefreshToken(c.Request.Context(), params.RefreshToken, clientInfo(c))
	if err != nil {
		responseError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleLogout answers success whether or not the token was active, so the
// response tells nothing about the token.
func (a *API) handleLogout(c *gin.Context) {
	params := &auth.RefreshTokenRequest{}
	if err := c.ShouldBindJSON(params); err != nil {
		responseBadRequestAndLogMaybeHack(c, "Refresh token is required.", err)
		return
	}

	if _, err := a.svc.RevokeToken(c.Request.Context(), params.RefreshToken); err != nil {
		e := auth.AsError(err)
		if e.Kind == auth.KindInternal {
			logger.Error().Err(e).Str("request_id", middleware.RequestIDFrom(c)).Msg("Logout failed")
		}
		c.JSON(http.StatusBadRequest, &auth.AuthResponse{Success: false, Message: "Logout failed."})
		return
	}
	c.JSON(http.StatusOK, auth.LogoutResponse())
}

type validateParams struct {
	Token string `form:"token" binding:"required"`
}

func (a *API) handleValidate(c *gin.Context) {
	params := &validateParams{}
	if err := c.ShouldBindQuery(params); err != nil {
		c.JSON(http.StatusBadRequest, &auth.AuthResponse{Success: false, Message: "Token is required."})
		return
	}

	resp, err := a.svc.ValidateAccessToken(c.Request.Context(), params.Token)
	if err != nil {
		responseError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) handleChangePassword(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	params := &auth.ChangePasswordRequest{}
	if err := c.ShouldBindJSON(params); err != nil {
		responseBadRequestAndLogMaybeHack(c, "Invalid password change data.", err)
		return
	}

	resp, err := a.svc.ChangePassword(c.Request.Context(), userID, *params)
	if err != nil {
		responseError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) handleLogoutAll(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	n, err := a.svc.RevokeAllSessions(c.Request.Context(), userID)
	if err != nil {
		responseError(c, err)
		return
	}
	c.JSON(http.StatusOK, auth.LogoutAllResponse(n))
}

type sessionsResponse struct {
	Success  bool              `json:"success"`
	Sessions []auth.SessionDTO `json:"sessions"`
}

func (a *API) handleSessions(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	sessions, err := a.svc.ListSessions(c.Request.Context(), userID)
	if err != nil {
		responseError(c, err)
		return
	}
	c.JSON(http.StatusOK, &sessionsResponse{Success: true, Sessions: sessions})
}

type healthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, &healthResponse{
		Status:    "healthy",
		Service:   serviceName,
		Timestamp: time.Now().UTC(),
		Version:   a.version,
	})
}
