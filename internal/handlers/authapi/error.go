package authapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charleshuang3/finansecure/internal/auth"
	"github.com/charleshuang3/finansecure/internal/handlers/firewall"
	"github.com/charleshuang3/finansecure/internal/handlers/middleware"
)

func statusOf(kind auth.Kind) int {
	switch kind {
	case auth.KindValidation, auth.KindConflict:
		return http.StatusBadRequest
	case auth.KindUnauthorized:
		return http.StatusUnauthorized
	case auth.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// responseError writes the failure envelope. Internal causes are only logged,
// with the request id for correlation.
func responseError(c *gin.Context, err error) {
	e := auth.AsError(err)

	if e.Kind == auth.KindInternal {
		logger.Error().Err(e).Str("request_id", middleware.RequestIDFrom(c)).Str("path", c.FullPath()).Msg("Internal failure")
	}
	if e.Suspicious {
		logMayHack(c, e.Reason)
	}

	c.JSON(statusOf(e.Kind), auth.ErrorResponse(e))
}

func responseBadRequestAndLogMaybeHack(c *gin.Context, msg string, err error) {
	logMayHack(c, "malformed request: "+err.Error())
	c.JSON(http.StatusBadRequest, &auth.AuthResponse{
		Success: false,
		Message: msg,
	})
}

func logMayHack(c *gin.Context, reason string) {
	firewall.Report(c, reason)
}
