package middleware

import (
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-ID"

	maxRequestIDLength = 128
)

// RequestID reuses a sane incoming X-Request-ID or generates one, and echoes
// it in the response.
func RequestID() gin.HandlerFunc {
	next := requestid.New(requestid.WithGenerator(uuid.NewString))

	return func(c *gin.Context) {
		if len(c.GetHeader(HeaderRequestID)) > maxRequestIDLength {
			c.Request.Header.Del(HeaderRequestID)
		}
		next(c)
	}
}

func RequestIDFrom(c *gin.Context) string {
	return requestid.Get(c)
}
