package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-set/v3"
)

const allowAnyOrigin = "*"

type CORSConfig struct {
	// AllowedOrigins lists exact origins, "*" allows any. Empty disables CORS.
	AllowedOrigins   []string      `yaml:"allowed_origins"`
	AllowCredentials bool          `yaml:"allow_credentials"`
	MaxAge           time.Duration `yaml:"max_age"`
}

// CORS answers preflight requests from allowed origins with 204 and rejects
// cross origin requests from anywhere else with 403. Same origin requests
// pass through untouched.
func CORS(conf *CORSConfig) gin.HandlerFunc {
	origins := set.From(conf.AllowedOrigins)
	if origins.Empty() {
		logger.Info().Msg("No CORS origins configured, cross origin requests are rejected by browsers")
		return func(c *gin.Context) { c.Next() }
	}

	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", HeaderRequestID},
		ExposeHeaders:    []string{HeaderRequestID},
		AllowCredentials: conf.AllowCredentials,
		MaxAge:           conf.MaxAge,
	}

	switch {
	case origins.Contains(allowAnyOrigin) && !conf.AllowCredentials:
		cfg.AllowAllOrigins = true
	case origins.Contains(allowAnyOrigin):
		// browsers refuse "*" with credentials, echo the origin instead.
		cfg.AllowOriginFunc = func(string) bool { return true }
	default:
		cfg.AllowOriginFunc = origins.Contains
	}

	return cors.New(cfg)
}
