// Package middleware holds the gin middleware shared by the auth service and
// by downstream services that accept its access tokens.
package middleware

import (
	"github.com/rs/zerolog/log"
)

var (
	logger = log.With().Str("component", "http").Logger()
)
