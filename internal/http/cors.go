package http

import (
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/allisson/capvault/internal/config"
)

// createCORSMiddleware returns a CORS middleware for a browser front end served from
// another origin, or nil when CORS is disabled or no origin is configured. The API binds
// to loopback by default and CORS stays off unless CORS_ENABLED is set.
func createCORSMiddleware(enabled bool, allowOriginsStr string, logger *slog.Logger) gin.HandlerFunc {
	if !enabled {
		return nil
	}

	origins := parseOrigins(allowOriginsStr)
	if len(origins) == 0 {
		logger.Warn("CORS enabled but no origins configured - CORS will not be applied")
		return nil
	}
	for _, origin := range origins {
		if origin == "*" {
			// A wildcard would let any page in the browser unlock the vault.
			logger.Warn("CORS wildcard origin rejected")
			return nil
		}
	}

	logger.Info("CORS enabled", slog.Any("origins", origins))

	return cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:  []string{"Content-Type"},
		ExposeHeaders: []string{"X-Request-Id", "Retry-After"},
		MaxAge:        12 * time.Hour,
	})
}

// allowedOrigins lists the browser origins the API answers: the CORS origins when CORS
// is enabled and applied, none otherwise.
func allowedOrigins(cfg *config.Config) []string {
	if !cfg.CORSEnabled {
		return nil
	}
	origins := parseOrigins(cfg.CORSAllowOrigins)
	if slices.Contains(origins, "*") {
		return nil
	}
	return origins
}

// parseOrigins splits a comma-separated origin list, dropping blanks.
func parseOrigins(originsStr string) []string {
	var origins []string
	for part := range strings.SplitSeq(originsStr, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
