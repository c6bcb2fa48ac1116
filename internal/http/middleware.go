package http

import (
	"log/slog"
	"mime"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
)

// CustomLoggerMiddleware logs every request with slog. Request bodies are never logged:
// they may carry passphrases or credentials.
func CustomLoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		attrs := []any{
			slog.String("request_id", requestid.Get(c)),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}

		switch {
		case c.Writer.Status() >= 500:
			logger.Error("http request", attrs...)
		default:
			logger.Info("http request", attrs...)
		}
	}
}

// LocalOnlyMiddleware keeps browsers from driving the API on behalf of another site.
// The API has no authentication and trusts whoever can reach the loopback port, so it
// rejects:
//   - 421 Misdirected Request: a Host header that does not name a loopback address
//     (DNS rebinding)
//   - 403 Forbidden: an Origin header outside allowedOrigins
//   - 415 Unsupported Media Type: a mutating request that is not application/json,
//     which a cross-site form or simple fetch cannot send without a preflight
func LocalOnlyMiddleware(allowedOrigins []string, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := c.Request

		if !isLoopbackHost(req.Host) {
			logger.Warn("request for non-loopback host rejected", slog.String("host", req.Host))
			c.AbortWithStatusJSON(http.StatusMisdirectedRequest, gin.H{
				"error":   "misdirected_request",
				"message": "The API only answers requests addressed to a loopback host.",
			})
			return
		}

		if origin := req.Header.Get("Origin"); origin != "" && !slices.Contains(allowedOrigins, origin) {
			logger.Warn("cross-origin request rejected", slog.String("origin", origin))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Requests from this origin are not allowed.",
			})
			return
		}

		if isMutating(req.Method) && !isJSON(req.Header.Get("Content-Type")) {
			c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
				"error":   "unsupported_media_type",
				"message": "Content-Type must be application/json.",
			})
			return
		}

		c.Next()
	}
}

// isLoopbackHost reports whether host, with or without a port, is localhost or a
// loopback IP.
func isLoopbackHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}
