package http

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const slowRequestThreshold = 500 * time.Millisecond

// Zerolog logs each request with method, path, status and latency.
// Requests slower than the threshold are promoted to warnings.
func Zerolog(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)

		event := log.Info()
		msg := "HTTP request"
		if latency > slowRequestThreshold {
			event = log.Warn()
			msg = "SLOW HTTP request"
		}

		event.
			Str("http.method", c.Request.Method).
			Str("http.path", c.Request.URL.Path).
			Int("http.status", c.Writer.Status()).
			Dur("http.latency", latency).
			Msg(msg)
	}
}

// CORS builds the CORS middleware. Allowed origins are comma separated;
// an empty string means any origin.
func CORS(allowedOrigins string) gin.HandlerFunc {
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}

	config := cors.DefaultConfig()
	config.AllowOrigins = strings.Split(allowedOrigins, ",")
	config.AllowMethods = []string{"GET", "HEAD", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}

	return cors.New(config)
}
