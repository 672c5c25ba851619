package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// KeyMessageKind is set on the gin context by the exchange handler so the
// request logger can tag protocol traffic with the message kind it carried.
const KeyMessageKind = "message_kind"

// RequestLogger logs each request with method, route, status, and timing.
// Exchange requests additionally carry the protocol message kind when the
// handler resolved one.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		event := logger.Info()
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		}
		if kind := c.GetString(KeyMessageKind); kind != "" {
			event = event.Str("kind", kind)
		}
		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("http_request")
	}
}

// RequestMetricsMiddleware records one observation per request on the
// connector-labeled HTTP metrics.
func RequestMetricsMiddleware(connector string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		RecordHTTPRequest(connector, c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
