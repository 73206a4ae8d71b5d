package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// health and metrics endpoints are logged at debug so scrapers do not drown the access log
var quietRoutes = map[string]struct{}{
	"/healthz": {},
	"/metrics": {},
}

func Logger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		default:
			if _, quiet := quietRoutes[route]; quiet {
				event = log.Debug()
			} else {
				event = log.Info()
			}
		}

		if claims, ok := CurrentClaims(c); ok {
			event = event.Str("user_id", claims.UserID())
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}

		// the raw query is left out: OAuth callbacks carry codes in it
		event.
			Str("request_id", RequestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("route", route).
			Str("path", c.Request.URL.Path).
			Str("client_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}
