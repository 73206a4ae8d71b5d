package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"notehub/internal/observability"
)

// Recovery turns panics into a 500 and reports them to Sentry with request
// headers redacted.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		hub := sentry.CurrentHub().Clone()
		hub.Scope().SetRequest(c.Request)
		c.Request = c.Request.WithContext(sentry.SetHubOnContext(c.Request.Context(), hub))

		defer func() {
			if r := recover(); r != nil {
				requestID := c.Writer.Header().Get(requestIDHeader)
				hub.WithScope(func(scope *sentry.Scope) {
					scope.SetTag("request_id", requestID)
					scope.SetExtra("stack", string(debug.Stack()))
					hub.CaptureException(fmt.Errorf("panic: %v", r))
				})

				log.Error().
					Interface("error", r).
					Str("method", c.Request.Method).
					Str("path", c.Request.URL.Path).
					Interface("headers", observability.RedactHeaders(flatten(c.Request.Header))).
					Str("request_id", requestID).
					Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "internal_server_error",
				})
			}
		}()
		c.Next()
	}
}

func flatten(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for key := range header {
		out[key] = header.Get(key)
	}
	return out
}
