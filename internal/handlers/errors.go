package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"notehub/internal/media/sniffer"
	"notehub/internal/middleware"
	"notehub/internal/observability"
	"notehub/internal/service"
)

// writeError maps a service error onto a response. Unknown errors are logged,
// reported to Sentry and answered with a generic 500.
func (h HandlerSet) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
	case errors.Is(err, sniffer.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload_too_large", "message": err.Error()})
	case errors.Is(err, sniffer.ErrUnsupportedType),
		errors.Is(err, sniffer.ErrTypeMismatch),
		errors.Is(err, sniffer.ErrEmpty):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_file", "message": err.Error()})
	case errors.Is(err, service.ErrDuplicateIdentity):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": "User with this email already exists"})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Invalid credentials"})
	case errors.Is(err, service.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "Access denied"})
	case errors.Is(err, service.ErrNoteNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Note not found"})
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "User not found"})
	default:
		h.log.Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Str("request_id", middleware.RequestIDFrom(c)).
			Msg("request failed")
		observability.CaptureError(c.Request.Context(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
}
