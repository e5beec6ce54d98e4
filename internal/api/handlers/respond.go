package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"crew-orchestrator/internal/models"
)

// respondError maps service errors onto HTTP statuses. Unrecognized errors
// become a generic 500 so internals never leak to callers.
func respondError(c *gin.Context, log *logrus.Logger, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(c, http.StatusNotFound, "not_found", "Resource not found")
	case errors.Is(err, models.ErrValidation):
		writeError(c, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, models.ErrInvalidState):
		writeError(c, http.StatusBadRequest, "invalid_state", err.Error())
	case errors.Is(err, models.ErrTooManyConnections):
		writeError(c, http.StatusTooManyRequests, "too_many_connections", "Connection limit reached, close another stream first")
	case errors.Is(err, models.ErrUpstream):
		writeError(c, http.StatusBadGateway, "upstream_error", "Crew runner request failed")
	default:
		log.WithError(err).Error("Unhandled error")
		writeError(c, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, models.ErrorResponse{
		Error:   code,
		Message: message,
		Code:    status,
	})
}
