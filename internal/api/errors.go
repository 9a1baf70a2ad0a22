package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lalith-99/chatlog/internal/apperr"
	"github.com/lalith-99/chatlog/internal/middleware"
)

// writeError maps the service's error taxonomy onto status codes. Anything
// unrecognised is a 500 and the cause stays in the log.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	var (
		notFound   *apperr.NotFoundError
		invalid    *apperr.InvalidArgumentError
		validation *apperr.ValidationError
	)
	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Message})
	case errors.As(err, &validation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": validation.Errors})
	default:
		_ = c.Error(err)
		logger.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// number reads a positive integer path parameter. Anything else maps to 0,
// which matches no row, so a malformed number reads as "not found" after
// the application has been resolved.
func number(c *gin.Context, name string) int64 {
	n, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || n < 1 {
		return 0
	}
	return n
}
