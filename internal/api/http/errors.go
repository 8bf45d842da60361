package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/folderstore/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/folderstore/internal/providers/filesystem"
)

// Request-level error codes not produced by the store
const (
	codeBadRequest    = "bad_request"
	codeInvalidFormat = "invalid_format"
)

var errMissingPart = errors.New("multipart field is missing")

// classify maps an error to its HTTP status and machine-readable code
func classify(err error) (int, string) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge, "too_large"
	}

	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return http.StatusInsufficientStorage, "disk_full"
	}

	code := filesystem.Code(err)
	if filesystem.IsDiskFull(err) {
		return http.StatusInsufficientStorage, code
	}

	switch filesystem.KindOf(err) {
	case filesystem.ErrInvalidPath:
		return http.StatusBadRequest, code
	case filesystem.ErrNotFound:
		return http.StatusNotFound, code
	case filesystem.ErrAlreadyExists:
		return http.StatusConflict, code
	case filesystem.ErrTooLarge:
		return http.StatusRequestEntityTooLarge, code
	case filesystem.ErrUnpack:
		return http.StatusUnprocessableEntity, code
	default:
		return http.StatusInternalServerError, code
	}
}

// fail aborts with the JSON error body. Server-side failures hide the cause
// from the client and log it instead.
func (h *Handlers) fail(c *gin.Context, op string, err error) {
	status, code := classify(err)
	_ = c.Error(err)

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error("operation failed",
			zap.String("operation", op),
			zap.String("code", code),
			zap.Error(err),
		)
		msg = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code})
}

// badRequest aborts with a 400 for malformed input
func (h *Handlers) badRequest(c *gin.Context, code string, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": code})
}
