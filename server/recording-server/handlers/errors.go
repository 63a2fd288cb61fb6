package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/legendsaurav/scramer/server/core/ccc/logging"
	"github.com/legendsaurav/scramer/server/core/encoding"
	"github.com/legendsaurav/scramer/server/core/merging"
	"github.com/legendsaurav/scramer/server/core/segments"
)

// MissingFileError is returned when an upload carries no file part
type MissingFileError struct {
	Field string
}

func (e *MissingFileError) Error() string {
	return "Missing file"
}

// InvalidRequestError is returned for malformed or incomplete request input
type InvalidRequestError struct {
	Message string
}

func (e *InvalidRequestError) Error() string {
	return e.Message
}

func IsMissingFileError(err error) bool {
	var target *MissingFileError
	return errors.As(err, &target)
}

func IsInvalidRequestError(err error) bool {
	var target *InvalidRequestError
	return errors.As(err, &target)
}

func NewMissingFileError(field string) error {
	return &MissingFileError{Field: field}
}

func NewInvalidRequestError(message string) error {
	return &InvalidRequestError{Message: message}
}

// statusFor maps pipeline errors to HTTP status codes
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError

	switch {
	case IsMissingFileError(err), IsInvalidRequestError(err),
		segments.IsReservedNameError(err), segments.IsInvalidDiscriminatorError(err):
		return http.StatusBadRequest
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case merging.IsNoSegmentsFoundError(err):
		return http.StatusNotFound
	case encoding.IsEncodingTimeout(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the uniform failure body {ok:false, error}. A storage
// failure that kept the payload also reports where it was retained.
func respondError(c *gin.Context, logger logging.Logger, err error) {
	status := statusFor(err)
	body := gin.H{"ok": false, "error": err.Error()}

	if retained := segments.RetainedPayload(err); retained != "" {
		body["retained"] = retained
	}

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "path", c.FullPath(), "status", status, "error", err, "retained", body["retained"])
	} else {
		logger.Warn("Request rejected", "path", c.FullPath(), "status", status, "error", err)
	}

	c.JSON(status, body)
}
