// Package handlers implements the HTTP handlers of the protonation API.
package handlers

import (
	stderrors "errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/KeyIP-Protonate/internal/interfaces/http/middleware"
	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// maskedCodes never expose their message to clients.
var maskedCodes = map[errors.ErrorCode]bool{
	errors.ErrCodeInternal:       true,
	errors.ErrCodeSerialization:  true,
	errors.ErrCodeDatabaseError:  true,
	errors.ErrCodeCacheError:     true,
	errors.ErrCodeStorageError:   true,
	errors.ErrCodeMessagingError: true,
	errors.ErrCodeStructureWrite: true,
	errors.CodeUnknown:           true,
}

// writeAppError maps err onto an HTTP status and writes an ErrorResponse.
// The error is attached to the gin context for the logging middleware.
func writeAppError(c *gin.Context, err error) {
	_ = c.Error(err)

	code := errors.GetCode(err)
	// A timeout is reported as an engine failure wrapping the timeout.
	if errors.IsCode(err, errors.ErrCodeEngineTimeout) {
		code = errors.ErrCodeEngineTimeout
	}

	resp := ErrorResponse{
		Code:      code.String(),
		Message:   errors.DefaultMessageForCode(code),
		RequestID: middleware.GetRequestID(c),
	}
	var ae *errors.AppError
	if stderrors.As(err, &ae) && !maskedCodes[code] {
		resp.Message = ae.Message
		resp.Detail = ae.Detail
	}
	c.AbortWithStatusJSON(errors.HTTPStatusForCode(code), resp)
}

// writeBadRequest answers 400 with a validation error.
func writeBadRequest(c *gin.Context, message string) {
	writeAppError(c, errors.New(errors.ErrCodeBadRequest, message))
}

// optionalBool reads a boolean query parameter; nil when absent.
func optionalBool(c *gin.Context, name string) (*bool, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errors.Newf(errors.ErrCodeBadRequest, "query parameter %s must be a boolean", name).WithDetail(raw)
	}
	return &v, nil
}

// queryLimit reads ?limit within [1, max], defaulting to def.
func queryLimit(c *gin.Context, def, max int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > max {
		return 0, errors.Newf(errors.ErrCodeBadRequest, "limit must be an integer in [1, %d]", max).WithDetail(raw)
	}
	return n, nil
}

//Personal.AI order the ending
