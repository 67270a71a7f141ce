package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/zulandar/switchboard/internal/messaging"
	"github.com/zulandar/switchboard/internal/models"
)

// Error codes returned in the "error" field.
const (
	CodeInvalidRequest     = "invalid_request"
	CodeInvalidBody        = "invalid_body"
	CodeUnauthenticated    = "unauthenticated"
	CodeAccessDenied       = "access_denied"
	CodeNotFound           = "not_found"
	CodeUnknownAgent       = "unknown_agent"
	CodeAlreadyClaimed     = "already_claimed"
	CodeAlreadyClosed      = "already_closed"
	CodeSessionAlreadyOpen = "session_already_open"
	CodeSessionNotActive   = "session_not_active"
	CodeCapacityExceeded   = "capacity_exceeded"
	CodeCapacityBelowLoad  = "capacity_below_load"
	CodeSelfAssignment     = "self_assignment"
	CodeUnavailable        = "unavailable"
	CodeInternal           = "internal"
)

// errBadRequest marks malformed input detected by the handlers themselves.
var errBadRequest = errors.New("bad request")

// errUnavailable marks a feature that is not configured on this server.
var errUnavailable = errors.New("unavailable")

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// classify maps an error to its HTTP status and code.
func classify(err error) (int, string) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs), errors.Is(err, errBadRequest):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, messaging.ErrEmptyBody), errors.Is(err, messaging.ErrBodyTooLong):
		return http.StatusBadRequest, CodeInvalidBody
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized, CodeUnauthenticated
	case errors.Is(err, models.ErrAccessDenied):
		return http.StatusForbidden, CodeAccessDenied
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, models.ErrUnknownAgent):
		return http.StatusNotFound, CodeUnknownAgent
	case errors.Is(err, models.ErrAlreadyClaimed):
		return http.StatusConflict, CodeAlreadyClaimed
	case errors.Is(err, models.ErrAlreadyClosed):
		return http.StatusConflict, CodeAlreadyClosed
	case errors.Is(err, models.ErrSessionAlreadyOpen):
		return http.StatusConflict, CodeSessionAlreadyOpen
	case errors.Is(err, models.ErrSessionNotActive):
		return http.StatusConflict, CodeSessionNotActive
	case errors.Is(err, models.ErrCapacityBelowLoad):
		return http.StatusConflict, CodeCapacityBelowLoad
	case errors.Is(err, models.ErrSelfAssignment):
		return http.StatusConflict, CodeSelfAssignment
	case errors.Is(err, models.ErrCapacityExceeded):
		return http.StatusTooManyRequests, CodeCapacityExceeded
	case errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable, CodeUnavailable
	}
	return http.StatusInternalServerError, CodeInternal
}

// writeError aborts the request with the mapped status and an ErrorResponse.
func writeError(c *gin.Context, err error) {
	status, code := classify(err)
	resp := ErrorResponse{Error: code, Message: err.Error()}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		resp.Message = formatValidationErrors(verrs)
	}
	var open *models.SessionAlreadyOpenError
	if errors.As(err, &open) {
		resp.SessionID = open.SessionID
	}
	if status == http.StatusInternalServerError {
		slog.Error("api: request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
		resp.Message = "internal error"
	}
	c.AbortWithStatusJSON(status, resp)
}
