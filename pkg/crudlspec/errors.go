package crudlspec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bitechdev/CrudlSpec/pkg/common"
	"github.com/bitechdev/CrudlSpec/pkg/logger"
)

// ErrorPayload is the JSON body of every error response. The HTTP status code
// is the discriminator clients branch on; the payload shape never varies.
type ErrorPayload struct {
	Success             bool        `json:"success"`
	Code                string      `json:"code"`
	Message             string      `json:"message"`
	UserFriendlyMessage string      `json:"user_friendly_message"`
	RequestID           string      `json:"request_id"`
	Details             interface{} `json:"details"`
}

// ValidationFieldError is one entry of a 422 details list.
type ValidationFieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// ValidationError aggregates per-field validation failures. Payload-level
// failures map to 422; instance-level failures raised after relation
// resolution map to 409.
type ValidationError struct {
	Fields []ValidationFieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, fmt.Sprintf("%s: %s", strings.Join(f.Loc, "."), f.Msg))
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// AddFieldError appends a failure for one payload field with the standard
// ["body","payload",<field>] location path.
func (e *ValidationError) AddFieldError(field, msg, errType string) {
	e.Fields = append(e.Fields, ValidationFieldError{
		Loc:  []string{"body", "payload", field},
		Msg:  msg,
		Type: errType,
	})
}

// HasErrors reports whether any field failed.
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// apiError is a terminal pipeline outcome. Returning one out of the
// transaction closure forces a rollback before the response is written.
type apiError struct {
	status  int
	payload ErrorPayload
	headers map[string]string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.status, e.payload.Code, e.payload.Message)
}

// ErrorMapper builds the fixed error payload for each supported status code.
// Debug gates whether 409/500 responses carry underlying error detail.
type ErrorMapper struct {
	Debug bool
}

func (m ErrorMapper) Unauthorized(requestID string) *apiError {
	return &apiError{
		status: 401,
		payload: ErrorPayload{
			Code:                "Unauthorized",
			Message:             "Authentication required.",
			UserFriendlyMessage: "You must be logged in to perform this action.",
			RequestID:           requestID,
		},
	}
}

func (m ErrorMapper) Forbidden(requestID string) *apiError {
	return &apiError{
		status: 403,
		payload: ErrorPayload{
			Code:                "Forbidden",
			Message:             "Permission denied.",
			UserFriendlyMessage: "You do not have permission to perform this action.",
			RequestID:           requestID,
		},
	}
}

func (m ErrorMapper) NotFound(requestID string) *apiError {
	return &apiError{
		status: 404,
		payload: ErrorPayload{
			Code:                "ResourceNotFound",
			Message:             "The requested resource was not found.",
			UserFriendlyMessage: "The requested item does not exist.",
			RequestID:           requestID,
		},
	}
}

// Conflict maps instance-validation failures and storage integrity violations.
// Detail is exposed only in debug mode: per-field messages for a
// ValidationError, the error string otherwise.
func (m ErrorMapper) Conflict(requestID string, err error) *apiError {
	var details interface{}
	if m.Debug && err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			details = verr.Fields
		} else {
			details = err.Error()
		}
	}
	return &apiError{
		status: 409,
		payload: ErrorPayload{
			Code:                "Conflict",
			Message:             "The request conflicts with the current state of the resource.",
			UserFriendlyMessage: "The change could not be saved because it conflicts with existing data.",
			RequestID:           requestID,
			Details:             details,
		},
	}
}

func (m ErrorMapper) Unprocessable(requestID string, verr *ValidationError) *apiError {
	var details interface{}
	if verr != nil {
		details = verr.Fields
	}
	return &apiError{
		status: 422,
		payload: ErrorPayload{
			Code:                "UnprocessableEntity",
			Message:             "The request payload failed validation.",
			UserFriendlyMessage: "Some fields are missing or invalid.",
			RequestID:           requestID,
			Details:             details,
		},
	}
}

func (m ErrorMapper) TooManyRequests(requestID string, retryAfterSeconds int) *apiError {
	return &apiError{
		status: 429,
		payload: ErrorPayload{
			Code:                "TooManyRequests",
			Message:             "Request rate limit exceeded.",
			UserFriendlyMessage: "Too many requests. Please try again later.",
			RequestID:           requestID,
		},
		headers: map[string]string{"Retry-After": fmt.Sprintf("%d", retryAfterSeconds)},
	}
}

func (m ErrorMapper) Unavailable(requestID string, retryAfterSeconds int) *apiError {
	return &apiError{
		status: 503,
		payload: ErrorPayload{
			Code:                "ServiceUnavailable",
			Message:             "The service is temporarily unavailable.",
			UserFriendlyMessage: "The service is temporarily unavailable. Please try again later.",
			RequestID:           requestID,
		},
		headers: map[string]string{"Retry-After": fmt.Sprintf("%d", retryAfterSeconds)},
	}
}

func (m ErrorMapper) Internal(requestID string, err error) *apiError {
	var details interface{}
	if m.Debug && err != nil {
		details = err.Error()
	}
	return &apiError{
		status: 500,
		payload: ErrorPayload{
			Code:                "InternalServerError",
			Message:             "An unexpected error occurred.",
			UserFriendlyMessage: "Something went wrong. Please try again later.",
			RequestID:           requestID,
			Details:             details,
		},
	}
}

// writeError emits an apiError as the HTTP response.
func writeError(w common.ResponseWriter, e *apiError) {
	for k, v := range e.headers {
		w.SetHeader(k, v)
	}
	w.SetHeader("Content-Type", "application/json")
	w.WriteHeader(e.status)
	e.payload.Success = false
	if err := w.WriteJSON(e.payload); err != nil {
		logger.Warn("Failed to write error response: %v", err)
	}
}

// requestID echoes the inbound X-Request-ID header, generating one when absent.
func requestID(r common.Request) string {
	if r == nil {
		return uuid.NewString()
	}
	if id := r.Header("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

// isIntegrityViolation reports whether err is a storage-level constraint
// violation (uniqueness, referential). Matching is by driver error string for
// drivers that do not surface typed errors.
func isIntegrityViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"unique constraint",
		"unique violation",
		"duplicate key",
		"foreign key constraint",
		"constraint failed",
		"constraint violation",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
