// Package apperrors provides a standardized error format for the broker's
// HTTP surface: a machine-readable code, a human-readable message, optional
// details, and an HTTP status mapping.
package apperrors

import (
	"fmt"
	"net/http"
)

// BrokerError is a structured error with an HTTP status mapping.
type BrokerError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *BrokerError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorResponse is the JSON body returned for HTTP errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Error codes for HTTP error bodies. WebSocket `error` frames do not use
// these; they carry the lowercase reasons defined in the models package
// (unknown_job, worker_disconnected).
const (
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeUnknownFilename = "UNKNOWN_FILENAME"
	ErrCodeUnknownSession  = "UNKNOWN_SESSION"
	ErrCodeUnknownJob      = "UNKNOWN_JOB"
	ErrCodeNoWorkers       = "NO_WORKERS_AVAILABLE"
	ErrCodeWorkerGone      = "WORKER_DISCONNECTED"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

func New(code, message string) *BrokerError {
	return &BrokerError{Code: code, Message: message, StatusCode: statusForCode(code)}
}

func NewWithDetails(code, message, details string) *BrokerError {
	return &BrokerError{Code: code, Message: message, Details: details, StatusCode: statusForCode(code)}
}

func Wrap(code, message string, err error) *BrokerError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return NewWithDetails(code, message, details)
}

func statusForCode(code string) int {
	switch code {
	case ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeUnknownFilename, ErrCodeUnknownSession, ErrCodeUnknownJob:
		return http.StatusNotFound
	case ErrCodeNoWorkers:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ToResponse converts a BrokerError to its JSON wire shape.
func (e *BrokerError) ToResponse() ErrorResponse {
	return ErrorResponse{Error: e.Code, Message: e.Message, Code: e.Code, Details: e.Details}
}

func BadRequest(message string) *BrokerError {
	return New(ErrCodeBadRequest, message)
}

func UnknownFilename(filename string) *BrokerError {
	return New(ErrCodeUnknownFilename, fmt.Sprintf("filename %q is not in the catalogue", filename))
}

func UnknownSession(id string) *BrokerError {
	return New(ErrCodeUnknownSession, fmt.Sprintf("session %q not found", id))
}

func UnknownJob(id string) *BrokerError {
	return New(ErrCodeUnknownJob, fmt.Sprintf("job %q not found", id))
}

func NoWorkersAvailable() *BrokerError {
	return New(ErrCodeNoWorkers, "no workers are currently connected")
}

func Internal(message string, err error) *BrokerError {
	return Wrap(ErrCodeInternal, message, err)
}
