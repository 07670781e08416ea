package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrCode is a typed error code enum for consistent client error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrNotAuthenticated ErrCode = "NOT_AUTHENTICATED"
	ErrTokenExpired     ErrCode = "TOKEN_EXPIRED"
	ErrRefreshFailed    ErrCode = "REFRESH_FAILED"
	ErrForbidden        ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation ErrCode = "VALIDATION_ERROR"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Transport ─────────────────────────────────────────────────────
	ErrNetwork           ErrCode = "NETWORK_ERROR"
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"
	ErrServer            ErrCode = "SERVER_ERROR"

	// ─── Domain ────────────────────────────────────────────────────────
	ErrEmptyPayload ErrCode = "EMPTY_PAYLOAD"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrNotAuthenticated:
		return "You are not logged in. Please log in and try again."
	case ErrTokenExpired:
		return "Your session has expired. Please log in again."
	case ErrRefreshFailed:
		return "Your session could not be renewed. Please log in again."
	case ErrForbidden:
		return "You do not have permission to perform this action."
	case ErrValidation:
		return "The request was rejected. Please check your input."
	case ErrNotFound:
		return "The requested resource was not found."
	case ErrNetwork:
		return "The server could not be reached. Please check your connection."
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again shortly."
	case ErrServer:
		return "The server encountered an error. Please try again later."
	case ErrEmptyPayload:
		return "The server returned no usable data."
	default:
		return "An unexpected error occurred."
	}
}

// Error is the single normalized shape every transport or server failure is
// converted into before it reaches business logic.
type Error struct {
	Status    int
	Code      ErrCode
	Message   string
	Timestamp time.Time
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("api: %s (%d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("api: %s: %s", e.Code, e.Message)
}

// codeForStatus maps an HTTP status to the client error code.
func codeForStatus(status int) ErrCode {
	switch {
	case status == http.StatusUnauthorized:
		return ErrTokenExpired
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusTooManyRequests:
		return ErrRateLimitExceeded
	case status >= 400 && status < 500:
		return ErrValidation
	case status >= 500:
		return ErrServer
	default:
		return ErrNetwork
	}
}

// newError builds a normalized Error, falling back to the canned message when
// the server gave no detail.
func newError(status int, detail string) *Error {
	code := codeForStatus(status)
	if detail == "" {
		detail = GetMessage(code)
	}
	return &Error{
		Status:    status,
		Code:      code,
		Message:   detail,
		Timestamp: time.Now(),
	}
}

// IsStatus reports whether err is a normalized API error with the given
// HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// IsUnauthorized reports whether err is a 401.
func IsUnauthorized(err error) bool {
	return IsStatus(err, http.StatusUnauthorized)
}
