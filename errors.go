package goSession

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoToken is returned by operations that need a stored access token.
	ErrNoToken = errors.New("no access token")
	// ErrTokenExpired is returned when the stored token is past its exp claim.
	ErrTokenExpired = errors.New("access token expired")
	// ErrTokenInvalid is returned for tokens that cannot be decoded.
	ErrTokenInvalid = errors.New("access token invalid")
	// ErrRefreshFailed is returned to every caller of a failed refresh.
	ErrRefreshFailed = errors.New("token refresh failed")
	// ErrUnauthorized matches any *StatusError carrying HTTP 401.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden matches any *StatusError carrying HTTP 403.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials is returned by Login when sign-in answers 401.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionClosed is returned after Session.Close.
	ErrSessionClosed = errors.New("session closed")
	// ErrStorage wraps storage backend failures.
	ErrStorage = errors.New("session storage failure")
	// ErrNoAuthAPI is returned by Build when no AuthAPI was supplied.
	ErrNoAuthAPI = errors.New("auth api not configured")
)

// StatusError is a non-2xx answer from the back-office API.
type StatusError struct {
	Op         string
	Method     string
	Path       string
	StatusCode int
	// Code and Message come from the JSON error body when the server sent one.
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s %s: %d %s", e.Op, e.Method, e.Path, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, msg)
}

// Is lets callers test for ErrUnauthorized and ErrForbidden with errors.Is.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	}
	return false
}

// StatusCode extracts the HTTP status from err, or 0 when err carries none.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
