package playstore

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is returned on transport or timeout failures.
	// The caller may retry the whole request; no side effect occurred.
	ErrUnavailable = errors.New("playstore: provider unavailable")

	// ErrRejected is returned on non-2xx application responses. Not
	// retryable - the token is likely invalid or revoked upstream.
	ErrRejected = errors.New("playstore: provider rejected request")

	// ErrAuthFailed is returned when the service's own credential cannot
	// be obtained. Fatal to the whole request, not token-specific.
	ErrAuthFailed = errors.New("playstore: credential acquisition failed")
)

// APIError wraps a non-2xx response from the Android Publisher API.
type APIError struct {
	Operation  string // "fetch" or "acknowledge"
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("playstore: %s returned status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// Unwrap lets errors.Is(err, ErrRejected) match API errors.
func (e *APIError) Unwrap() error {
	return ErrRejected
}
