package api

import (
	"errors"
	"fmt"
)

// AuthorizationError means the credential was missing or rejected, or the
// endpoint answered with something that is not a usable authorization.
type AuthorizationError struct {
	StatusCode int // 0 when no HTTP response was involved
	Message    string
	Body       []byte
	Err        error
}

func (e *AuthorizationError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("authorization failed (%d): %s", e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("authorization failed: %s: %v", e.Message, e.Err)
	default:
		return "authorization failed: " + e.Message
	}
}

func (e *AuthorizationError) Unwrap() error {
	return e.Err
}

// NetworkError is a transport-level failure. It is always retryable.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsAuthorization reports whether err is (or wraps) an AuthorizationError.
func IsAuthorization(err error) bool {
	var authErr *AuthorizationError
	return errors.As(err, &authErr)
}

// IsNetwork reports whether err is (or wraps) a NetworkError.
func IsNetwork(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
