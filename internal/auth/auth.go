// Package auth provides bearer-token providers used to authorize feed sessions.
//
// Token acquisition and refresh happen elsewhere (a login flow or a token
// service); this package only hands out the current token, or reports that
// none is available.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrTokenUnavailable is returned when no valid token can be produced.
var ErrTokenUnavailable = errors.New("token unavailable")

// TokenProvider returns a bearer token valid for the next negotiation.
type TokenProvider interface {
	GetValidToken(ctx context.Context) (string, error)
}

// Invalidator is implemented by providers that cache tokens. Invalidate
// drops the cached token so the next GetValidToken fetches a fresh one.
type Invalidator interface {
	Invalidate()
}

// TokenProviderFunc is a function adapter for TokenProvider.
type TokenProviderFunc func(ctx context.Context) (string, error)

func (f TokenProviderFunc) GetValidToken(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken always returns the same token.
type StaticToken string

// GetValidToken returns the token, or ErrTokenUnavailable if it is empty.
func (s StaticToken) GetValidToken(ctx context.Context) (string, error) {
	token := strings.TrimSpace(string(s))
	if token == "" {
		return "", ErrTokenUnavailable
	}
	return token, nil
}

// FileToken reads the token from a file on every call, so an external
// process can rotate it in place.
type FileToken struct {
	Path string
}

// GetValidToken reads and trims the token file.
func (f FileToken) GetValidToken(ctx context.Context) (string, error) {
	if f.Path == "" {
		return "", fmt.Errorf("%w: token file path is empty", ErrTokenUnavailable)
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("%w: read token file: %v", ErrTokenUnavailable, err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("%w: token file %s is empty", ErrTokenUnavailable, f.Path)
	}

	return token, nil
}
