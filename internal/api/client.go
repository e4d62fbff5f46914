package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/feedstream/internal/auth"
)

// Negotiator exchanges a bearer token for a WebSocket endpoint URL.
type Negotiator struct {
	authorizeURL string
	method       string
	tokens       auth.TokenProvider
	httpClient   *http.Client
	logger       *slog.Logger
}

// NegotiatorOption configures a Negotiator.
type NegotiatorOption func(*Negotiator)

// NewNegotiator creates a negotiator for the given authorize endpoint.
func NewNegotiator(authorizeURL string, tokens auth.TokenProvider, opts ...NegotiatorOption) *Negotiator {
	n := &Negotiator{
		authorizeURL: authorizeURL,
		method:       http.MethodGet,
		tokens:       tokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) NegotiatorOption {
	return func(n *Negotiator) {
		n.httpClient.Timeout = d
	}
}

// WithMethod overrides the HTTP method (some feeds expect POST).
func WithMethod(method string) NegotiatorOption {
	return func(n *Negotiator) {
		n.method = method
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) NegotiatorOption {
	return func(n *Negotiator) {
		n.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) NegotiatorOption {
	return func(n *Negotiator) {
		n.httpClient = hc
	}
}
