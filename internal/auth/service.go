package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

var _ Invalidator = (*ServiceToken)(nil)

// ServiceToken fetches tokens from an HTTP token service and caches them
// until shortly before they expire.
//
// The service is expected to answer POST {url}/token with
// {"access_token": "...", "expires_at": "<RFC 3339>"}.
type ServiceToken struct {
	url         string
	accountType string
	httpClient  *http.Client
	logger      *slog.Logger

	// Refresh this long before expires_at.
	skew time.Duration
	now  func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

type tokenRequest struct {
	AccountType string `json:"account_type"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// NewServiceToken creates a provider backed by the token service at url.
func NewServiceToken(url, accountType string, logger *slog.Logger) *ServiceToken {
	if logger == nil {
		logger = slog.Default()
	}
	return &ServiceToken{
		url:         url,
		accountType: accountType,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
		skew:        30 * time.Second,
		now:         time.Now,
	}
}

// GetValidToken returns the cached token or fetches a fresh one.
func (s *ServiceToken) GetValidToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Add(s.skew).Before(s.expiresAt) {
		return s.token, nil
	}

	resp, err := s.fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("%w: token service returned empty token", ErrTokenUnavailable)
	}

	s.token = resp.AccessToken
	s.expiresAt = resp.ExpiresAt
	s.logger.Debug("token refreshed", "expires_at", resp.ExpiresAt)

	return s.token, nil
}

// Invalidate drops the cached token so the next call fetches a new one.
func (s *ServiceToken) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
}

func (s *ServiceToken) fetch(ctx context.Context) (tokenResponse, error) {
	body, err := json.Marshal(tokenRequest{AccountType: s.accountType})
	if err != nil {
		return tokenResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url+"/token", bytes.NewReader(body))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return tokenResponse{}, fmt.Errorf("token service returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var out tokenResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return tokenResponse{}, fmt.Errorf("parse response: %w", err)
	}

	return out, nil
}
