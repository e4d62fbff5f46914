package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/rickgao/feedstream/internal/auth"
)

// urlPaths lists the JSON paths that may carry the authorized WebSocket URL,
// in order of preference.
var urlPaths = []string{
	"data.authorizedRedirectUri",
	"data.authorized_redirect_uri",
	"data.url",
	"url",
}

// Negotiate performs one authorization call and returns the WebSocket URL.
//
// It fails with *AuthorizationError when no token is available, the endpoint
// returns a non-success status, or the success body carries no URL; and with
// *NetworkError on transport failure.
func (n *Negotiator) Negotiate(ctx context.Context) (string, error) {
	token, err := n.tokens.GetValidToken(ctx)
	if err != nil {
		return "", &AuthorizationError{Message: "no valid token", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, n.method, n.authorizeURL, nil)
	if err != nil {
		return "", &NetworkError{Op: "create request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return "", &NetworkError{Op: "negotiate", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &NetworkError{Op: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			n.invalidateToken(resp.StatusCode)
		}
		return "", &AuthorizationError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.StatusCode, body),
			Body:       body,
		}
	}

	wsURL, ok := extractURL(body)
	if !ok {
		return "", &AuthorizationError{
			Message: "response carries no websocket url",
			Body:    body,
		}
	}

	n.logger.Debug("session negotiated", "status", resp.StatusCode)
	return wsURL, nil
}

// invalidateToken drops a rejected cached token so the next attempt does
// not present it again.
func (n *Negotiator) invalidateToken(status int) {
	if inv, ok := n.tokens.(auth.Invalidator); ok {
		inv.Invalidate()
		n.logger.Debug("cached token rejected, invalidated", "status", status)
	}
}

// extractURL finds the first non-empty ws:// or wss:// URL at a known path.
func extractURL(body []byte) (string, bool) {
	if !gjson.ValidBytes(body) {
		return "", false
	}
	for _, path := range urlPaths {
		v := gjson.GetBytes(body, path)
		if v.Type != gjson.String {
			continue
		}
		u := strings.TrimSpace(v.Str)
		if strings.HasPrefix(u, "ws://") || strings.HasPrefix(u, "wss://") {
			return u, true
		}
	}
	return "", false
}

// errorMessage prefers the feed's own error text over the generic status text.
func errorMessage(status int, body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"errors.0.message", "message", "error"} {
			if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.Str != "" {
				return v.Str
			}
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", status)
}
