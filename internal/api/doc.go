// Package api implements the session negotiation call that exchanges a bearer
// token for a short-lived, pre-authorized WebSocket URL.
//
// Typical endpoint:
//   - GET https://api.upstox.com/v2/feed/market-data-feed/authorize
//
// Response shape:
//
//	{"status": "success", "data": {"authorizedRedirectUri": "wss://..."}}
//
// The negotiator never retries; retry policy belongs to the connection supervisor.
package api
