package connection

import (
	"errors"
	"net/http"
	"time"
)

// Errors
var (
	ErrAlreadyStarted       = errors.New("supervisor already started")
	ErrAuthRetriesExhausted = errors.New("authorization retries exhausted")
	ErrNotConnected         = errors.New("not connected")
	ErrStaleConnection      = errors.New("connection stale (no ping)")
	ErrAlreadyClosed        = errors.New("already closed")
	ErrModeUnsupported      = errors.New("codec does not support mode changes")
)

// State is the supervisor lifecycle state.
type State int32

const (
	StateInit State = iota
	StateNegotiating
	StateConnecting
	StateConnected
	StateClosing
	StateBackoff
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateNegotiating:
		return "negotiating"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateBackoff:
		return "backoff"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	Binary     bool      // Frame arrived as a binary message
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // Authorized feed URL returned by negotiation
	Header           http.Header   // Extra handshake headers
	PingInterval     time.Duration // How often we ping the server
	PingTimeout      time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout     time.Duration // Write deadline for sends
	HandshakeTimeout time.Duration
	BufferSize       int // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval:     30 * time.Second,
		PingTimeout:      90 * time.Second,
		WriteTimeout:     5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		BufferSize:       10000,
	}
}

// SupervisorConfig configures the Connection Supervisor.
type SupervisorConfig struct {
	ReconnectBaseDelay time.Duration // First backoff delay
	ReconnectMaxDelay  time.Duration // Backoff ceiling
	Jitter             float64       // Additive jitter as a fraction of the delay, 0..1
	StableAfter        time.Duration // Connected time after which attempts reset; <= 0 resets on connect
	MaxAuthAttempts    int           // Consecutive authorization failures before terminating; 0 = unlimited
	MetricsTimeout     time.Duration // Bound on the connection-metrics write at disconnect

	Client ClientConfig // URL is filled per session
}

// DefaultSupervisorConfig returns sensible defaults.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		ReconnectBaseDelay: 1 * time.Second,
		ReconnectMaxDelay:  60 * time.Second,
		Jitter:             0.2,
		StableAfter:        30 * time.Second,
		MaxAuthAttempts:    5,
		MetricsTimeout:     5 * time.Second,
		Client:             DefaultClientConfig(),
	}
}
