package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/feedstream/internal/api"
	"github.com/rickgao/feedstream/internal/health"
	"github.com/rickgao/feedstream/internal/model"
	"github.com/rickgao/feedstream/internal/normalizer"
	"github.com/rickgao/feedstream/internal/subscription"
)

// Negotiator obtains an authorized feed URL.
type Negotiator interface {
	Negotiate(ctx context.Context) (string, error)
}

// FrameNormalizer turns one inbound frame into ticks. ok=false means the
// frame was malformed and must not reach the sink.
type FrameNormalizer interface {
	NormalizeAt(frame []byte, receivedAt time.Time) ([]model.Tick, bool)
}

// Sink accepts ticks and finalized connection records.
type Sink interface {
	WriteTick(ctx context.Context, tick model.Tick) error
	WriteConnectionMetrics(ctx context.Context, m model.ConnectionMetrics) error
}

// Observer receives supervisor events for instrumentation. Calls are made
// from the supervisor goroutine and must not block.
type Observer interface {
	StateChanged(from, to State)
	FrameReceived(ok bool, ticks int)
	AuthFailed()
	Reconnecting(attempt int, delay time.Duration)
}

type nopObserver struct{}

func (nopObserver) StateChanged(State, State) {}
func (nopObserver) FrameReceived(bool, int) {}
func (nopObserver) AuthFailed() {}
func (nopObserver) Reconnecting(int, time.Duration) {}

type nopSink struct{}

func (nopSink) WriteTick(context.Context, model.Tick) error { return nil }
func (nopSink) WriteConnectionMetrics(context.Context, model.ConnectionMetrics) error {
	return nil
}

// controlOp is a subscription change waiting to be written to the socket.
// A non-empty mode makes it a mode change.
type controlOp struct {
	subscribe bool
	mode      string
	keys      []string
}

// Supervisor owns one logical feed session: it negotiates, connects,
// reconciles subscriptions, pumps frames into the sink and reconnects with
// backoff. All socket writes happen on the supervisor goroutine.
type Supervisor struct {
	cfg        SupervisorConfig
	negotiator Negotiator
	subs       *subscription.Manager
	sink       Sink
	logger     *slog.Logger

	codec      subscription.Codec
	normalizer FrameNormalizer
	observer   Observer
	dial       DialFunc
	now        func() time.Time
	monitor    *health.Monitor
	backoff    *Backoff

	state atomic.Int32

	mu      sync.Mutex
	cancel  context.CancelFunc
	err     error
	pending []controlOp
	wake    chan struct{}
	done    chan struct{}
	closed  bool

	// Owned by the supervisor goroutine.
	attempts     int
	authFailures int
	lastStamp    time.Time
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithCodec sets the control frame codec. Default: JSONCodec in full mode.
func WithCodec(c subscription.Codec) Option {
	return func(s *Supervisor) { s.codec = c }
}

// WithNormalizer sets the frame normalizer.
func WithNormalizer(n FrameNormalizer) Option {
	return func(s *Supervisor) { s.normalizer = n }
}

// WithObserver sets the instrumentation hook.
func WithObserver(o Observer) Option {
	return func(s *Supervisor) { s.observer = o }
}

// WithDialer overrides how session clients are created.
func WithDialer(d DialFunc) Option {
	return func(s *Supervisor) { s.dial = d }
}

// WithClock overrides the wall clock used for health and stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// WithBackoff overrides the backoff policy built from the config.
func WithBackoff(b *Backoff) Option {
	return func(s *Supervisor) { s.backoff = b }
}

// NewSupervisor creates a Supervisor in StateInit. subs holds the desired
// subscription set and may be shared with other readers.
func NewSupervisor(cfg SupervisorConfig, negotiator Negotiator, subs *subscription.Manager, sink Sink, logger *slog.Logger, opts ...Option) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if subs == nil {
		subs = subscription.NewManager()
	}
	if sink == nil {
		sink = nopSink{}
	}
	if cfg.MetricsTimeout <= 0 {
		cfg.MetricsTimeout = DefaultSupervisorConfig().MetricsTimeout
	}

	s := &Supervisor{
		cfg:        cfg,
		negotiator: negotiator,
		subs:       subs,
		sink:       sink,
		logger:     logger.With("component", "supervisor"),
		observer:   nopObserver{},
		dial:       NewClient,
		now:        time.Now,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.codec == nil {
		s.codec = subscription.NewJSONCodec(subscription.ModeFull)
	}
	if s.normalizer == nil {
		s.normalizer = normalizer.New(logger)
	}
	if s.backoff == nil {
		s.backoff = NewBackoff(cfg.ReconnectBaseDelay, cfg.ReconnectMaxDelay, cfg.Jitter)
	}
	s.monitor = health.NewMonitor(logger,
		health.WithClock(s.now),
		health.WithSubscribedCount(subs.Len),
		health.WithStateName(func() string { return s.State().String() }),
	)

	return s
}

// Start launches the supervisor goroutine. It returns ErrAlreadyStarted
// unless the supervisor is in StateInit.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CompareAndSwap(int32(StateInit), int32(StateNegotiating)) {
		return ErrAlreadyStarted
	}
	s.observer.StateChanged(StateInit, StateNegotiating)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.logger.Info("starting supervisor", "subscriptions", s.subs.Len())
	go s.run(runCtx)

	return nil
}

// Stop cancels the session and waits for the supervisor to reach
// StateTerminated, or for ctx to expire. It is safe to call in any state and
// more than once.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.State() == StateInit {
		s.setState(StateTerminated)
		s.finishLocked()
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe adds keys to the desired set. While connected the change is
// written to the socket by the supervisor goroutine; otherwise it is applied
// at the next reconciliation.
func (s *Supervisor) Subscribe(keys ...string) {
	// The set change and its queued frame must be ordered together, or a
	// racing Unsubscribe could reach the wire first.
	s.mu.Lock()
	defer s.mu.Unlock()
	if added := s.subs.Subscribe(keys...); len(added) > 0 {
		s.enqueueLocked(controlOp{subscribe: true, keys: added})
	}
}

// Unsubscribe removes keys from the desired set.
func (s *Supervisor) Unsubscribe(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if removed := s.subs.Unsubscribe(keys...); len(removed) > 0 {
		s.enqueueLocked(controlOp{subscribe: false, keys: removed})
	}
}

// ChangeMode switches the given subscribed keys to mode on the live session.
// Keys outside the desired set are ignored. The change lasts until the next
// reconnect, which resubscribes in the codec's configured mode.
func (s *Supervisor) ChangeMode(mode string, keys ...string) error {
	if mode == "" {
		return fmt.Errorf("change mode: mode is required")
	}
	if _, ok := s.codec.(subscription.ModeEncoder); !ok {
		return ErrModeUnsupported
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != StateConnected {
		return ErrNotConnected
	}
	var subscribed []string
	for _, k := range keys {
		if s.subs.Contains(k) {
			subscribed = append(subscribed, k)
		}
	}
	if len(subscribed) > 0 {
		s.enqueueLocked(controlOp{mode: mode, keys: subscribed})
	}
	return nil
}

// Subscriptions returns the desired set.
func (s *Supervisor) Subscriptions() []string {
	return s.subs.DesiredSet()
}

// Snapshot returns the current health status.
func (s *Supervisor) Snapshot() model.HealthStatus {
	return s.monitor.Snapshot()
}

// Monitor exposes the health monitor, e.g. for periodic logging.
func (s *Supervisor) Monitor() *health.Monitor {
	return s.monitor
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Done is closed once the supervisor reaches StateTerminated.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal error: nil after Stop, or an error wrapping
// ErrAuthRetriesExhausted.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Supervisor) setState(to State) {
	from := State(s.state.Swap(int32(to)))
	if from != to {
		s.observer.StateChanged(from, to)
		s.logger.Debug("state change", "from", from, "to", to)
	}
}

// enqueueLocked queues op for the supervisor goroutine. Changes made while
// disconnected are dropped; reconciliation covers them. s.mu must be held.
func (s *Supervisor) enqueueLocked(op controlOp) {
	if s.State() != StateConnected {
		return
	}
	s.pending = append(s.pending, op)

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Supervisor) takePending() []controlOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := s.pending
	s.pending = nil
	return ops
}

func (s *Supervisor) finishLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

func (s *Supervisor) terminate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.err = err
	}
	s.setState(StateTerminated)
	s.finishLocked()
}

// run is the supervisor goroutine.
func (s *Supervisor) run(ctx context.Context) {
	var terminal error
	defer func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.logger.Info("supervisor stopped", "error", terminal)
		s.terminate(terminal)
	}()

	for ctx.Err() == nil {
		s.setState(StateNegotiating)

		url, err := s.negotiator.Negotiate(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if api.IsAuthorization(err) {
				s.authFailures++
				s.observer.AuthFailed()
				s.logger.Warn("authorization failed",
					"error", err,
					"consecutive", s.authFailures,
					"max", s.cfg.MaxAuthAttempts,
				)
				if s.cfg.MaxAuthAttempts > 0 && s.authFailures >= s.cfg.MaxAuthAttempts {
					terminal = fmt.Errorf("%w after %d attempts: %w", ErrAuthRetriesExhausted, s.authFailures, err)
					return
				}
			} else if api.IsNetwork(err) {
				s.logger.Warn("authorize endpoint unreachable", "error", err)
			} else {
				s.logger.Warn("negotiation failed", "error", err)
			}
			if !s.wait(ctx) {
				return
			}
			continue
		}
		s.authFailures = 0

		s.setState(StateConnecting)
		cfg := s.cfg.Client
		cfg.URL = url
		client := s.dial(cfg, s.logger)

		if err := client.Connect(ctx); err != nil {
			client.Close()
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("connect failed", "error", err)
			if !s.wait(ctx) {
				return
			}
			continue
		}

		reason := s.stream(ctx, client)

		s.setState(StateClosing)
		client.Close()
		s.closeSession(ctx, reason)

		if ctx.Err() != nil {
			return
		}
		if !s.wait(ctx) {
			return
		}
	}
}

// stream runs one connected session until the socket fails or ctx is done
// and returns the disconnect reason.
func (s *Supervisor) stream(ctx context.Context, client Client) string {
	s.lastStamp = time.Time{}
	s.monitor.OnConnect(s.attempts)

	// Changes made before this point are in the desired set reconcile reads;
	// later ones are queued behind it.
	s.mu.Lock()
	s.pending = nil
	s.setState(StateConnected)
	s.mu.Unlock()

	s.logger.Info("connected", "reconnect_attempts", s.attempts)

	if err := s.reconcile(client); err != nil {
		return err.Error()
	}

	var stable <-chan time.Time
	if s.cfg.StableAfter <= 0 {
		s.resetAttempts()
	} else {
		timer := time.NewTimer(s.cfg.StableAfter)
		defer timer.Stop()
		stable = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return "stopped"

		case <-stable:
			stable = nil
			s.resetAttempts()

		case <-s.wake:
			for _, op := range s.takePending() {
				if err := s.send(client, op); err != nil {
					return err.Error()
				}
			}

		case msg := <-client.Messages():
			s.handleFrame(ctx, msg)

		case err := <-client.Errors():
			// Frames read before the error are already buffered.
		drain:
			for {
				select {
				case msg := <-client.Messages():
					s.handleFrame(ctx, msg)
				default:
					break drain
				}
			}
			s.logger.Warn("connection lost", "error", err)
			return err.Error()
		}
	}
}

// reconcile sends one subscribe frame for the whole desired set.
func (s *Supervisor) reconcile(client Client) error {
	keys := s.subs.DesiredSet()
	if err := s.send(client, controlOp{subscribe: true, keys: keys}); err != nil {
		return err
	}
	if len(keys) > 0 {
		s.logger.Info("subscriptions reconciled", "count", len(keys))
	}
	return nil
}

func (s *Supervisor) send(client Client, op controlOp) error {
	var (
		frame []byte
		err   error
	)
	switch {
	case op.mode != "":
		frame, err = s.codec.(subscription.ModeEncoder).EncodeModeChange(op.mode, op.keys)
	case op.subscribe:
		frame, err = s.codec.EncodeSubscribe(op.keys)
	default:
		frame, err = s.codec.EncodeUnsubscribe(op.keys)
	}
	if err != nil {
		// An unencodable frame is a local bug, not a socket failure.
		s.logger.Error("encode control frame", "error", err)
		return nil
	}
	if frame == nil {
		return nil
	}
	if err := client.Send(frame); err != nil {
		return fmt.Errorf("send control frame: %w", err)
	}
	return nil
}

func (s *Supervisor) handleFrame(ctx context.Context, msg TimestampedMessage) {
	ticks, ok := s.normalizer.NormalizeAt(msg.Data, msg.ReceivedAt)
	s.observer.FrameReceived(ok, len(ticks))
	if !ok {
		return
	}

	for _, tick := range ticks {
		tick.ReceivedAt = s.stamp(tick.ReceivedAt)
		if err := s.sink.WriteTick(ctx, tick); err != nil {
			s.logger.Debug("sink rejected tick", "instrument_key", tick.InstrumentKey, "error", err)
		}
		s.monitor.OnMessage()
	}
}

// stamp returns a receive time strictly after the previous one in this
// session, at microsecond resolution so stores keep distinct keys.
func (s *Supervisor) stamp(t time.Time) time.Time {
	if t.IsZero() {
		t = s.now()
	}
	t = t.Round(0).Truncate(time.Microsecond)
	if !s.lastStamp.IsZero() && !t.After(s.lastStamp) {
		t = s.lastStamp.Add(time.Microsecond)
	}
	s.lastStamp = t
	return t
}

func (s *Supervisor) closeSession(ctx context.Context, reason string) {
	record, ok := s.monitor.OnDisconnect(reason)
	if !ok {
		return
	}

	s.logger.Info("disconnected",
		"reason", reason,
		"session_id", record.SessionID,
		"duration", record.Duration(),
		"messages", record.MessagesReceived,
	)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.MetricsTimeout)
	defer cancel()
	if err := s.sink.WriteConnectionMetrics(writeCtx, record); err != nil {
		s.logger.Error("failed to write connection metrics", "session_id", record.SessionID, "error", err)
	}
}

func (s *Supervisor) resetAttempts() {
	if s.attempts != 0 {
		s.logger.Debug("connection stable, resetting backoff", "attempts", s.attempts)
	}
	s.attempts = 0
	s.monitor.SetReconnectAttempts(0)
}

// wait sleeps for the current backoff delay. It returns false if ctx ended
// first.
func (s *Supervisor) wait(ctx context.Context) bool {
	delay := s.backoff.Duration(s.attempts)
	s.attempts++
	s.monitor.SetReconnectAttempts(s.attempts)

	s.setState(StateBackoff)
	s.observer.Reconnecting(s.attempts, delay)
	s.logger.Info("reconnecting", "attempt", s.attempts, "delay", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// IsTerminal reports whether err ended the supervisor for good.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrAuthRetriesExhausted)
}
