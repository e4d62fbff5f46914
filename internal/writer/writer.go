package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/feedstream/internal/model"
)

// dropWarnInterval rate-limits the queue-full warning.
const dropWarnInterval = 10 * time.Second

// Writer is a Sink that batches ticks into a Store.
type Writer struct {
	cfg    WriterConfig
	store  Store
	logger *slog.Logger

	// Ticks waiting for the next flush
	queue *DropBuffer[model.Tick]

	// Lifecycle. stop ends the flush loop; ctx stays live until the final
	// flush so an in-flight batch is not aborted.
	ctx      context.Context
	cancel   context.CancelFunc
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Metrics
	mu           sync.Mutex
	metrics      WriterMetrics
	lastDropWarn time.Time
	dropsSince   int64
}

// NewWriter creates a Writer over store.
func NewWriter(cfg WriterConfig, store Store, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultWriterConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if store == nil {
		store = NopStore{}
	}

	return &Writer{
		cfg:    cfg,
		store:  store,
		logger: logger.With("component", "writer"),
		queue:  NewDropBuffer[model.Tick](cfg.QueueSize),
		stop:   make(chan struct{}),
	}
}

// Start begins flushing queued ticks.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
		"queue_size", w.cfg.QueueSize,
	)
	return nil
}

// Stop stops the flush loop and writes whatever is still queued. Ticks
// offered after Stop are rejected.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping writer")

	w.queue.Close()
	w.stopOnce.Do(func() { close(w.stop) })
	if w.cancel != nil {
		defer w.cancel()
	}

	// Wait for the loop to finish its current batch
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("writer stop timed out")
		return ctx.Err()
	}

	// Final flush
	w.flushAll(ctx)

	w.logger.Info("writer stopped", "stats", w.Stats())
	return nil
}

// WriteTick queues a tick. It never blocks; when the queue is full the
// oldest queued tick is dropped.
func (w *Writer) WriteTick(_ context.Context, tick model.Tick) error {
	dropped, ok := w.queue.Push(tick)
	if !ok {
		return ErrWriterClosed
	}
	if dropped {
		w.noteDrop()
	}
	return nil
}

// WriteConnectionMetrics writes the record straight to the store.
func (w *Writer) WriteConnectionMetrics(ctx context.Context, m model.ConnectionMetrics) error {
	if err := w.store.InsertConnectionMetrics(ctx, m); err != nil {
		perr := &PersistenceError{Op: "insert_connection_metrics", Count: 1, Err: err}
		w.logger.Error("connection metrics write failed", "session_id", m.SessionID, "error", perr)

		w.mu.Lock()
		w.metrics.Errors++
		w.mu.Unlock()
		return perr
	}

	w.mu.Lock()
	w.metrics.MetricsWritten++
	w.mu.Unlock()
	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() WriterMetrics {
	w.mu.Lock()
	stats := w.metrics
	w.mu.Unlock()

	qs := w.queue.Stats()
	stats.Dropped = qs.Dropped
	stats.QueueDepth = qs.Count
	return stats
}

func (w *Writer) noteDrop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.dropsSince++
	now := time.Now()
	if now.Sub(w.lastDropWarn) < dropWarnInterval {
		return
	}
	w.logger.Warn("tick queue full, dropping oldest",
		"dropped", w.dropsSince,
		"queue_size", w.cfg.QueueSize,
	)
	w.lastDropWarn = now
	w.dropsSince = 0
}

// flushLoop flushes full batches as they fill and everything on each tick
// of the flush interval.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-w.ctx.Done():
			return
		case <-w.queue.Notify():
			for w.queue.Len() >= w.cfg.BatchSize && !w.stopping() {
				w.flush(w.ctx, w.queue.DrainTo(w.cfg.BatchSize))
			}
		case <-ticker.C:
			w.flushAll(w.ctx)
		}
	}
}

func (w *Writer) stopping() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

func (w *Writer) flushAll(ctx context.Context) {
	for {
		batch := w.queue.DrainTo(w.cfg.BatchSize)
		if len(batch) == 0 {
			return
		}
		w.flush(ctx, batch)
	}
}

// flush writes one batch to the store.
func (w *Writer) flush(ctx context.Context, batch []model.Tick) {
	if len(batch) == 0 {
		return
	}
	start := time.Now()

	inserted, err := w.store.InsertTicks(ctx, batch)
	if err != nil {
		perr := &PersistenceError{Op: "insert_ticks", Count: len(batch), Err: err}
		w.logger.Error("batch insert failed", "error", perr, "count", len(batch))
		w.mu.Lock()
		w.metrics.Errors++
		w.mu.Unlock()
		return
	}

	conflicts := len(batch) - inserted
	w.mu.Lock()
	w.metrics.Inserts += int64(inserted)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.mu.Unlock()

	w.logger.Debug("flushed ticks",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}
