package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/feedstream/internal/connection"
	"github.com/rickgao/feedstream/internal/writer"
)

const namespace = "feedstream"

// Frame results for the frames_total counter.
const (
	FrameOK        = "ok"
	FrameMalformed = "malformed"
)

// Metrics holds the feed collectors. It implements connection.Observer.
type Metrics struct {
	Ticks        prometheus.Counter
	Frames       *prometheus.CounterVec
	State        prometheus.Gauge
	Reconnects   prometheus.Counter
	AuthFailures prometheus.Counter
	Backoff      prometheus.Histogram
}

var _ connection.Observer = (*Metrics)(nil)

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Normalized ticks delivered to the sink.",
		}),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Inbound frames by parse result.",
		}, []string{"result"}),
		State: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "supervisor_state",
			Help:      "Current supervisor state (0=init 1=negotiating 2=connecting 3=connected 4=closing 5=backoff 6=terminated).",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Reconnect attempts scheduled.",
		}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected session negotiations.",
		}),
		Backoff: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backoff_seconds",
			Help:      "Delay before each reconnect attempt.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 9),
		}),
	}

	// Pre-create both series so they export as zero.
	m.Frames.WithLabelValues(FrameOK)
	m.Frames.WithLabelValues(FrameMalformed)

	reg.MustRegister(m.Ticks, m.Frames, m.State, m.Reconnects, m.AuthFailures, m.Backoff)
	return m
}

func (m *Metrics) StateChanged(_, to connection.State) {
	m.State.Set(float64(to))
}

func (m *Metrics) FrameReceived(ok bool, ticks int) {
	if !ok {
		m.Frames.WithLabelValues(FrameMalformed).Inc()
		return
	}
	m.Frames.WithLabelValues(FrameOK).Inc()
	m.Ticks.Add(float64(ticks))
}

func (m *Metrics) AuthFailed() {
	m.AuthFailures.Inc()
}

func (m *Metrics) Reconnecting(_ int, delay time.Duration) {
	m.Reconnects.Inc()
	m.Backoff.Observe(delay.Seconds())
}

// RegisterWriter exports writer statistics, read at scrape time.
func RegisterWriter(reg prometheus.Registerer, stats func() writer.WriterMetrics) {
	counter := func(name, help string, get func(writer.WriterMetrics) int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(get(stats())) })
	}

	reg.MustRegister(
		counter("sink_inserted_total", "Ticks inserted by the store.",
			func(s writer.WriterMetrics) int64 { return s.Inserts }),
		counter("sink_conflicts_total", "Ticks skipped as duplicates.",
			func(s writer.WriterMetrics) int64 { return s.Conflicts }),
		counter("sink_dropped_total", "Ticks dropped because the queue was full.",
			func(s writer.WriterMetrics) int64 { return s.Dropped }),
		counter("sink_errors_total", "Failed store writes.",
			func(s writer.WriterMetrics) int64 { return s.Errors }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sink_queue_depth",
			Help:      "Ticks waiting to be flushed.",
		}, func() float64 { return float64(stats().QueueDepth) }),
	)
}
