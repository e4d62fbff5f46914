package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/feedstream/internal/connection"
	"github.com/rickgao/feedstream/internal/metrics"
	"github.com/rickgao/feedstream/internal/model"
	"github.com/rickgao/feedstream/internal/version"
)

// streamControl is the part of the supervisor the ops server needs.
type streamControl interface {
	Snapshot() model.HealthStatus
	Subscriptions() []string
	Subscribe(keys ...string)
	Unsubscribe(keys ...string)
	ChangeMode(mode string, keys ...string) error
}

// opsObserver forwards supervisor events to Prometheus and remembers when
// the stream last went down.
type opsObserver struct {
	*metrics.Metrics
	now       func() time.Time
	downSince atomic.Int64 // unix nanos; 0 while connected
}

func newOpsObserver(m *metrics.Metrics, now func() time.Time) *opsObserver {
	o := &opsObserver{Metrics: m, now: now}
	o.downSince.Store(now().UnixNano())
	return o
}

func (o *opsObserver) StateChanged(from, to connection.State) {
	o.Metrics.StateChanged(from, to)
	switch {
	case to == connection.StateConnected:
		o.downSince.Store(0)
	case from == connection.StateConnected:
		o.downSince.Store(o.now().UnixNano())
	}
}

// DownFor returns how long the stream has been disconnected, or 0.
func (o *opsObserver) DownFor() time.Duration {
	since := o.downSince.Load()
	if since == 0 {
		return 0
	}
	return o.now().Sub(time.Unix(0, since))
}

type healthResponse struct {
	Status     string             `json:"status"`
	InstanceID string             `json:"instance_id"`
	Version    string             `json:"version"`
	Stream     model.HealthStatus `json:"stream"`
}

type subscriptionsRequest struct {
	Mode string   `json:"mode,omitempty"`
	Keys []string `json:"keys"`
}

type subscriptionsResponse struct {
	Count          int      `json:"count"`
	InstrumentKeys []string `json:"instrument_keys"`
}

type opsServerConfig struct {
	InstanceID     string
	MetricsPath    string
	UnhealthyAfter time.Duration
}

// newOpsHandler serves /health, the metrics endpoint and /subscriptions.
func newOpsHandler(cfg opsServerConfig, ctrl streamControl, obs *opsObserver, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:     "healthy",
			InstanceID: cfg.InstanceID,
			Version:    version.Version,
			Stream:     ctrl.Snapshot(),
		}

		code := http.StatusOK
		if !resp.Stream.Connected {
			resp.Status = "degraded"
			if obs.DownFor() > cfg.UnhealthyAfter {
				resp.Status = "unhealthy"
				code = http.StatusServiceUnavailable
			}
		}
		writeJSON(w, code, resp)
	})

	mux.Handle("GET "+cfg.MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /subscriptions", func(w http.ResponseWriter, r *http.Request) {
		writeSubscriptions(w, ctrl)
	})

	change := func(apply func(keys ...string), action string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			req, ok := decodeSubscriptionsRequest(w, r)
			if !ok {
				return
			}
			apply(req.Keys...)
			logger.Info("subscriptions changed via ops api", "action", action, "keys", req.Keys)
			writeSubscriptions(w, ctrl)
		}
	}
	mux.HandleFunc("POST /subscriptions", change(ctrl.Subscribe, "subscribe"))
	mux.HandleFunc("DELETE /subscriptions", change(ctrl.Unsubscribe, "unsubscribe"))

	mux.HandleFunc("POST /subscriptions/mode", func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeSubscriptionsRequest(w, r)
		if !ok {
			return
		}
		if req.Mode = strings.TrimSpace(req.Mode); req.Mode == "" {
			writeError(w, http.StatusBadRequest, "mode is required")
			return
		}

		err := ctrl.ChangeMode(req.Mode, req.Keys...)
		switch {
		case errors.Is(err, connection.ErrNotConnected):
			writeError(w, http.StatusConflict, err.Error())
			return
		case errors.Is(err, connection.ErrModeUnsupported):
			writeError(w, http.StatusNotImplemented, err.Error())
			return
		case err != nil:
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Info("mode changed via ops api", "mode", req.Mode, "keys", req.Keys)
		writeSubscriptions(w, ctrl)
	})

	return mux
}

// decodeSubscriptionsRequest reads a {"keys":[...]} body, dropping blank
// keys. It writes a 400 and returns false when no key is left.
func decodeSubscriptionsRequest(w http.ResponseWriter, r *http.Request) (subscriptionsRequest, bool) {
	var req subscriptionsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return req, false
	}

	keys := make([]string, 0, len(req.Keys))
	for _, k := range req.Keys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		writeError(w, http.StatusBadRequest, "keys is required")
		return req, false
	}
	req.Keys = keys
	return req, true
}

func writeSubscriptions(w http.ResponseWriter, ctrl streamControl) {
	keys := ctrl.Subscriptions()
	writeJSON(w, http.StatusOK, subscriptionsResponse{Count: len(keys), InstrumentKeys: keys})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
