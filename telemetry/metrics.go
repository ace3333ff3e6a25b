// Package telemetry provides Prometheus metrics, correlation-id aware logging
// helpers, and OpenTelemetry tracing setup for the bridge.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesSeen        *prometheus.CounterVec // by origin
	ResponsesSent       prometheus.Counter
	ResponsesDropped    prometheus.Counter // rate ceiling hit
	ResponsesSuppressed prometheus.Counter // loop guard forced ignore
	LeadMessages        prometheus.Counter
	Reconnects          prometheus.Counter
	ModelErrors         *prometheus.CounterVec // by kind

	// Histograms (seconds)
	ModelCallDuration prometheus.Observer

	// Gauges
	ConnState *prometheus.GaugeVec // by channel; value is the state ordinal
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesSeen = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bridge_messages_seen_total", Help: "Inbound channel messages by origin"}, []string{"origin"})
		ResponsesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_responses_sent_total", Help: "Responses sent to the channel"})
		ResponsesDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_responses_dropped_total", Help: "Responses dropped by the outbound rate ceiling"})
		ResponsesSuppressed = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_responses_suppressed_total", Help: "Messages ignored because a bot pair is suppressed"})
		LeadMessages = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_lead_messages_total", Help: "Bot-initiated lead messages"})
		Reconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_reconnects_total", Help: "Reconnect attempts"})
		ModelErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bridge_model_errors_total", Help: "Failed model calls by error kind"}, []string{"kind"})
		ModelCallDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "bridge_model_call_duration_seconds", Help: "Model completion call duration seconds", Buckets: prometheus.DefBuckets})
		ConnState = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "bridge_connection_state", Help: "Connection state ordinal per channel (0=disconnected .. 4=reconnecting)"}, []string{"channel"})
	})
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
