// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
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
	LinesObserved    prometheus.Counter
	CommandsTotal    *prometheus.CounterVec // labels: command, outcome
	GenerationsTotal *prometheus.CounterVec // labels: result
	PersistDropped   prometheus.Counter
	PersistFailures  prometheus.Counter

	// Histograms (seconds)
	GenerationDuration prometheus.Observer

	// Gauges
	PersistQueueDepth prometheus.Gauge
	BotEnabledGauge   prometheus.Gauge // 1=enabled,0=disabled
)

// Command outcomes used as the "outcome" label.
const (
	OutcomeOK       = "ok"
	OutcomeDenied   = "denied"
	OutcomeUsage    = "usage"
	OutcomeFailed   = "failed"
	OutcomeDisabled = "disabled"
	OutcomeIgnored  = "ignored"
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		LinesObserved = promauto.NewCounter(prometheus.CounterOpts{Name: "chronicle_lines_observed_total", Help: "Chat lines received (self-echo excluded)"})
		CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chronicle_commands_total", Help: "Recognized commands by outcome"}, []string{"command", "outcome"})
		GenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chronicle_generations_total", Help: "Chronicle generation calls by result"}, []string{"result"})
		PersistDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "chronicle_persist_dropped_total", Help: "Messages dropped because the persist queue was full"})
		PersistFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "chronicle_persist_failures_total", Help: "Failed durable message writes"})
		GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chronicle_generation_duration_seconds", Help: "Generation call duration seconds", Buckets: prometheus.DefBuckets})
		PersistQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{Name: "chronicle_persist_queue_depth", Help: "Messages waiting for durable write"})
		BotEnabledGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chronicle_bot_enabled", Help: "Global bot state enabled=1 disabled=0"})
	})
}

// ObserveLine counts one received chat line.
func ObserveLine() {
	if LinesObserved != nil {
		LinesObserved.Inc()
	}
}

// ObserveCommand counts a command invocation with its outcome.
func ObserveCommand(command, outcome string) {
	if CommandsTotal != nil {
		CommandsTotal.WithLabelValues(command, outcome).Inc()
	}
}

// ObserveGeneration records a generation call duration and result.
func ObserveGeneration(d time.Duration, err error) {
	if GenerationDuration != nil {
		GenerationDuration.Observe(d.Seconds())
	}
	if GenerationsTotal != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		GenerationsTotal.WithLabelValues(result).Inc()
	}
}

// ObservePersistDrop counts a message dropped by the persist queue.
func ObservePersistDrop() {
	if PersistDropped != nil {
		PersistDropped.Inc()
	}
}

// ObservePersistFailure counts failed durable writes.
func ObservePersistFailure(n int) {
	if PersistFailures != nil {
		PersistFailures.Add(float64(n))
	}
}

// SetPersistQueueDepth records the number of queued writes.
func SetPersistQueueDepth(n int) {
	if PersistQueueDepth != nil {
		PersistQueueDepth.Set(float64(n))
	}
}

// SetBotEnabled mirrors the global bot state into a gauge.
func SetBotEnabled(enabled bool) {
	if BotEnabledGauge != nil {
		if enabled {
			BotEnabledGauge.Set(1)
		} else {
			BotEnabledGauge.Set(0)
		}
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
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
