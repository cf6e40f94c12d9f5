package methodcache

import "time"

// Logger interface for cache hit/miss reporting, warnings, and error
// reporting. Dependency-free so callers can bridge slog, zap, or any other
// backend without this package importing one.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricsCollector interface for per-call cache metrics. Implementations can
// forward to Prometheus, OpenTelemetry, or statsd; a no-op is used when the
// caller does not care.
type MetricsCollector interface {
	IncrementCounter(metric string, labels map[string]string)
	RecordDuration(metric string, duration time.Duration, labels map[string]string)
}

// Metric names emitted by the interception wrapper.
const (
	MetricHits      = "methodcache_hits_total"
	MetricMisses    = "methodcache_misses_total"
	MetricWrites    = "methodcache_writes_total"
	MetricDurations = "methodcache_call_duration"
)

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NoopLogger returns a logger that discards everything.
func NoopLogger() Logger {
	return noopLogger{}
}

type noopMetrics struct{}

func (noopMetrics) IncrementCounter(string, map[string]string)               {}
func (noopMetrics) RecordDuration(string, time.Duration, map[string]string) {}

// NoopMetrics returns a collector that discards everything.
func NoopMetrics() MetricsCollector {
	return noopMetrics{}
}
