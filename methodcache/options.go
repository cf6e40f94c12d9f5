package methodcache

import (
	"github.com/goliatone/go-method-cache/cache"
	"github.com/goliatone/go-method-cache/statediff"
)

// settings collects per-wrapper configuration assembled from options.
type settings struct {
	codec    cache.Codec
	detector *statediff.Detector
	policy   Policy
	logger   Logger
	metrics  MetricsCollector
}

func defaultSettings() settings {
	return settings{
		policy:  DefaultPolicy(),
		logger:  NoopLogger(),
		metrics: NoopMetrics(),
	}
}

// Option configures a wrapped method.
type Option func(*settings)

// WithCodec overrides the serialization codec for this target.
func WithCodec(codec cache.Codec) Option {
	return func(s *settings) {
		s.codec = codec
	}
}

// WithDetector supplies the state detector used for snapshots, diffs, and
// restores. Required for stateful policies when the default detector is not
// suitable (e.g. a declared field whitelist).
func WithDetector(d *statediff.Detector) Option {
	return func(s *settings) {
		s.detector = d
	}
}

// WithPolicy sets the explicit state policy for this target.
func WithPolicy(p Policy) Option {
	return func(s *settings) {
		s.policy = p
	}
}

// WithLogger attaches a logger. Defaults to a no-op.
func WithLogger(l Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics attaches a metrics collector. Defaults to a no-op.
func WithMetrics(m MetricsCollector) Option {
	return func(s *settings) {
		if m != nil {
			s.metrics = m
		}
	}
}
