package redlock

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// Settings holds the process-wide defaults for a Client, resolved once at
// construction time and read-only afterward — mirroring go-warp's
// adapter.RedisOption / RedisLockOption functional-options constructors.
type Settings struct {
	driftFactor         float64
	retryCount          int
	retryDelay          time.Duration
	retryJitter         time.Duration
	autoExtendThreshold time.Duration

	tracingEnabled bool
	tracer         trace.Tracer
	metrics        *Metrics
}

func defaultSettings() Settings {
	return Settings{
		driftFactor:         0.01,
		retryCount:          10,
		retryDelay:          200 * time.Millisecond,
		retryJitter:         200 * time.Millisecond,
		autoExtendThreshold: 500 * time.Millisecond,
	}
}

// Option configures a Client at construction time.
type Option func(*Settings)

// WithDriftFactor overrides the clock-drift multiplier applied to a lock's
// requested TTL (default 0.01).
func WithDriftFactor(factor float64) Option {
	return func(s *Settings) { s.driftFactor = factor }
}

// WithRetryCount overrides the number of additional attempts after the
// first before an operation raises *ExecutionError (default 10).
func WithRetryCount(count int) Option {
	return func(s *Settings) { s.retryCount = count }
}

// WithRetryDelay overrides the base inter-attempt delay (default 200ms).
func WithRetryDelay(d time.Duration) Option {
	return func(s *Settings) { s.retryDelay = d }
}

// WithRetryJitter overrides the uniform random jitter bound added to each
// inter-attempt delay (default 200ms).
func WithRetryJitter(d time.Duration) Option {
	return func(s *Settings) { s.retryJitter = d }
}

// WithAutoExtendThreshold overrides the margin before expiration at which
// Using schedules its next renewal attempt (default 500ms).
func WithAutoExtendThreshold(d time.Duration) Option {
	return func(s *Settings) { s.autoExtendThreshold = d }
}

// WithTracing gates the optional per-attempt OpenTelemetry spans, mirroring
// go-warp's v1/cache.InMemoryCache's traceEnabled gate. It is a no-op
// unless a tracer is also supplied via WithTracer.
func WithTracing(enabled bool) Option {
	return func(s *Settings) { s.tracingEnabled = enabled }
}

// WithTracer supplies the trace.Tracer used for spans when tracing is
// enabled. Callers typically pass otel.Tracer("redlock") after wiring a
// real exporter; the library never constructs one itself.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Settings) { s.tracer = tracer }
}

// WithMetrics attaches a *Metrics instance created by RegisterMetrics. When
// nil (the default), metrics recording is skipped entirely.
func WithMetrics(m *Metrics) Option {
	return func(s *Settings) { s.metrics = m }
}

// AcquireOption overrides Settings fields for a single Acquire or Using
// call, leaving the Client's process-wide defaults untouched.
type AcquireOption func(*Settings)

// UsingOption overrides for a single Using call; an alias kept distinct
// from AcquireOption so call sites read naturally even though the
// underlying mechanism is identical.
type UsingOption = AcquireOption

// UsingAutoExtendThreshold overrides the auto-extension threshold for one
// Using call, for callers that want a tighter or looser renewal margin than
// the Client's default for a particular critical section.
func UsingAutoExtendThreshold(d time.Duration) AcquireOption {
	return func(s *Settings) { s.autoExtendThreshold = d }
}

// UsingRetryCount overrides retryCount for one Acquire/Using call.
func UsingRetryCount(count int) AcquireOption {
	return func(s *Settings) { s.retryCount = count }
}

// UsingDriftFactor overrides driftFactor for one Acquire/Using call.
func UsingDriftFactor(factor float64) AcquireOption {
	return func(s *Settings) { s.driftFactor = factor }
}

func (s Settings) withOverrides(opts []AcquireOption) Settings {
	merged := s
	for _, opt := range opts {
		opt(&merged)
	}
	return merged
}

// driftFor computes the clock-drift allowance for a given ttl: a fraction
// of the ttl itself, floored to whole milliseconds, plus a fixed 2ms margin
// for rounding.
func (s Settings) driftFor(ttl time.Duration) time.Duration {
	return time.Duration(float64(ttl.Milliseconds())*s.driftFactor)*time.Millisecond + 2*time.Millisecond
}

// RegisterMetrics constructs the optional counters and latency histogram
// and registers them against reg, matching go-warp's
// v1/metrics.RegisterCoreMetrics signature (caller-supplied
// prometheus.Registerer, never a global default).
func RegisterMetrics(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(m.acquireTotal, m.extendTotal, m.releaseTotal, m.attemptLatency, m.votesAgainstTotal)
	return m
}
