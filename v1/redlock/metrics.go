package redlock

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the optional observability surface for a Client, modeled on
// go-warp's v1/metrics (CounterVec/Gauge built with prometheus.New*,
// registered against a caller-supplied Registerer) and
// shambharkar/LockServer's internal/obs.Metrics labeling scheme
// (lock_acquire_total, lock_renew_total by result). A Client records
// metrics only when given one built by RegisterMetrics via WithMetrics; a
// nil *Metrics is safe to record against everywhere it's consulted.
type Metrics struct {
	acquireTotal      *prometheus.CounterVec
	extendTotal       *prometheus.CounterVec
	releaseTotal      *prometheus.CounterVec
	attemptLatency    *prometheus.HistogramVec
	votesAgainstTotal prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		acquireTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redlock_acquire_total",
			Help: "Acquire attempts, labeled by outcome.",
		}, []string{"result"}),
		extendTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redlock_extend_total",
			Help: "Extend attempts, labeled by outcome.",
		}, []string{"result"}),
		releaseTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redlock_release_total",
			Help: "Release attempts, labeled by outcome.",
		}, []string{"result"}),
		attemptLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redlock_attempt_latency_seconds",
			Help:    "Wall time of one fan-out-and-tally attempt, labeled by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		votesAgainstTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redlock_votes_against_total",
			Help: "Per-server votes against across all operations and attempts.",
		}),
	}
}

const (
	resultSuccess      = "success"
	resultQuorumFailed = "quorum_failed"
	resultError        = "error"
)

func (m *Metrics) observeAttempt(op string, rec AttemptRecord, elapsed float64) {
	if m == nil {
		return
	}
	m.attemptLatency.WithLabelValues(op).Observe(elapsed)
	m.votesAgainstTotal.Add(float64(len(rec.VotesAgainst)))
}

func (m *Metrics) countResult(op, result string) {
	if m == nil {
		return
	}
	var vec *prometheus.CounterVec
	switch op {
	case "acquire":
		vec = m.acquireTotal
	case "extend":
		vec = m.extendTotal
	case "release":
		vec = m.releaseTotal
	default:
		return
	}
	vec.WithLabelValues(result).Inc()
}
