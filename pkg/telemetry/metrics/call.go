package metrics

import (
	"time"

	"mercator-hq/relay/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// CallMetrics tracks relay calls from admission to a terminal state.
//
// Metrics:
//   - relay_calls_started_total: Calls received
//   - relay_calls_in_flight: Calls not yet terminal
//   - relay_calls_finished_total: Terminal calls by state and mode
//   - relay_call_duration_seconds: Time from receipt to terminal state
//   - relay_call_bytes: Body bytes relayed per call
//   - relay_throttle_pauses_total: Streaming throttle pauses
type CallMetrics struct {
	startedTotal   prometheus.Counter
	inFlight       prometheus.Gauge
	finishedTotal  *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	bytes          *prometheus.HistogramVec
	throttlePauses prometheus.Counter
}

// NewCallMetrics creates and registers call metrics with the provided registry.
func NewCallMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CallMetrics {
	cm := &CallMetrics{
		startedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "calls_started_total",
			Help:      "Total number of download calls received",
		}),

		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "calls_in_flight",
			Help:      "Number of download calls not yet in a terminal state",
		}),

		finishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "calls_finished_total",
				Help:      "Total number of download calls by terminal state and delivery mode",
			},
			[]string{"state", "mode"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "call_duration_seconds",
				Help:      "Duration of download calls in seconds",
				// Downloads range from tiny config fetches to large models.
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"state"},
		),

		bytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "call_bytes",
				Help:      "Body bytes relayed per download call",
				Buckets:   prometheus.ExponentialBuckets(1024, 4, 10), // 1KiB to 256MiB
			},
			[]string{"mode"},
		),

		throttlePauses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "throttle_pauses_total",
			Help:      "Total number of streaming throttle pauses",
		}),
	}

	registry.MustRegister(
		cm.startedTotal,
		cm.inFlight,
		cm.finishedTotal,
		cm.duration,
		cm.bytes,
		cm.throttlePauses,
	)

	return cm
}

// RecordStarted records a received call.
func (cm *CallMetrics) RecordStarted() {
	cm.startedTotal.Inc()
	cm.inFlight.Inc()
}

// RecordFinished records a call reaching a terminal state.
func (cm *CallMetrics) RecordFinished(state, mode string, bytes int64, elapsed time.Duration) {
	cm.inFlight.Dec()
	cm.finishedTotal.WithLabelValues(state, mode).Inc()
	cm.duration.WithLabelValues(state).Observe(elapsed.Seconds())
	cm.bytes.WithLabelValues(mode).Observe(float64(bytes))
}

// RecordThrottle records one throttle pause.
func (cm *CallMetrics) RecordThrottle() {
	cm.throttlePauses.Inc()
}
