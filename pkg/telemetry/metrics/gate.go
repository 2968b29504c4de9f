package metrics

import (
	"mercator-hq/relay/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// GateMetrics tracks admission decisions and audit writes.
//
// Metrics:
//   - relay_gate_decisions_total: Reject/allow decisions by connection type
//   - relay_audit_records_total: Audit records written by connection type and status
//   - relay_audit_dropped_total: Audit records dropped by reason
type GateMetrics struct {
	decisionsTotal *prometheus.CounterVec
	recordsTotal   *prometheus.CounterVec
	droppedTotal   *prometheus.CounterVec
}

// NewGateMetrics creates and registers gate metrics with the provided registry.
func NewGateMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *GateMetrics {
	gm := &GateMetrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "gate_decisions_total",
				Help:      "Total number of admission decisions",
			},
			[]string{"connection_type", "decision"},
		),

		recordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "audit_records_total",
				Help:      "Total number of network usage records written",
			},
			[]string{"connection_type", "status"},
		),

		droppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "audit_dropped_total",
				Help:      "Total number of network usage records dropped",
			},
			[]string{"reason"},
		),
	}

	registry.MustRegister(gm.decisionsTotal, gm.recordsTotal, gm.droppedTotal)
	return gm
}

// RecordDecision records an admission decision ("allow" or "reject").
func (gm *GateMetrics) RecordDecision(connectionType, decision string) {
	gm.decisionsTotal.WithLabelValues(connectionType, decision).Inc()
}

// RecordAudit records a written audit record.
func (gm *GateMetrics) RecordAudit(connectionType, status string) {
	gm.recordsTotal.WithLabelValues(connectionType, status).Inc()
}

// RecordDrop records an audit record that never reached storage.
func (gm *GateMetrics) RecordDrop(reason string) {
	gm.droppedTotal.WithLabelValues(reason).Inc()
}
