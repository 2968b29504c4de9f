package metrics

import (
	"mercator-hq/relay/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// TransportSource exposes connection counters of the local transport server.
type TransportSource interface {
	ActiveCalls() int64
	TotalCalls() int64
}

// FlagSource exposes flag reload bookkeeping.
type FlagSource interface {
	ParseFailures() int64
}

func newTransportCollectors(cfg *config.MetricsConfig, src TransportSource) []prometheus.Collector {
	return []prometheus.Collector{
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "transport_active_calls",
				Help:      "Number of open transport connections with a call in progress",
			},
			func() float64 { return float64(src.ActiveCalls()) },
		),
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "transport_calls_total",
				Help:      "Total number of transport calls accepted",
			},
			func() float64 { return float64(src.TotalCalls()) },
		),
	}
}

func newFlagCollectors(cfg *config.MetricsConfig, src FlagSource) []prometheus.Collector {
	return []prometheus.Collector{
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "flag_parse_failures_total",
				Help:      "Total number of flag values that failed to parse and fell back to defaults",
			},
			func() float64 { return float64(src.ParseFailures()) },
		),
	}
}
