package metrics

import (
	"mercator-hq/relay/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheSource exposes the counters of a cache that tracks its own hits and
// misses, such as policy.CachedTable.
type CacheSource interface {
	Hits() uint64
	Misses() uint64
	Len() int
}

// newCacheCollectors builds func-backed collectors reading src on scrape.
//
// Metrics:
//   - relay_cache_hits_total: Total cache hits
//   - relay_cache_misses_total: Total cache misses
//   - relay_cache_entries: Current number of entries in cache
func newCacheCollectors(cfg *config.MetricsConfig, name string, src CacheSource) []prometheus.Collector {
	labels := prometheus.Labels{"cache": name}
	return []prometheus.Collector{
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace:   cfg.Namespace,
				Subsystem:   cfg.Subsystem,
				Name:        "cache_hits_total",
				Help:        "Total number of cache hits",
				ConstLabels: labels,
			},
			func() float64 { return float64(src.Hits()) },
		),
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace:   cfg.Namespace,
				Subsystem:   cfg.Subsystem,
				Name:        "cache_misses_total",
				Help:        "Total number of cache misses",
				ConstLabels: labels,
			},
			func() float64 { return float64(src.Misses()) },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace:   cfg.Namespace,
				Subsystem:   cfg.Subsystem,
				Name:        "cache_entries",
				Help:        "Current number of entries in cache",
				ConstLabels: labels,
			},
			func() float64 { return float64(src.Len()) },
		),
	}
}
