package metrics

import (
	"sync"
	"time"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/networkusage/repository"
	"mercator-hq/relay/pkg/relay"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns the Prometheus registry of the process and records relay
// and gate events into it. It satisfies relay.Metrics and
// repository.Metrics so it can be handed straight to both.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	callMetrics *CallMetrics
	gateMetrics *GateMetrics

	// Drop reasons come from error paths; keep them bounded.
	cardinalityLimiter *CardinalityLimiter
}

var (
	_ relay.Metrics      = (*Collector)(nil)
	_ repository.Metrics = (*Collector)(nil)
)

// NewCollector creates a collector with the specified configuration and
// Prometheus registry. If registry is nil a fresh registry is created.
//
// Example:
//
//	cfg := &config.MetricsConfig{Enabled: true, Namespace: "relay"}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}

	c := &Collector{
		config:             cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(64),
	}
	c.callMetrics = NewCallMetrics(cfg, registry)
	c.gateMetrics = NewGateMetrics(cfg, registry)
	return c
}

// CallStarted implements relay.Metrics.
func (c *Collector) CallStarted() {
	if !c.config.Enabled {
		return
	}
	c.callMetrics.RecordStarted()
}

// CallFinished implements relay.Metrics. Rejected calls carry no mode.
func (c *Collector) CallFinished(state relay.State, mode relay.Mode, bytes int64, elapsed time.Duration) {
	if !c.config.Enabled {
		return
	}
	m := string(mode)
	if m == "" {
		m = "none"
	}
	c.callMetrics.RecordFinished(state.String(), m, bytes, elapsed)
}

// Throttled implements relay.Metrics.
func (c *Collector) Throttled() {
	if !c.config.Enabled {
		return
	}
	c.callMetrics.RecordThrottle()
}

// GateDecision implements repository.Metrics.
func (c *Collector) GateDecision(connectionType, decision string) {
	if !c.config.Enabled {
		return
	}
	c.gateMetrics.RecordDecision(connectionType, decision)
}

// AuditRecorded implements repository.Metrics.
func (c *Collector) AuditRecorded(connectionType, status string) {
	if !c.config.Enabled {
		return
	}
	c.gateMetrics.RecordAudit(connectionType, status)
}

// AuditDropped implements repository.Metrics.
func (c *Collector) AuditDropped(reason string) {
	if !c.config.Enabled {
		return
	}
	if !c.cardinalityLimiter.Allow(reason) {
		reason = "other"
	}
	c.gateMetrics.RecordDrop(reason)
}

// ObserveCache exports the counters of a self-counting cache under name.
func (c *Collector) ObserveCache(name string, src CacheSource) error {
	return c.register(newCacheCollectors(c.config, name, src))
}

// ObserveTransport exports transport connection counters.
func (c *Collector) ObserveTransport(src TransportSource) error {
	return c.register(newTransportCollectors(c.config, src))
}

// ObserveFlags exports flag bookkeeping.
func (c *Collector) ObserveFlags(src FlagSource) error {
	return c.register(newFlagCollectors(c.config, src))
}

func (c *Collector) register(cs []prometheus.Collector) error {
	if !c.config.Enabled {
		return nil
	}
	for _, col := range cs {
		if err := c.registry.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter bounds the number of distinct values admitted for a
// label.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter admitting at most maxCardinality
// distinct values.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value is already tracked or still fits.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[value]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
