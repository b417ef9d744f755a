// Package metrics exposes Prometheus counters for activation and block loading.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dfworld"

// Metrics groups the engine's collectors.
type Metrics struct {
	activations     prometheus.Counter
	chainCycles     prometheus.Counter
	traversals      *prometheus.CounterVec
	unknownActions  *prometheus.CounterVec
	blocksLoaded    prometheus.Counter
	blockFailures   prometheus.Counter
	activeMovers    prometheus.Gauge
	registryEntries prometheus.Gauge
}

// New creates the collectors and registers them with reg.
// Each engine needs its own registry; registering twice on one fails.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		activations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activations_total",
			Help:      "Activation behaviors dispatched, chained ones included.",
		}),
		chainCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_cycles_total",
			Help:      "Activations skipped because the object was already visited in the cascade.",
		}),
		traversals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traversals_completed_total",
			Help:      "Mover animations that reached the end of their duration.",
		}, []string{"kind"}),
		unknownActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_actions_total",
			Help:      "Action records with an unrecognised type byte.",
		}, []string{"type"}),
		blocksLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_loaded_total",
			Help:      "Blocks decoded and instantiated.",
		}),
		blockFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "block_load_failures_total",
			Help:      "Blocks that failed to decode or instantiate.",
		}),
		activeMovers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_movers",
			Help:      "Mover records currently animating.",
		}),
		registryEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "activation_entries",
			Help:      "Objects with a registered activation behavior.",
		}),
	}

	collectors := []prometheus.Collector{
		m.activations, m.chainCycles, m.traversals, m.unknownActions,
		m.blocksLoaded, m.blockFailures, m.activeMovers, m.registryEntries,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Activation counts one dispatched behavior.
func (m *Metrics) Activation() {
	if m == nil {
		return
	}
	m.activations.Inc()
}

// ChainCycle counts one activation dropped by the cycle guard.
func (m *Metrics) ChainCycle() {
	if m == nil {
		return
	}
	m.chainCycles.Inc()
}

// TraversalCompleted counts a finished animation of the given kind.
func (m *Metrics) TraversalCompleted(kind string) {
	if m == nil {
		return
	}
	m.traversals.WithLabelValues(kind).Inc()
}

// UnknownAction counts an unrecognised action record.
func (m *Metrics) UnknownAction(typeHex string) {
	if m == nil {
		return
	}
	m.unknownActions.WithLabelValues(typeHex).Inc()
}

// BlockLoaded counts a successful block load.
func (m *Metrics) BlockLoaded() {
	if m == nil {
		return
	}
	m.blocksLoaded.Inc()
}

// BlockFailed counts a failed block load.
func (m *Metrics) BlockFailed() {
	if m == nil {
		return
	}
	m.blockFailures.Inc()
}

// SetActiveMovers records the number of animating movers.
func (m *Metrics) SetActiveMovers(n int) {
	if m == nil {
		return
	}
	m.activeMovers.Set(float64(n))
}

// SetRegistryEntries records the size of the activation registry.
func (m *Metrics) SetRegistryEntries(n int) {
	if m == nil {
		return
	}
	m.registryEntries.Set(float64(n))
}
