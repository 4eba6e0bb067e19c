// Package metrics exposes a Prometheus registry tracking the refinement
// loop's progress: committed-state count, frontier size, the current kappa,
// the current probability window, and pass count. It is generalized from
// the teacher's kripke/metrics.go MetricsCollector, which held the same
// shape of data (name, type, value, unit, description) but rendered it to a
// markdown table on demand instead of serving it live.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector owns one registry's worth of gauges and counters for a single
// refinement run. Unlike the teacher's MetricsCollector, which lazily
// created a Metric the first time Counter was called, every instrument here
// is registered up front in New so a /metrics scrape never races a still-
// warming controller.
type Collector struct {
	registry *prometheus.Registry

	committedStates prometheus.Gauge
	frontierSize    prometheus.Gauge
	kappa           prometheus.Gauge
	window          prometheus.Gauge
	passesRun       prometheus.Counter
	statesExpanded  prometheus.Counter
	statesPruned    prometheus.Counter
}

// New constructs a Collector with its own registry, so multiple concurrent
// runs (e.g. under internal/threaded) don't collide on the default global
// registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		committedStates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stamina",
			Name:      "committed_states",
			Help:      "Number of states committed to the transition matrix.",
		}),
		frontierSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stamina",
			Name:      "frontier_size",
			Help:      "Number of states currently queued for expansion or re-admission.",
		}),
		kappa: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stamina",
			Name:      "kappa",
			Help:      "Current truncation threshold kappa for the in-progress pass.",
		}),
		window: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stamina",
			Name:      "probability_window",
			Help:      "Current P_max - P_min window for the property under refinement.",
		}),
		passesRun: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stamina",
			Name:      "passes_total",
			Help:      "Number of refinement passes completed.",
		}),
		statesExpanded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stamina",
			Name:      "states_expanded_total",
			Help:      "Number of states fully expanded (not truncated) across all passes.",
		}),
		statesPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stamina",
			Name:      "states_pruned_total",
			Help:      "Number of states carried over into a kappa-truncated perimeter across all passes.",
		}),
	}
	reg.MustRegister(
		c.committedStates,
		c.frontierSize,
		c.kappa,
		c.window,
		c.passesRun,
		c.statesExpanded,
		c.statesPruned,
	)
	return c
}

// Registry returns the underlying Prometheus registry, for wiring into an
// HTTP handler (promhttp.HandlerFor) from cmd/stamina.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// SetCommittedStates records the current size of the committed state set.
func (c *Collector) SetCommittedStates(n int) { c.committedStates.Set(float64(n)) }

// SetFrontierSize records the current combined size of the frontier and
// carry-over queues.
func (c *Collector) SetFrontierSize(n int) { c.frontierSize.Set(float64(n)) }

// SetKappa records the truncation threshold used by the pass just run.
func (c *Collector) SetKappa(kappa float64) { c.kappa.Set(kappa) }

// SetWindow records the most recently solved P_max - P_min gap.
func (c *Collector) SetWindow(w float64) { c.window.Set(w) }

// ObservePass rolls a completed pass's counters into the registry.
func (c *Collector) ObservePass(expanded, pruned int) {
	c.passesRun.Inc()
	c.statesExpanded.Add(float64(expanded))
	c.statesPruned.Add(float64(pruned))
}
