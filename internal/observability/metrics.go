package observability

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rgf",
			Subsystem: "reactive",
			Name:      "ticks_total",
			Help:      "Propagation ticks by outcome.",
		},
		[]string{"converged"},
	)
	tickPasses = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rgf",
			Subsystem: "reactive",
			Name:      "tick_passes",
			Help:      "Passes run per propagation tick.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
		},
	)
	propertyWrites = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rgf",
			Subsystem: "reactive",
			Name:      "property_writes_total",
			Help:      "Property writes applied by ticks.",
		},
	)
	behaviourTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rgf",
			Subsystem: "behaviour",
			Name:      "transitions_total",
			Help:      "Behaviour lifecycle transitions by target state.",
		},
		[]string{"behaviour", "state"},
	)
	resolverPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rgf",
			Subsystem: "plugin",
			Name:      "resolver_passes_total",
			Help:      "Resolver passes by mode and result.",
		},
		[]string{"mode", "result"},
	)
	pluginTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rgf",
			Subsystem: "plugin",
			Name:      "transitions_total",
			Help:      "Plugin state transitions.",
		},
		[]string{"plugin", "state"},
	)
)

// RegisterMetrics registers the collectors with the default registry.
// Every Record function calls it, so explicit calls are optional.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(ticks, tickPasses, propertyWrites,
			behaviourTransitions, resolverPasses, pluginTransitions)
	})
}

// RecordTick records one finished propagation tick.
func RecordTick(passes, writes int, converged bool) {
	RegisterMetrics()
	ticks.WithLabelValues(strconv.FormatBool(converged)).Inc()
	tickPasses.Observe(float64(passes))
	propertyWrites.Add(float64(writes))
}

// RecordBehaviourTransition records a behaviour reaching state.
func RecordBehaviourTransition(behaviour, state string) {
	RegisterMetrics()
	behaviourTransitions.WithLabelValues(behaviour, state).Inc()
}

// RecordResolverPass records one resolver pass.
func RecordResolverPass(mode, result string) {
	RegisterMetrics()
	resolverPasses.WithLabelValues(mode, result).Inc()
}

// RecordPluginTransition records a plugin reaching state.
func RecordPluginTransition(plugin, state string) {
	RegisterMetrics()
	pluginTransitions.WithLabelValues(plugin, state).Inc()
}
