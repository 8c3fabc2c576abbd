package cardinalitylimiter

import "github.com/prometheus/client_golang/prometheus"

const (
	metricsNamespace = "nrdot"
	metricsSubsystem = "cardinality_limiter"
)

// Metrics is the uniform descriptor exposing this component's counters and
// gauges, decoupled from whichever registry (or none) it was built with
// (REDESIGN FLAGS: "uniform Metrics() descriptor").
type Metrics struct {
	TableSize  prometheus.Gauge
	Dropped    prometheus.Counter
	Aggregated prometheus.Counter
}

func newMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		TableSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "table_size",
			Help:      "Number of unique key-sets currently admitted.",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "dropped_total",
			Help:      "Key-sets dropped under cardinality pressure.",
		}),
		Aggregated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "aggregated_total",
			Help:      "Key-sets admitted via aggregation under cardinality pressure.",
		}),
	}

	if registry != nil {
		registry.MustRegister(m.TableSize, m.Dropped, m.Aggregated)
	}
	return m
}

func (m *Metrics) setTableSize(n int) { m.TableSize.Set(float64(n)) }
func (m *Metrics) incDropped()        { m.Dropped.Inc() }
func (m *Metrics) incAggregated()     { m.Aggregated.Inc() }

// Metrics returns the component's metrics descriptor.
func (l *Limiter) Metrics() *Metrics { return l.metrics }
