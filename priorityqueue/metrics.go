package priorityqueue

import "github.com/prometheus/client_golang/prometheus"

const (
	metricsNamespace = "nrdot"
	metricsSubsystem = "priority_queue"
)

// Metrics is this component's uniform metrics descriptor.
type Metrics struct {
	Size      prometheus.Gauge
	Processed *prometheus.CounterVec
	Spilled   *prometheus.CounterVec
}

func newMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		Size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "size",
			Help:      "Total items currently queued across all classes.",
		}),
		Processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "processed_total",
			Help:      "Items dequeued, by class.",
		}, []string{"class"}),
		Spilled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "spilled_total",
			Help:      "Items handed to the DLQ, by class: diverted on enqueue or spilled after a failed send.",
		}, []string{"class"}),
	}

	if registry != nil {
		registry.MustRegister(m.Size, m.Processed, m.Spilled)
	}
	return m
}

func (m *Metrics) setSize(n int)          { m.Size.Set(float64(n)) }
func (m *Metrics) incProcessed(class string) { m.Processed.WithLabelValues(class).Inc() }
func (m *Metrics) incSpilled(class string)   { m.Spilled.WithLabelValues(class).Inc() }

// Metrics returns the component's metrics descriptor.
func (q *Queue) Metrics() *Metrics { return q.metrics }
