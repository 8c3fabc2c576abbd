package degradation

import "github.com/prometheus/client_golang/prometheus"

const (
	metricsNamespace = "nrdot"
	metricsSubsystem = "degradation"
)

// Metrics is this component's uniform metrics descriptor, grounded on the
// teacher's processor.go initMetrics (levelGauge/actionsCounter/
// droppedCounter/stateGauge), registered here against an
// injectable registry rather than prometheus.DefaultRegisterer.
type Metrics struct {
	Level   prometheus.Gauge
	Actions *prometheus.CounterVec
	Dropped *prometheus.CounterVec
	State   *prometheus.GaugeVec
}

func newMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		Level: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem,
			Name: "current_level", Help: "Current degradation level (0 = normal, higher = more degraded).",
		}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem,
			Name: "actions_total", Help: "Degradation actions applied.",
		}, []string{"action"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem,
			Name: "dropped_total", Help: "Records dropped by an active degradation action.",
		}, []string{"kind"}),
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem,
			Name: "observed_state", Help: "Most recently sampled resource state driving degradation decisions.",
		}, []string{"signal"}),
	}
	if registry != nil {
		registry.MustRegister(m.Level, m.Actions, m.Dropped, m.State)
	}
	return m
}

// Metrics returns the component's metrics descriptor.
func (m *Manager) Metrics() *Metrics { return m.metrics }
