package dlq

import "github.com/prometheus/client_golang/prometheus"

const (
	metricsNamespace = "nrdot"
	metricsSubsystem = "dlq"
)

// Metrics is this component's uniform metrics descriptor, grounded on the
// teacher's metrics_collector.go registration set.
type Metrics struct {
	RecordsWritten    prometheus.Counter
	BytesWritten      prometheus.Counter
	RecordsReplayed   prometheus.Counter
	BytesReplayed     prometheus.Counter
	VerificationFails prometheus.Counter
	SegmentsActive    prometheus.Gauge
	ReplayActive      prometheus.Gauge
}

func newMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		RecordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem,
			Name: "records_written_total", Help: "Records appended to the DLQ.",
		}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem,
			Name: "bytes_written_total", Help: "Bytes appended to the DLQ.",
		}),
		RecordsReplayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem,
			Name: "records_replayed_total", Help: "Records replayed from the DLQ.",
		}),
		BytesReplayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem,
			Name: "bytes_replayed_total", Help: "Bytes replayed from the DLQ.",
		}),
		VerificationFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem,
			Name: "verification_fails_total", Help: "SHA-256 verification failures during replay.",
		}),
		SegmentsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem,
			Name: "segments", Help: "Number of segment files currently on disk.",
		}),
		ReplayActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem,
			Name: "replay_active", Help: "1 while a replay is in progress, 0 otherwise.",
		}),
	}

	if registry != nil {
		registry.MustRegister(
			m.RecordsWritten, m.BytesWritten, m.RecordsReplayed, m.BytesReplayed,
			m.VerificationFails, m.SegmentsActive, m.ReplayActive,
		)
	}
	return m
}

// Metrics returns the component's metrics descriptor.
func (s *Store) Metrics() *Metrics { return s.metrics }
