// Package degradation implements the adaptive degradation manager: a
// leveled state machine that sheds load under resource pressure and backs
// off only after a cooldown, applying idempotent, last-writer-wins actions
// (spec.md §4.4).
package degradation

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/nr-labs/nrdot-core/record"
)

// Sample is one resource-utilization snapshot fed to the manager on each
// poll tick.
type Sample struct {
	MemoryUtilizationPercent float64
	QueueUtilizationPercent  float64
	CPUUtilizationPercent    float64
	ErrorRatePercent         float64
	LatencyP99Millis         float64
}

// actionState is the set of idempotent actions currently in effect.
// Re-entering the same level reapplies the same values rather than
// stacking (last-writer-wins, never cumulative).
type actionState struct {
	sampleRate       float64
	batchMultiplier  int
	scrapeMultiplier int
	dropDebug        bool
	dropMetrics      bool
}

func restingState() actionState {
	return actionState{sampleRate: 1.0, batchMultiplier: 1, scrapeMultiplier: 1}
}

// Manager tracks the current degradation level and the actions it implies.
type Manager struct {
	cfg     Config
	logger  *zap.Logger
	metrics *Metrics

	level *atomic.Int32

	mu              sync.RWMutex
	actions         actionState
	lastLevelChange time.Time
}

// New creates a Manager at level 0 (normal operation). registry may be nil.
func New(cfg Config, logger *zap.Logger, registry *prometheus.Registry) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:             cfg,
		logger:          logger,
		metrics:         newMetrics(registry),
		level:           atomic.NewInt32(0),
		actions:         restingState(),
		lastLevelChange: time.Now(),
	}
}

// Level returns the current degradation level.
func (m *Manager) Level() int { return int(m.level.Load()) }

// RunPoller samples resource state via sample on each CheckInterval tick
// and reassesses the degradation level, until ctx is canceled.
func (m *Manager) RunPoller(ctx context.Context, sample func() Sample) {
	ticker := time.NewTicker(time.Duration(m.cfg.CheckInterval) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Assess(sample())
		}
	}
}

// Assess recomputes the target degradation level from s and applies it if
// it differs from the current level, subject to the cooldown rule:
// downgrades (lower level) are only honored once CooldownPeriod has
// elapsed since the last change; upgrades apply immediately.
func (m *Manager) Assess(s Sample) {
	m.recordState(s)

	target := m.targetLevel(s)

	m.mu.Lock()
	defer m.mu.Unlock()

	current := int(m.level.Load())
	if target == current {
		return
	}
	if target < current && time.Since(m.lastLevelChange) < time.Duration(m.cfg.CooldownPeriod)*time.Second {
		return
	}
	m.setLevelLocked(target)
}

func (m *Manager) recordState(s Sample) {
	m.metrics.State.WithLabelValues("memory_utilization").Set(s.MemoryUtilizationPercent)
	m.metrics.State.WithLabelValues("queue_utilization").Set(s.QueueUtilizationPercent)
	m.metrics.State.WithLabelValues("cpu_utilization").Set(s.CPUUtilizationPercent)
	m.metrics.State.WithLabelValues("error_rate").Set(s.ErrorRatePercent)
	m.metrics.State.WithLabelValues("latency_p99").Set(s.LatencyP99Millis)
}

// targetLevel maps a sample onto a severity bucket, clamped to the number
// of configured levels (spec.md §4.4's L0-L3 default maps directly onto
// three buckets, but a deployment may configure fewer or more levels).
func (m *Manager) targetLevel(s Sample) int {
	t := m.cfg.Triggers
	triggered := s.MemoryUtilizationPercent >= float64(t.MemoryUtilizationHigh) ||
		s.QueueUtilizationPercent >= float64(t.QueueUtilizationHigh) ||
		s.CPUUtilizationPercent >= float64(t.CPUUtilizationHigh) ||
		s.ErrorRatePercent >= t.ErrorRateHighPercent ||
		s.LatencyP99Millis >= float64(t.LatencyP99HighMillis)

	if !triggered {
		return 0
	}

	bucket := 1
	switch {
	case s.MemoryUtilizationPercent >= 90 || s.QueueUtilizationPercent >= 90:
		bucket = 3
	case s.MemoryUtilizationPercent >= 80 || s.QueueUtilizationPercent >= 80:
		bucket = 2
	}
	if max := len(m.cfg.Levels); bucket > max {
		bucket = max
	}
	return bucket
}

// setLevelLocked applies level's actions. Callers must hold m.mu.
func (m *Manager) setLevelLocked(level int) {
	old := int(m.level.Load())
	m.level.Store(int32(level))
	m.lastLevelChange = time.Now()
	m.metrics.Level.Set(float64(level))

	m.logger.Info("degradation level changed", zap.Int("old_level", old), zap.Int("new_level", level))

	next := restingState()
	if level > 0 && level <= len(m.cfg.Levels) {
		for _, action := range m.cfg.Levels[level-1].Actions {
			applyAction(&next, action)
			m.metrics.Actions.WithLabelValues(action).Inc()
		}
	}
	m.actions = next
}

func applyAction(s *actionState, action string) {
	switch action {
	case "inc_batch":
		s.batchMultiplier = 2
	case "stretch_scrape":
		s.scrapeMultiplier = 2
	case "enable_sampling":
		s.sampleRate = 0.5
	case "drop_debug":
		s.dropDebug = true
	case "drop_metrics":
		s.dropMetrics = true
	}
}

// Actions returns a snapshot of the actions currently in effect.
func (m *Manager) Actions() (sampleRate float64, batchMultiplier, scrapeMultiplier int, dropDebug, dropMetrics bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a := m.actions
	return a.sampleRate, a.batchMultiplier, a.scrapeMultiplier, a.dropDebug, a.dropMetrics
}

// Admit applies the currently active degradation actions to r, reporting
// whether it should continue through the pipeline.
func (m *Manager) Admit(r record.Record) bool {
	if m.Level() == 0 {
		return true
	}

	sampleRate, _, _, dropDebug, dropMetrics := m.Actions()

	if dropMetrics && r.Kind == record.KindMetric {
		m.metrics.Dropped.WithLabelValues(r.Kind.String()).Inc()
		return false
	}
	if dropDebug && r.Debug {
		m.metrics.Dropped.WithLabelValues(r.Kind.String()).Inc()
		return false
	}
	if sampleRate < 1.0 && rand.Float64() > sampleRate {
		m.metrics.Dropped.WithLabelValues(r.Kind.String()).Inc()
		return false
	}
	return true
}
