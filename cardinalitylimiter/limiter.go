// Package cardinalitylimiter implements entropy-ranked admission of unique
// attribute key-sets into a bounded table (spec.md §4.1).
package cardinalitylimiter

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nr-labs/nrdot-core/record"
)

// Decision is the outcome of Admit.
type Decision uint8

const (
	Keep Decision = iota
	Aggregate
	Drop
)

func (d Decision) String() string {
	switch d {
	case Keep:
		return "keep"
	case Aggregate:
		return "aggregate"
	case Drop:
		return "drop"
	default:
		return "unknown"
	}
}

// Tier thresholds from spec.md §4.1.
const (
	dropThreshold      = 0.75
	aggregateThreshold = 0.90
)

// tableEntry is the internal representation of a KeySetEntry plus the
// attribute set it was computed from (needed to reconstruct an aggregated
// key-set and for tie-break comparisons).
type tableEntry struct {
	attrs        record.AttributeSet
	lastSeenNano int64
	accessCount  int64
	entropyScore float64
}

// Limiter maintains the bounded key-set table and decides admit/drop/
// aggregate for each incoming record. Admit is O(1) expected time while the
// table has room or the key-set is already present; once the table is
// full, a key-set that scores into the aggregate or evict tier makes Admit
// scan the whole table for an eviction victim (O(n) in the table size).
// No operation has a suspension point (spec.md §5).
type Limiter struct {
	cfg     Config
	logger  *zap.Logger
	entropy *entropyCalculator

	mu    sync.Mutex
	table map[string]*tableEntry

	metrics *Metrics
}

// New creates a Limiter. registry may be nil, in which case metrics are
// tracked internally but not exported.
func New(cfg Config, logger *zap.Logger, registry *prometheus.Registry) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		cfg:     cfg,
		logger:  logger,
		entropy: newEntropyCalculator(),
		table:   make(map[string]*tableEntry, cfg.MaxUniqueKeySets),
		metrics: newMetrics(registry),
	}
}

// Admit decides whether to keep, aggregate, or drop the record's key-set.
// On Aggregate, the returned AttributeSet is the reduced key-set that was
// (or would be) admitted in place of the original.
func (l *Limiter) Admit(r record.Record) (Decision, record.AttributeSet) {
	if l.cfg.MetricsOnly && r.Kind != record.KindMetric {
		return Keep, r.Attributes
	}

	now := time.Now().UnixNano()
	key := r.Attributes.CanonicalKey()

	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.table[key]; ok {
		e.lastSeenNano = now
		e.accessCount++
		l.entropy.observe(r.Attributes)
		l.metrics.setTableSize(len(l.table))
		return Keep, r.Attributes
	}

	score := l.entropy.score(r.Attributes)
	l.entropy.observe(r.Attributes)

	if len(l.table) < l.cfg.MaxUniqueKeySets {
		l.table[key] = &tableEntry{attrs: r.Attributes, lastSeenNano: now, accessCount: 1, entropyScore: score}
		l.metrics.setTableSize(len(l.table))
		return Keep, r.Attributes
	}

	// Table is full: apply the three-tier policy.
	switch {
	case score < dropThreshold:
		l.metrics.incDropped()
		return Drop, nil

	case score < aggregateThreshold:
		reduced := l.aggregate(r.Attributes)
		reducedKey := reduced.CanonicalKey()
		if e, ok := l.table[reducedKey]; ok {
			e.lastSeenNano = now
			e.accessCount++
			l.metrics.incAggregated()
			return Aggregate, reduced
		}
		if l.insertEvictingLowest(reducedKey, reduced, now, score) {
			l.metrics.incAggregated()
			l.metrics.setTableSize(len(l.table))
			return Aggregate, reduced
		}
		l.metrics.incDropped()
		return Drop, nil

	default: // score >= aggregateThreshold
		if l.insertEvictingLowest(key, r.Attributes, now, score) {
			l.metrics.setTableSize(len(l.table))
			return Keep, r.Attributes
		}
		l.metrics.incDropped()
		return Drop, nil
	}
}

// insertEvictingLowest evicts the lowest-scoring existing entry (tie-break:
// lower access_count, then older last_seen) and admits the new key-set in
// its place. Returns false (no insertion performed) if no existing entry
// has a strictly lower score than the incoming one.
func (l *Limiter) insertEvictingLowest(key string, attrs record.AttributeSet, now int64, score float64) bool {
	var victimKey string
	var victim *tableEntry

	for k, e := range l.table {
		if victim == nil || lowerPriority(e, victim) {
			victimKey, victim = k, e
		}
	}

	if victim == nil || victim.entropyScore >= score {
		return false
	}

	delete(l.table, victimKey)
	l.table[key] = &tableEntry{attrs: attrs, lastSeenNano: now, accessCount: 1, entropyScore: score}
	return true
}

// lowerPriority reports whether candidate should be evicted before current,
// per spec.md §4.1 tie-break: lower entropy score, then lower access_count,
// then older last_seen.
func lowerPriority(candidate, current *tableEntry) bool {
	if candidate.entropyScore != current.entropyScore {
		return candidate.entropyScore < current.entropyScore
	}
	if candidate.accessCount != current.accessCount {
		return candidate.accessCount < current.accessCount
	}
	return candidate.lastSeenNano < current.lastSeenNano
}

// aggregate reduces a key-set by retaining the configured aggregation
// dimensions and collapsing every other attribute to a short prefix plus a
// wildcard marker (spec.md §4.1, superseding the teacher demo's five-char
// truncation per spec.md §9's Open Question).
func (l *Limiter) aggregate(attrs record.AttributeSet) record.AttributeSet {
	keep := make(map[string]bool, len(l.cfg.AggregationDimensions))
	for _, d := range l.cfg.AggregationDimensions {
		keep[d] = true
	}

	reduced := make(record.AttributeSet, len(attrs))
	for name, val := range attrs {
		if keep[name] {
			reduced[name] = val
			continue
		}
		reduced[name] = record.StringAttr(collapseValue(val.String()))
	}
	return reduced
}

const aggregationPrefixLen = 5

// collapseValue truncates a high-cardinality textual value to a short
// prefix and appends a wildcard marker.
func collapseValue(v string) string {
	if len(v) <= aggregationPrefixLen {
		return v + "*"
	}
	return v[:aggregationPrefixLen] + "*"
}

// TableSize returns the current number of admitted unique key-sets.
func (l *Limiter) TableSize() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.table)
}
