// Package priorityqueue implements the weighted round-robin, multi-class
// queue sitting between ingress admission and the downstream exporter
// (spec.md §4.2).
package priorityqueue

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/nr-labs/nrdot-core/record"
)

// classOrder is the fixed precedence used both for WRR round resets and as
// the fallback pick when the class chosen by the WRR schedule has an empty
// lane.
var classOrder = []record.Class{record.ClassCritical, record.ClassHigh, record.ClassNormal}

// SpillHandler receives records the queue cannot admit, whether because it
// is full or because its circuit breaker is open.
type SpillHandler interface {
	Spill(ctx context.Context, r record.Record) error
}

// Queue is a bounded, class-partitioned FIFO scheduled by weighted
// round-robin, guarding its downstream send behind a circuit breaker.
type Queue struct {
	cfg     Config
	logger  *zap.Logger
	spill   SpillHandler
	breaker *gobreaker.CircuitBreaker
	metrics *Metrics

	mu      sync.Mutex
	lanes   map[record.Class][]record.Record
	weights map[record.Class]int
	used    map[record.Class]int
}

// New creates a Queue. registry may be nil.
func New(cfg Config, logger *zap.Logger, spill SpillHandler, registry *prometheus.Registry) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	weights := make(map[record.Class]int, 3)
	for name, w := range cfg.Weights {
		weights[record.ParseClass(name)] = w
	}

	q := &Queue{
		cfg:     cfg,
		logger:  logger,
		spill:   spill,
		breaker: newBreaker(cfg, logger),
		metrics: newMetrics(registry),
		lanes: map[record.Class][]record.Record{
			record.ClassCritical: nil,
			record.ClassHigh:     nil,
			record.ClassNormal:   nil,
		},
		weights: weights,
		used:    make(map[record.Class]int, 3),
	}
	return q
}

// sizeLocked returns the total queued item count. Callers must hold q.mu.
func (q *Queue) sizeLocked() int {
	n := 0
	for _, lane := range q.lanes {
		n += len(lane)
	}
	return n
}

// Enqueue admits r into its class's lane. If the queue is at or above the
// spill threshold that applies to r's class, or the circuit breaker is
// open, r is handed to the SpillHandler instead and Enqueue returns false.
func (q *Queue) Enqueue(ctx context.Context, r record.Record) bool {
	if q.cfg.CircuitBreakerEnabled && q.breaker.State() == gobreaker.StateOpen {
		q.spillOne(ctx, r)
		return false
	}

	q.mu.Lock()
	full := q.fullForClassLocked(r.Class, q.sizeLocked())
	if !full {
		q.lanes[r.Class] = append(q.lanes[r.Class], r)
	}
	size := q.sizeLocked()
	q.mu.Unlock()

	if full {
		q.spillOne(ctx, r)
		return false
	}

	q.metrics.setSize(size)
	return true
}

// fullForClassLocked reports whether size has reached the spill threshold
// that applies to class (spec.md §4.2's class-differentiated spill
// policy): Normal diverts at SpillThresholdPercent (default 95%), High
// only above the higher HighSpillThresholdPercent (default 99%), Critical
// only once the queue is completely full. Callers must hold q.mu.
func (q *Queue) fullForClassLocked(class record.Class, size int) bool {
	switch class {
	case record.ClassCritical:
		return size >= q.cfg.MaxSize
	case record.ClassHigh:
		return size >= q.cfg.MaxSize*q.cfg.HighSpillThresholdPercent/100
	default:
		return size >= q.cfg.MaxSize*q.cfg.SpillThresholdPercent/100
	}
}

func (q *Queue) spillOne(ctx context.Context, r record.Record) {
	q.metrics.incSpilled(r.Class.String())
	if q.spill == nil {
		return
	}
	if err := q.spill.Spill(ctx, r); err != nil {
		q.logger.Error("failed to spill record to dlq", zap.Error(err))
	}
}

// Dequeue removes and returns the next record chosen by WRR scheduling.
// The second return value is false if every lane is empty.
func (q *Queue) Dequeue() (record.Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.sizeLocked() == 0 {
		return record.Record{}, false
	}

	class := q.selectNextPriorityLocked()
	if lane := q.lanes[class]; len(lane) > 0 {
		r := lane[0]
		q.lanes[class] = lane[1:]
		q.metrics.setSize(q.sizeLocked())
		q.metrics.incProcessed(class.String())
		return r, true
	}

	// The selected class is empty this round; fall back to the highest
	// priority non-empty lane rather than stalling the round.
	for _, c := range classOrder {
		if lane := q.lanes[c]; len(lane) > 0 {
			r := lane[0]
			q.lanes[c] = lane[1:]
			q.metrics.setSize(q.sizeLocked())
			q.metrics.incProcessed(c.String())
			return r, true
		}
	}
	return record.Record{}, false
}

// selectNextPriorityLocked picks the next class per the WRR schedule.
// Callers must hold q.mu.
func (q *Queue) selectNextPriorityLocked() record.Class {
	roundExhausted := true
	for _, c := range classOrder {
		if q.used[c] < q.weights[c] {
			roundExhausted = false
			break
		}
	}
	if roundExhausted {
		for _, c := range classOrder {
			q.used[c] = 0
		}
	}

	for _, c := range classOrder {
		if q.weights[c] > 0 && q.used[c] < q.weights[c] {
			q.used[c]++
			return c
		}
	}

	// Every weight is zero: default to the highest priority class.
	q.used[record.ClassCritical]++
	return record.ClassCritical
}

// Size returns the total number of queued items across all classes.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sizeLocked()
}

// Send is a downstream publish function the queue's drain loop calls
// through the circuit breaker.
type Send func(ctx context.Context, r record.Record) error

// Run drains the queue via WRR scheduling and forwards each record to send,
// gated by the circuit breaker, until ctx is canceled. It is meant to run
// in its own goroutine.
func (q *Queue) Run(ctx context.Context, send Send) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r, ok := q.Dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}

		if !q.cfg.CircuitBreakerEnabled {
			if err := send(ctx, r); err != nil {
				q.logger.Error("send failed with circuit breaker disabled", zap.Error(err))
				q.spillOne(ctx, r)
			}
			continue
		}

		_, err := q.breaker.Execute(func() (interface{}, error) {
			return nil, send(ctx, r)
		})
		if err != nil {
			q.logger.Warn("send failed", zap.Error(err), zap.String("class", r.Class.String()))
			q.spillOne(ctx, r)
		}
	}
}

// BreakerState reports the current circuit breaker state for observability.
func (q *Queue) BreakerState() gobreaker.State {
	return q.breaker.State()
}
