package priorityqueue

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nr-labs/nrdot-core/record"
)

type recordingSpill struct {
	mu   sync.Mutex
	recs []record.Record
}

func (s *recordingSpill) Spill(_ context.Context, r record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, r)
	return nil
}

func (s *recordingSpill) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

func mk(class record.Class) record.Record {
	return record.Record{Kind: record.KindMetric, Class: class}
}

func TestQueue_WRRSchedulingRespectsWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = map[string]int{"critical": 5, "high": 3, "normal": 1}
	cfg.CircuitBreakerEnabled = false
	require.NoError(t, cfg.Validate())

	q := New(cfg, nil, &recordingSpill{}, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.True(t, q.Enqueue(ctx, mk(record.ClassCritical)))
	}
	for i := 0; i < 3; i++ {
		assert.True(t, q.Enqueue(ctx, mk(record.ClassHigh)))
	}
	assert.True(t, q.Enqueue(ctx, mk(record.ClassNormal)))

	var got []record.Class
	for i := 0; i < 9; i++ {
		r, ok := q.Dequeue()
		require.True(t, ok)
		got = append(got, r.Class)
	}

	counts := map[record.Class]int{}
	for _, c := range got {
		counts[c]++
	}
	assert.Equal(t, 5, counts[record.ClassCritical])
	assert.Equal(t, 3, counts[record.ClassHigh])
	assert.Equal(t, 1, counts[record.ClassNormal])
}

func TestQueue_SpillsWhenFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSize = 2
	cfg.SpillThresholdPercent = 100
	cfg.CircuitBreakerEnabled = false
	require.NoError(t, cfg.Validate())

	spill := &recordingSpill{}
	q := New(cfg, nil, spill, nil)
	ctx := context.Background()

	assert.True(t, q.Enqueue(ctx, mk(record.ClassNormal)))
	assert.True(t, q.Enqueue(ctx, mk(record.ClassNormal)))
	assert.False(t, q.Enqueue(ctx, mk(record.ClassNormal)))
	assert.Equal(t, 1, spill.count())
}

func TestQueue_SpillThresholdIsClassDifferentiated(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSize = 100
	cfg.SpillThresholdPercent = 95
	cfg.HighSpillThresholdPercent = 99
	cfg.CircuitBreakerEnabled = false
	require.NoError(t, cfg.Validate())

	spill := &recordingSpill{}
	q := New(cfg, nil, spill, nil)
	ctx := context.Background()

	for i := 0; i < 95; i++ {
		assert.True(t, q.Enqueue(ctx, mk(record.ClassCritical)))
	}
	assert.Equal(t, 95, q.Size())

	// Normal diverts at 95%: the queue is already at the threshold.
	assert.False(t, q.Enqueue(ctx, mk(record.ClassNormal)))
	assert.Equal(t, 1, spill.count())

	// High tolerates up to the higher 99% threshold.
	assert.True(t, q.Enqueue(ctx, mk(record.ClassHigh)))
	assert.Equal(t, 1, spill.count())
}

func TestQueue_CriticalOnlySpillsWhenAbsolutelyFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSize = 10
	cfg.SpillThresholdPercent = 50
	cfg.HighSpillThresholdPercent = 70
	cfg.CircuitBreakerEnabled = false
	require.NoError(t, cfg.Validate())

	spill := &recordingSpill{}
	q := New(cfg, nil, spill, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		assert.True(t, q.Enqueue(ctx, mk(record.ClassCritical)))
	}
	assert.Equal(t, 0, spill.count())

	assert.False(t, q.Enqueue(ctx, mk(record.ClassCritical)))
	assert.Equal(t, 1, spill.count())
}

func TestQueue_DequeueEmptyReturnsFalse(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	q := New(cfg, nil, &recordingSpill{}, nil)
	_, ok := q.Dequeue()
	assert.False(t, ok)
}

func TestQueue_RunSpillsOnSendFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CircuitBreakerEnabled = false
	require.NoError(t, cfg.Validate())

	spill := &recordingSpill{}
	q := New(cfg, nil, spill, nil)
	ctx, cancel := context.WithCancel(context.Background())

	q.Enqueue(ctx, mk(record.ClassNormal))

	done := make(chan struct{})
	go func() {
		q.Run(ctx, func(context.Context, record.Record) error {
			cancel()
			return errors.New("boom")
		})
		close(done)
	}()
	<-done
	assert.Equal(t, 1, spill.count())
}
