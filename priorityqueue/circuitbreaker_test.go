package priorityqueue

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nr-labs/nrdot-core/record"
)

func runOutcomes(t *testing.T, q *Queue, failures, successes int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < failures; i++ {
		q.breaker.Execute(func() (interface{}, error) { return nil, errors.New("boom") })
	}
	for i := 0; i < successes; i++ {
		q.breaker.Execute(func() (interface{}, error) { return nil, nil })
	}
	_ = ctx
}

func TestBreaker_NineFailuresOneSuccessStaysClosed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CircuitBreakerErrorThreshold = 50
	require.NoError(t, cfg.Validate())

	q := New(cfg, nil, &recordingSpill{}, nil)
	runOutcomes(t, q, 9, 1)

	assert.Equal(t, gobreaker.StateClosed, q.BreakerState())
}

func TestBreaker_TenFailuresOutOfTenOpens(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CircuitBreakerErrorThreshold = 50
	require.NoError(t, cfg.Validate())

	q := New(cfg, nil, &recordingSpill{}, nil)
	runOutcomes(t, q, 10, 0)

	assert.Equal(t, gobreaker.StateOpen, q.BreakerState())
}

func TestBreaker_FewerThanTenOutcomesNeverTrips(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CircuitBreakerErrorThreshold = 50
	require.NoError(t, cfg.Validate())

	q := New(cfg, nil, &recordingSpill{}, nil)
	runOutcomes(t, q, 9, 0)

	assert.Equal(t, gobreaker.StateClosed, q.BreakerState())
}

func TestQueue_EnqueueSpillsWhileBreakerOpen(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CircuitBreakerErrorThreshold = 50
	require.NoError(t, cfg.Validate())

	spill := &recordingSpill{}
	q := New(cfg, nil, spill, nil)
	runOutcomes(t, q, 10, 0)
	require.Equal(t, gobreaker.StateOpen, q.BreakerState())

	assert.False(t, q.Enqueue(context.Background(), mk(record.ClassNormal)))
	assert.Equal(t, 1, spill.count())
}
