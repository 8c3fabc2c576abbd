package priorityqueue

import (
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// newBreaker builds the gobreaker.CircuitBreaker gating sends to the
// downstream exporter. MaxRequests: 1 means the first call after the open
// timeout elapses is the sole half-open probe (spec.md §9's Open Question
// about the teacher's breaker having no half-open limit at all is resolved
// by this choice: exactly one probe decides whether the circuit re-closes).
//
// ReadyToTrip requires both a minimum sample size and an error-fraction
// threshold (spec.md §4.2: "≥ 10 outcomes have accumulated and the error
// fraction ≥ error_threshold_pct"), not a raw consecutive-failure count --
// nine failures followed by one success must stay closed (B4).
func newBreaker(cfg Config, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "priorityqueue.downstream",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     time.Duration(cfg.CircuitBreakerResetTimeout) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			errorFraction := float64(counts.TotalFailures) / float64(counts.Requests) * 100
			return errorFraction >= float64(cfg.CircuitBreakerErrorThreshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}
