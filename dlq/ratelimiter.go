package dlq

import (
	"context"

	"golang.org/x/time/rate"
)

// byteLimiter throttles replay throughput by byte count, replacing the
// teacher's hand-rolled RateLimiter (storage.go's bytesConsumed/lastTime
// bookkeeping and manual sleep calculation) with golang.org/x/time/rate's
// token bucket.
type byteLimiter struct {
	limiter *rate.Limiter
}

func newByteLimiter(bytesPerSecond float64) *byteLimiter {
	burst := int(bytesPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &byteLimiter{limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), burst)}
}

// wait blocks until n bytes' worth of tokens are available or ctx is done.
// A record larger than the bucket's burst size is drained in chunks rather
// than rejected outright.
func (b *byteLimiter) wait(ctx context.Context, n int) error {
	burst := b.limiter.Burst()
	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}
		if err := b.limiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
