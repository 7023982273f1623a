package exchangeclient

import (
	"context"
	"sync"
	"time"
)

// weightBucket is a token bucket over Bitvavo's rolling rate-limit
// weight budget (1000 points / minute by default), ported from the
// original ratelimit.go's refill-on-access design — no background
// goroutine, the bucket tops up lazily whenever Take is called.
type weightBucket struct {
	mu       sync.Mutex
	capacity float64
	tokens   float64
	refillPerSec float64
	last     time.Time
}

func newWeightBucket(capacity float64, window time.Duration) *weightBucket {
	return &weightBucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPerSec: capacity / window.Seconds(),
		last:         time.Now(),
	}
}

// Take blocks until weight tokens are available or ctx is cancelled.
func (b *weightBucket) Take(ctx context.Context, weight float64) error {
	for {
		b.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(b.last).Seconds()
		if elapsed > 0 {
			b.tokens += elapsed * b.refillPerSec
			if b.tokens > b.capacity {
				b.tokens = b.capacity
			}
			b.last = now
		}
		if b.tokens >= weight {
			b.tokens -= weight
			b.mu.Unlock()
			return nil
		}
		deficit := weight - b.tokens
		wait := time.Duration(deficit/b.refillPerSec*1000) * time.Millisecond
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
