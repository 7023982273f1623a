// Package guard implements component F: the per-market exit guard. One
// Runner owns exactly one market's virtual position, renews a
// distributed lease so at most one guard process runs per market,
// places/refreshes a take-profit limit order, and watches for the
// hard-stop-loss or trailing-stop trigger to flatten the position with
// a market sell.
//
// Grounded on original_source/tools/order_guard_virtual.py (VIRTKEY
// shape, LOCK_KEY semantics, tp_px/hard_sl/trail_sl formulas, the
// TP-cancel-then-market-sell sequence, the post-trigger cooldown to
// avoid double-fires), with the hand-rolled SETNX+EXPIRE lock upgraded
// to github.com/go-redsync/redsync/v4 — the pack's dedicated
// distributed-lock library — for correct lease renewal semantics
// (the Python's plain SETNX has no safe extend-if-still-owner path).
package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	goredis "github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// DefaultLeaseTTL mirrors order_guard_virtual.py's LOCK_TTL_SEC.
const DefaultLeaseTTL = 10 * time.Second

// Lease is the per-market exit-guard singleton lock.
type Lease struct {
	mutex *redsync.Mutex
}

// NewLease builds a redsync-backed lease named lock:guard:<market>.
func NewLease(rdb *redis.Client, market string, ttl time.Duration) *Lease {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	pool := goredis.NewPool(rdb)
	rs := redsync.New(pool)
	mutex := rs.NewMutex(
		fmt.Sprintf("lock:guard:%s", market),
		redsync.WithExpiry(ttl),
		redsync.WithTries(1),
	)
	return &Lease{mutex: mutex}
}

// Acquire attempts to take the lease once, returning false (not an
// error) if another instance already holds it — order_guard_virtual.py
// treats "lock exists" as a clean, logged exit rather than a failure.
func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	if err := l.mutex.TryLockContext(ctx); err != nil {
		if err == redsync.ErrFailed {
			return false, nil
		}
		return false, fmt.Errorf("guard: acquire lease: %w", err)
	}
	return true, nil
}

// Renew extends the lease; callers renew at roughly half the TTL, as
// the Python original does with last_lock/LOCK_TTL_SEC/2.
func (l *Lease) Renew(ctx context.Context) error {
	ok, err := l.mutex.ExtendContext(ctx)
	if err != nil {
		return fmt.Errorf("guard: renew lease: %w", err)
	}
	if !ok {
		return fmt.Errorf("guard: renew lease: not extended")
	}
	return nil
}

// Release gives up the lease, best-effort.
func (l *Lease) Release(ctx context.Context) {
	_, _ = l.mutex.UnlockContext(ctx)
}
