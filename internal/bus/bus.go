// Package bus implements component A, the event bus adapter: per-topic
// append-only streams with bounded length and consumer-group reads, plus
// a small KV surface, on top of Redis. Grounded on
// stanleykosi-bankai/backend/internal/db/redis.go for connection setup
// and on original_source/services/trading_core/trading_core/executor.py
// and tools/order_submit_bitvavo.py for the exact operation surface
// (xadd, xreadgroup, xack, xgroup_create with BUSYGROUP tolerance,
// hincrbyfloat).
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bitvavo-trading-core/internal/busconfig"
	"bitvavo-trading-core/internal/errs"
)

// Bus wraps a Redis client with the stream/KV operations every component
// needs. It holds no component-specific state.
type Bus struct {
	rdb    *redis.Client
	maxLen int64
}

// Entry is one record read back from a stream.
type Entry struct {
	ID     string
	Fields map[string]string
}

// Connect parses cfg.URL, builds a client, and verifies connectivity with
// a PING — the same shape as ConnectRedis in stanleykosi-bankai.
func Connect(ctx context.Context, cfg busconfig.Config) (*Bus, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("bus: parse url: %w", err)
	}
	if cfg.DialTimeout > 0 {
		opt.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opt.ReadTimeout = cfg.ReadTimeout
	}

	rdb := redis.NewClient(opt)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		return nil, fmt.Errorf("bus: ping: %w", err)
	}

	maxLen := cfg.StreamMaxLen
	if maxLen <= 0 {
		maxLen = 200_000
	}
	return &Bus{rdb: rdb, maxLen: maxLen}, nil
}

// Close releases the underlying connection pool.
func (b *Bus) Close() error { return b.rdb.Close() }

// Raw exposes the underlying redis.Client for components that need a
// driver-level handle — currently only internal/guard, to build a
// redsync connection pool for the per-market exit-guard lease.
func (b *Bus) Raw() *redis.Client { return b.rdb }

// Append writes fields to topic, approximately trimmed to the bus's
// configured max length, and returns the assigned, totally ordered id.
func (b *Bus) Append(ctx context.Context, topic string, fields map[string]interface{}) (string, error) {
	id, err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		MaxLen: b.maxLen,
		Approx: true,
		Values: fields,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("bus: xadd %s: %w", topic, err)
	}
	return id, nil
}

// EnsureGroup creates group on topic starting from the latest id,
// succeeding silently if the group already exists (BUSYGROUP tie-break).
func (b *Bus) EnsureGroup(ctx context.Context, topic, group string) error {
	err := b.rdb.XGroupCreateMkStream(ctx, topic, group, "$").Err()
	if err != nil && !errs.IsBusyGroup(err) {
		return fmt.Errorf("bus: ensure_group %s/%s: %w", topic, group, err)
	}
	return nil
}

// ReadGroup performs a blocking XREADGROUP for consumer within group on
// topic, returning up to maxCount entries not yet delivered to the
// group (the ">" cursor); already-pending entries are not re-read. Callers that see a NOGROUP error should call EnsureGroup and
// retry (self-healing group recreation, grounded on order_submit_bitvavo.py).
func (b *Bus) ReadGroup(ctx context.Context, topic, group, consumer string, maxCount int64, block time.Duration) ([]Entry, error) {
	res, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{topic, ">"},
		Count:    maxCount,
		Block:    block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("bus: xreadgroup %s/%s: %w", topic, group, err)
	}
	if len(res) == 0 {
		return nil, nil
	}

	entries := make([]Entry, 0, len(res[0].Messages))
	for _, msg := range res[0].Messages {
		fields := make(map[string]string, len(msg.Values))
		for k, v := range msg.Values {
			if s, ok := v.(string); ok {
				fields[k] = s
			} else {
				fields[k] = fmt.Sprintf("%v", v)
			}
		}
		entries = append(entries, Entry{ID: msg.ID, Fields: fields})
	}
	return entries, nil
}

// Ack acknowledges id within group on topic.
func (b *Bus) Ack(ctx context.Context, topic, group, id string) error {
	if err := b.rdb.XAck(ctx, topic, group, id).Err(); err != nil {
		return fmt.Errorf("bus: xack %s/%s/%s: %w", topic, group, id, err)
	}
	return nil
}

// Trim approximately trims topic to maxLen.
func (b *Bus) Trim(ctx context.Context, topic string, maxLen int64) error {
	return b.rdb.XTrimMaxLenApprox(ctx, topic, maxLen, 0).Err()
}

// ————————————————————————————————————————————————————————————————————————
// KV operations
// ————————————————————————————————————————————————————————————————————————

func (b *Bus) Get(ctx context.Context, key string) (string, error) {
	v, err := b.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return v, err
}

func (b *Bus) Set(ctx context.Context, key, value string) error {
	return b.rdb.Set(ctx, key, value, 0).Err()
}

// SetEx sets key to value with a fixed expiry — the virtual position
// blob's 7-day retention in order_guard_virtual.py's _write_virt.
func (b *Bus) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	return b.rdb.Set(ctx, key, value, ttl).Err()
}

// SetNX sets key to value with ttl only if absent. The exit guard's
// lease does not use it; it runs redsync on the client from Raw.
func (b *Bus) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return b.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (b *Bus) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return b.rdb.Expire(ctx, key, ttl).Err()
}

func (b *Bus) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	return b.rdb.HSet(ctx, key, values).Err()
}

func (b *Bus) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return b.rdb.HGetAll(ctx, key).Result()
}

// HIncrByFloat atomically bumps field within the hash at key — used by
// the trading core to update exposure/position counters.
func (b *Bus) HIncrByFloat(ctx context.Context, key, field string, delta float64) (float64, error) {
	return b.rdb.HIncrByFloat(ctx, key, field, delta).Result()
}

func (b *Bus) HLen(ctx context.Context, key string) (int64, error) {
	return b.rdb.HLen(ctx, key).Result()
}

func (b *Bus) Delete(ctx context.Context, keys ...string) error {
	return b.rdb.Del(ctx, keys...).Err()
}

func (b *Bus) SAdd(ctx context.Context, key string, members ...interface{}) error {
	return b.rdb.SAdd(ctx, key, members...).Err()
}

func (b *Bus) SMembers(ctx context.Context, key string) ([]string, error) {
	return b.rdb.SMembers(ctx, key).Result()
}

func (b *Bus) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return b.rdb.LRange(ctx, key, start, stop).Result()
}

func (b *Bus) RPush(ctx context.Context, key string, values ...interface{}) error {
	return b.rdb.RPush(ctx, key, values...).Err()
}

func (b *Bus) Pipeline() redis.Pipeliner {
	return b.rdb.Pipeline()
}

// Scan iterates keys matching pattern, grounded on guard_reconciler.py's
// scan_iter usage pattern (bounded count per call, cursor-driven).
func (b *Bus) Scan(ctx context.Context, pattern string, count int64) ([]string, error) {
	var keys []string
	iter := b.rdb.Scan(ctx, 0, pattern, count).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}
