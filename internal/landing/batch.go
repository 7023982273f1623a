package landing

import (
	"sync"
	"time"
)

// BatchConfig controls when an accumulating Batcher flushes to the sink.
type BatchConfig struct {
	MaxRows  int
	MaxAge   time.Duration
}

// DefaultBatchConfig flushes every 500 rows or 5 seconds, whichever
// comes first — a landing-zone cadence, not a realtime one.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{MaxRows: 500, MaxAge: 5 * time.Second}
}

// Batcher accumulates rows for one (event, market) pair and flushes
// them to a Sink once MaxRows is reached or MaxAge has elapsed since
// the oldest buffered row.
type Batcher struct {
	mu      sync.Mutex
	sink    *Sink
	cfg     BatchConfig
	event   string
	market  string
	rows    []interface{}
	opened  time.Time
}

// NewBatcher builds a Batcher writing event/market batches to sink.
func NewBatcher(sink *Sink, event, market string, cfg BatchConfig) *Batcher {
	return &Batcher{sink: sink, cfg: cfg, event: event, market: market}
}

// Add appends row to the pending batch, flushing first if MaxRows or
// MaxAge has already been exceeded.
func (b *Batcher) Add(row interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.rows) > 0 && (len(b.rows) >= b.cfg.MaxRows || time.Since(b.opened) >= b.cfg.MaxAge) {
		if err := b.flushLocked(); err != nil {
			return err
		}
	}

	if len(b.rows) == 0 {
		b.opened = time.Now()
	}
	b.rows = append(b.rows, row)

	if len(b.rows) >= b.cfg.MaxRows {
		return b.flushLocked()
	}
	return nil
}

// FlushIfDue flushes the pending batch if MaxAge has elapsed, even if
// MaxRows hasn't been reached — called on a timer by the ingest loop
// so low-volume markets still land promptly.
func (b *Batcher) FlushIfDue() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.rows) == 0 || time.Since(b.opened) < b.cfg.MaxAge {
		return nil
	}
	return b.flushLocked()
}

// Flush writes any pending rows unconditionally, used on shutdown.
func (b *Batcher) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

func (b *Batcher) flushLocked() error {
	if len(b.rows) == 0 {
		return nil
	}
	rows := b.rows
	b.rows = nil
	return b.sink.Write(b.event, b.market, rows)
}
