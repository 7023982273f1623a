package exchangeclient

import (
	"context"
	"testing"
	"time"
)

func TestWeightBucketAllowsWithinCapacity(t *testing.T) {
	b := newWeightBucket(10, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := b.Take(ctx, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.Take(ctx, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWeightBucketBlocksUntilRefill(t *testing.T) {
	b := newWeightBucket(1, 100*time.Millisecond)
	ctx := context.Background()

	if err := b.Take(ctx, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	start := time.Now()
	if err := b.Take(ctx, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Fatalf("expected Take to wait for refill")
	}
}

func TestWeightBucketRespectsCancellation(t *testing.T) {
	b := newWeightBucket(1, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := b.Take(ctx, 1); err != nil {
		t.Fatalf("unexpected error on first take: %v", err)
	}
	if err := b.Take(ctx, 1); err == nil {
		t.Fatalf("expected context deadline error")
	}
}
