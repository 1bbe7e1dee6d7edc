package platformlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/geosentry/citation-engine/internal/circuitbreaker"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	wrapper := circuitbreaker.NewRedisWrapper(client, zaptest.NewLogger(t))
	return NewRegistry(wrapper, zaptest.NewLogger(t), time.Minute)
}

func TestRegistry_AcquireRelease(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	lease, err := reg.Acquire(ctx, "deepseek")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := lease.Release(ctx); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	// A second acquire after release must succeed immediately.
	lease2, err := reg.Acquire(ctx, "deepseek")
	if err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}
	_ = lease2.Release(ctx)
}

func TestRegistry_AcquireBlocksUntilReleased(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	lease, err := reg.Acquire(ctx, "doubao")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		lease2, err := reg.Acquire(ctx, "doubao")
		if err != nil {
			t.Errorf("blocked Acquire() error = %v", err)
			close(done)
			return
		}
		_ = lease2.Release(ctx)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second Acquire() returned before the first lease was released")
	case <-time.After(300 * time.Millisecond):
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second Acquire() never completed after release")
	}
}

func TestRegistry_AcquireRespectsContextCancellation(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	lease, err := reg.Acquire(ctx, "bocha")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer lease.Release(ctx)

	cancelCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := reg.Acquire(cancelCtx, "bocha"); err == nil {
		t.Fatal("expected Acquire() to fail once the context is cancelled")
	}
}
