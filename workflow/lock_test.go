package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLocalLockerSerializesPerKey(t *testing.T) {
	l := NewLocalLocker(time.Second)
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(ctx, "certification:c1", func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			if err != nil {
				t.Errorf("with lock: %v", err)
			}
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("max holders = %d, want 1", maxInside)
	}
	if len(l.slots) != 0 {
		t.Fatalf("slots leaked: %d", len(l.slots))
	}
}

func TestLocalLockerTimeoutAndCancel(t *testing.T) {
	l := NewLocalLocker(20 * time.Millisecond)
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = l.WithLock(context.Background(), "k", func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	if err := l.WithLock(context.Background(), "k", func(ctx context.Context) error { return nil }); !errors.Is(err, ErrLockNotObtained) {
		t.Fatalf("expected ErrLockNotObtained, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.WithLock(ctx, "k", func(ctx context.Context) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := l.WithLock(context.Background(), "other", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("unrelated key blocked: %v", err)
	}
	close(release)
}

func TestKeepAliveRefreshesUntilStopped(t *testing.T) {
	var calls int32
	ctx, stop := keepAlive(context.Background(), 5*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&calls) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("refresh called %d times, want at least 3", atomic.LoadInt32(&calls))
		}
		time.Sleep(time.Millisecond)
	}
	if ctx.Err() != nil {
		t.Fatalf("context cancelled while refresh succeeds: %v", ctx.Err())
	}
	stop()
	after := atomic.LoadInt32(&calls)
	time.Sleep(20 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != after {
		t.Fatalf("refresh ran after stop: %d -> %d", after, got)
	}
}

func TestKeepAliveCancelsWhenRefreshFails(t *testing.T) {
	ctx, stop := keepAlive(context.Background(), 5*time.Millisecond, func(ctx context.Context) error {
		return errors.New("redislock: lock not held")
	})
	defer stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("context not cancelled after failed refresh")
	}
	if !errors.Is(context.Cause(ctx), ErrLockLost) {
		t.Fatalf("cause = %v, want ErrLockLost", context.Cause(ctx))
	}
}

func TestWithLocksHoldsEveryKey(t *testing.T) {
	l := NewLocalLocker(20 * time.Millisecond)
	keys := []string{"request:r1:VEGAN", "request:r1:HALAL"}
	err := withLocks(context.Background(), l, keys, func(ctx context.Context) error {
		for _, k := range keys {
			if err := l.WithLock(context.Background(), k, func(ctx context.Context) error { return nil }); !errors.Is(err, ErrLockNotObtained) {
				t.Errorf("key %s not held: %v", k, err)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("with locks: %v", err)
	}
	if len(l.slots) != 0 {
		t.Fatalf("slots leaked: %d", len(l.slots))
	}
}
