package workflow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"gorm.io/gorm"
)

// ErrLockNotObtained means another operation held the entity for longer than the wait bound.
var ErrLockNotObtained = errors.New("entity is busy, retry later")

// ErrLockLost is the cancel cause handed to fn when a held lock could not be refreshed.
var ErrLockLost = errors.New("lock lost before the operation finished")

// Locker serializes operations on one entity key for the duration of fn.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

func requestLockKey(restaurantId, certType string) string {
	return fmt.Sprintf("request:%s:%s", restaurantId, certType)
}

func certificationLockKey(certificationId string) string {
	return fmt.Sprintf("certification:%s", certificationId)
}

// withLocks nests WithLock over keys in the order given. Callers pass keys in
// a fixed order so two multi-key holders cannot deadlock.
func withLocks(ctx context.Context, locks Locker, keys []string, fn func(ctx context.Context) error) error {
	if len(keys) == 0 {
		return fn(ctx)
	}
	return locks.WithLock(ctx, keys[0], func(ctx context.Context) error {
		return withLocks(ctx, locks, keys[1:], fn)
	})
}

// keepAlive runs refresh every interval until stop is called. A failed
// refresh cancels the returned context with ErrLockLost.
func keepAlive(parent context.Context, interval time.Duration, refresh func(ctx context.Context) error) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	if interval <= 0 {
		return ctx, func() { cancel(nil) }
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				rctx, rcancel := context.WithTimeout(context.Background(), interval)
				err := refresh(rctx)
				rcancel()
				if err != nil {
					cancel(fmt.Errorf("%w: %w", ErrLockLost, err))
					return
				}
			}
		}
	}()
	return ctx, func() {
		close(done)
		wg.Wait()
		cancel(nil)
	}
}

// RedisLocker works across instances through bsm/redislock. The lock is
// refreshed every ttl/3 while fn runs, so a slow ledger round trip does not
// let the key expire under the holder.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
}

func NewRedisLocker(client *redislock.Client, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, wait: wait}
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	const step = 100 * time.Millisecond
	retries := int(l.wait / step)
	lock, err := l.client.Obtain(ctx, "lock:"+key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(step), retries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return ErrLockNotObtained
	}
	if err != nil {
		return fmt.Errorf("obtain lock %s: %w", key, err)
	}
	defer func() {
		// the request context may be gone by now
		_ = lock.Release(context.Background())
	}()
	ctx, stop := keepAlive(ctx, l.ttl/3, func(ctx context.Context) error {
		return lock.Refresh(ctx, l.ttl, nil)
	})
	defer stop()
	return fn(ctx)
}

// AdvisoryLocker uses MySQL GET_LOCK. The lock is connection scoped, so the
// whole of fn runs while one pooled connection is pinned.
type AdvisoryLocker struct {
	db   *gorm.DB
	wait time.Duration
}

func NewAdvisoryLocker(db *gorm.DB, wait time.Duration) *AdvisoryLocker {
	return &AdvisoryLocker{db: db, wait: wait}
}

func (l *AdvisoryLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	seconds := int(math.Ceil(l.wait.Seconds()))
	return l.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		var ok *int
		if err := conn.Raw("SELECT GET_LOCK(?, ?)", key, seconds).Scan(&ok).Error; err != nil {
			return fmt.Errorf("get lock %s: %w", key, err)
		}
		if ok == nil || *ok != 1 {
			return ErrLockNotObtained
		}
		defer func() {
			var released *int
			_ = conn.Session(&gorm.Session{Context: context.Background()}).
				Raw("SELECT RELEASE_LOCK(?)", key).Scan(&released).Error
		}()
		return fn(ctx)
	})
}

// LocalLocker is a keyed mutex for a single process.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
	wait  time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot), wait: wait}
}

func (l *LocalLocker) acquire(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *LocalLocker) release(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *LocalLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	s := l.acquire(key)
	defer l.release(key, s)

	var timeout <-chan time.Time
	if l.wait > 0 {
		timer := time.NewTimer(l.wait)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return ErrLockNotObtained
	}
	defer func() { <-s.ch }()
	return fn(ctx)
}
