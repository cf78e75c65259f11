package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"memoir-platform/pkg/logger"
	"memoir-platform/pkg/utils"
)

// Locker serializes work on one trial across webhook handlers and scheduler sweeps.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// RedisLocker is a lease lock shared by every process of the deployment. The
// lease is renewed while held, so a slow send never lets a second holder in.
type RedisLocker struct {
	lease lease
	ttl   time.Duration
	poll  time.Duration
}

type lease interface {
	acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	release(ctx context.Context, key, token string) error
}

type redisLease struct{ rdb *redis.Client }

// acquire also refreshes the TTL when token already holds key.
func (r redisLease) acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return utils.TryLock(ctx, r.rdb, key, token, ttl)
}

func (r redisLease) release(ctx context.Context, key, token string) error {
	return utils.Unlock(ctx, r.rdb, key, token)
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{lease: redisLease{rdb: rdb}, ttl: ttl, poll: 50 * time.Millisecond}
}

// Lock blocks until the lease is taken or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	key = "trial-lock:" + key
	token := uuid.NewString()
	for {
		ok, err := l.lease.acquire(ctx, key, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return l.hold(ctx, key, token), nil
		}
		t := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// hold renews the lease every third of its TTL until the returned unlock runs.
func (l *RedisLocker) hold(ctx context.Context, key, token string) func() {
	// The caller's ctx may be canceled before unlock; neither renewal nor release may stop early.
	ctx = context.WithoutCancel(ctx)
	renewCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		tick := time.NewTicker(l.ttl / 3)
		defer tick.Stop()
		for {
			select {
			case <-renewCtx.Done():
				return
			case <-tick.C:
				ok, err := l.lease.acquire(renewCtx, key, token, l.ttl)
				if renewCtx.Err() != nil {
					return
				}
				if err != nil || !ok {
					logger.From(ctx).Warn("trial lock lease lost", "key", key, "err", err)
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			<-done
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			_ = l.lease.release(ctx, key, token)
		})
	}
}

// LocalLocker serializes per key inside one process.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localEntry
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localEntry)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() { once.Do(func() { l.release(key, e, true) }) }, nil
}

func (l *LocalLocker) release(key string, e *localEntry, held bool) {
	if held {
		<-e.ch
	}
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}
