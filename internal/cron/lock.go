package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 5 * time.Minute

// Locks hands out a lease per job name so replicas never run the same sweep
// at once while different sweeps still proceed in parallel workers.
type Locks interface {
	Acquire(ctx context.Context, job string) (release func(context.Context) error, ok bool, err error)
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error)
	CronLockKey(name string) string
}

// RedisLocks leases cron jobs with SET NX PX and releases them with a
// compare-and-delete script.
type RedisLocks struct {
	store lockStore
	ttl   time.Duration
}

func NewRedisLocks(store lockStore, ttl time.Duration) (*RedisLocks, error) {
	if store == nil {
		return nil, errors.New("redis client required for cron locks")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocks{store: store, ttl: ttl}, nil
}

func (l *RedisLocks) Acquire(ctx context.Context, job string) (func(context.Context) error, bool, error) {
	key := l.store.CronLockKey(job)
	owner := uuid.NewString()
	ok, err := l.store.SetNX(ctx, key, owner, l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("setnx %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		if _, err := l.store.ReleaseIfOwner(ctx, key, owner); err != nil {
			return fmt.Errorf("release %s: %w", key, err)
		}
		return nil
	}
	return release, true, nil
}

// LocalLocks serializes jobs inside one process. Used when redis is not
// configured and in tests.
type LocalLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLocks() *LocalLocks {
	return &LocalLocks{held: map[string]bool{}}
}

func (l *LocalLocks) Acquire(_ context.Context, job string) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[job] {
		return nil, false, nil
	}
	l.held[job] = true
	return func(context.Context) error {
		l.mu.Lock()
		delete(l.held, job)
		l.mu.Unlock()
		return nil
	}, true, nil
}
