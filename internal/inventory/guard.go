package inventory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost-backend/pkg/logger"
)

// Guard fast-fails contention on a resource before a transaction opens. The
// database row lock stays authoritative; a guard only sheds losers early.
type Guard interface {
	Acquire(ctx context.Context, resource string, id uuid.UUID) (release func(), err error)
}

// NopGuard always grants the guard.
type NopGuard struct{}

func (NopGuard) Acquire(context.Context, string, uuid.UUID) (func(), error) {
	return func() {}, nil
}

// MemoryGuard serializes decisions per key within one process.
type MemoryGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
	rec  conflictRecorder
}

func NewMemoryGuard(metrics conflictRecorder) *MemoryGuard {
	return &MemoryGuard{held: map[string]struct{}{}, rec: metrics}
}

func (g *MemoryGuard) Acquire(_ context.Context, resource string, id uuid.UUID) (func(), error) {
	key := resource + ":" + id.String()

	g.mu.Lock()
	if _, busy := g.held[key]; busy {
		g.mu.Unlock()
		if g.rec != nil {
			g.rec.IncLockConflict(resource)
		}
		return nil, ConflictError(resource)
	}
	g.held[key] = struct{}{}
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, nil
}

type guardStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error)
	GuardKey(resource, id string) string
}

// RedisGuard shares the guard across API replicas with SETNX plus an owner
// token. Keys expire after ttl so a crashed holder never wedges a listing.
type RedisGuard struct {
	store guardStore
	ttl   time.Duration
	rec   conflictRecorder
	logg  *logger.Logger
}

func NewRedisGuard(store guardStore, ttl time.Duration, metrics conflictRecorder, logg *logger.Logger) *RedisGuard {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &RedisGuard{store: store, ttl: ttl, rec: metrics, logg: logg}
}

func (g *RedisGuard) Acquire(ctx context.Context, resource string, id uuid.UUID) (func(), error) {
	key := g.store.GuardKey(resource, id.String())
	owner := uuid.NewString()

	ok, err := g.store.SetNX(ctx, key, owner, g.ttl)
	if err != nil {
		// Redis outage degrades to row locks only.
		g.logg.Warn(g.logg.WithFields(ctx, map[string]any{"guard_key": key, "error": err.Error()}), "redis guard unavailable")
		return func() {}, nil
	}
	if !ok {
		if g.rec != nil {
			g.rec.IncLockConflict(resource)
		}
		return nil, ConflictError(resource)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if _, err := g.store.ReleaseIfOwner(releaseCtx, key, owner); err != nil {
				g.logg.Warn(g.logg.WithField(ctx, "guard_key", key), "redis guard release failed")
			}
		})
	}, nil
}
