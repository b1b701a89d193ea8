package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/persona-backend/internal/platform/logger"
)

// Guard marks an assessment as being analyzed so a concurrent duplicate
// submission can be answered with "processing" instead of a second run.
type Guard interface {
	// Acquire returns false when key is already held.
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

const keyPrefix = "persona:inflight:"

type redisGuard struct {
	rdb *goredis.Client
	ttl time.Duration
	log *logger.Logger
}

// NewRedisGuard connects to addr and verifies it with a ping.
func NewRedisGuard(addr string, ttl time.Duration, log *logger.Logger) (Guard, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisGuardWithClient(rdb, ttl, log), nil
}

func NewRedisGuardWithClient(rdb *goredis.Client, ttl time.Duration, log *logger.Logger) Guard {
	return &redisGuard{rdb: rdb, ttl: ttl, log: log.With("service", "RedisInflightGuard")}
}

func (g *redisGuard) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, keyPrefix+key, time.Now().UTC().Format(time.RFC3339Nano), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (g *redisGuard) Release(ctx context.Context, key string) error {
	if err := g.rdb.Del(ctx, keyPrefix+key).Err(); err != nil {
		g.log.Warn("inflight release failed", "key", key, "error", err)
		return err
	}
	return nil
}

func (g *redisGuard) Close() error { return g.rdb.Close() }

// memoryGuard is the single-process guard used when Redis is not configured.
type memoryGuard struct {
	mu   sync.Mutex
	held map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryGuard(ttl time.Duration) Guard {
	return &memoryGuard{held: map[string]time.Time{}, ttl: ttl, now: time.Now}
}

func (g *memoryGuard) Acquire(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if exp, ok := g.held[key]; ok && (g.ttl <= 0 || now.Before(exp)) {
		return false, nil
	}
	g.held[key] = now.Add(g.ttl)
	return true, nil
}

func (g *memoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, key)
	return nil
}
