// Package ratelimit caps the rate of ingestion actor launches per tenant
// (spec.md §1's "quota caps"), so repeated compile kickoffs cannot
// runaway-launch actors between freshness checks. Backed by Redis when
// configured, falling back to an in-memory limiter otherwise — the same
// nil-means-disabled optional-dependency convention the teacher uses for
// pkg/masking.Service.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter caps the number of actor launches a tenant may perform within a
// fixed window.
type Limiter interface {
	// Allow reports whether tenantID may launch one more actor run this
	// window, incrementing its counter as a side effect.
	Allow(ctx context.Context, tenantID string) (bool, error)
}

// RedisLimiter implements Limiter with a fixed-window counter per tenant,
// using INCR+EXPIRE the way a Redis rate limiter conventionally does.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRedisLimiter constructs a RedisLimiter against redisURL (a
// redis://host:port/db DSN).
func NewRedisLimiter(redisURL string, limit int, window time.Duration) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return &RedisLimiter{client: redis.NewClient(opts), limit: limit, window: window}, nil
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, tenantID string) (bool, error) {
	key := "brandbrain:actor-quota:" + tenantID

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit incr: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, fmt.Errorf("ratelimit expire: %w", err)
		}
	}
	return count <= int64(l.limit), nil
}

// Close releases the underlying Redis connection pool.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

// InMemoryLimiter is the fallback Limiter used when REDIS_URL is unset
// (local/dev/test), matching the teacher's nil-means-disabled convention.
type InMemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string]*tenantWindow
}

type tenantWindow struct {
	count     int
	expiresAt time.Time
}

// NewInMemoryLimiter constructs an InMemoryLimiter.
func NewInMemoryLimiter(limit int, window time.Duration) *InMemoryLimiter {
	return &InMemoryLimiter{limit: limit, window: window, windows: make(map[string]*tenantWindow)}
}

// Allow implements Limiter.
func (l *InMemoryLimiter) Allow(ctx context.Context, tenantID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.windows[tenantID]
	if !ok || now.After(w.expiresAt) {
		w = &tenantWindow{expiresAt: now.Add(l.window)}
		l.windows[tenantID] = w
	}
	w.count++
	return w.count <= l.limit, nil
}
