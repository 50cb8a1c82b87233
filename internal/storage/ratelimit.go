package storage

import (
	"context"
	_ "embed"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

//go:embed ratelimit.lua
var rateLimitLua string

var rateLimitScript = redis.NewScript(rateLimitLua)

const rateLimitKeyPrefix = "ratelimit:"

type rateLimitParams struct {
	window time.Duration // ARGV[1]: sliding window size in milliseconds
	limit  int           // ARGV[2]: max requests allowed in window
	ttl    time.Duration // ARGV[3]: key expiration in seconds
	now    time.Time     // ARGV[4]: request time in milliseconds
}

func (p rateLimitParams) args() []any {
	return []any{
		p.window.Milliseconds(),
		p.limit,
		int(math.Ceil(p.ttl.Seconds())),
		p.now.UnixMilli(),
		uuid.NewString(),
	}
}

func runRateLimitScript(ctx context.Context, client *redis.Client, key string, params rateLimitParams) (bool, error) {
	result, err := rateLimitScript.Run(ctx, client,
		[]string{key},
		params.args()...,
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to run rate limit script: %w", err)
	}
	return result == 1, nil
}

var _ RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter shares a sliding window across every replica pointed at the same Redis.
type RedisRateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (RateLimitResult, error) {
	params := rateLimitParams{
		window: r.window,
		limit:  r.limit,
		ttl:    r.window + time.Second,
		now:    r.now(),
	}

	allowed, err := runRateLimitScript(ctx, r.client, rateLimitKeyPrefix+key, params)
	if err != nil {
		return RateLimitResult{}, err
	}

	return RateLimitResult{
		Allowed:    allowed,
		RetryAfter: r.window,
	}, nil
}

var _ RateLimiter = (*MemoryRateLimiter)(nil)

// MemoryRateLimiter keeps one token bucket per key.
type MemoryRateLimiter struct {
	limiters  map[string]*rate.Limiter
	limiterMu sync.RWMutex
	rateLimit rate.Limit
	rateBurst int
}

func NewMemoryRateLimiter(ratePerSec float64, burst int) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		limiters:  make(map[string]*rate.Limiter),
		rateLimit: rate.Limit(ratePerSec),
		rateBurst: burst,
	}
}

func (m *MemoryRateLimiter) Allow(_ context.Context, key string) (RateLimitResult, error) {
	limiter := m.limiter(key)
	if limiter.Allow() {
		return RateLimitResult{Allowed: true}, nil
	}

	return RateLimitResult{
		Allowed:    false,
		RetryAfter: m.retryAfter(),
	}, nil
}

func (m *MemoryRateLimiter) limiter(key string) *rate.Limiter {
	m.limiterMu.RLock()
	limiter, exists := m.limiters[key]
	m.limiterMu.RUnlock()

	if exists {
		return limiter
	}

	m.limiterMu.Lock()
	defer m.limiterMu.Unlock()

	limiter, exists = m.limiters[key]
	if exists {
		return limiter
	}

	limiter = rate.NewLimiter(m.rateLimit, m.rateBurst)
	m.limiters[key] = limiter
	return limiter
}

func (m *MemoryRateLimiter) retryAfter() time.Duration {
	if m.rateLimit <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / float64(m.rateLimit))
}
