// Package ratelimiter implements a token bucket shared by every worker through
// Redis, so the generative provider sees one budget no matter how many
// consumers run.
package ratelimiter

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

// Limiter decides whether cost tokens may be spent from the bucket at key.
type Limiter interface {
	Allow(ctx context.Context, key string, cost int64) (allowed bool, retryAfter time.Duration, err error)
}

// BucketConfig sizes one bucket.
type BucketConfig struct {
	Capacity   int64
	RefillRate float64 // tokens per second
}

// NewBucketConfigFromPerMinute returns a bucket that allows perMinute requests per minute
// with a burst of the same size. Non-positive values disable limiting.
func NewBucketConfigFromPerMinute(perMinute int) BucketConfig {
	if perMinute <= 0 {
		return BucketConfig{}
	}
	return BucketConfig{Capacity: int64(perMinute), RefillRate: float64(perMinute) / 60.0}
}

// BucketStore persists bucket snapshots so a Redis flush does not hand out a
// fresh burst. Satisfied by *pgxpool.Pool.
type BucketStore interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// RedisLuaLimiter evaluates the bucket atomically inside Redis.
type RedisLuaLimiter struct {
	redis   *redis.Client
	store   BucketStore
	buckets map[string]BucketConfig
	script  *redis.Script
	mu      sync.RWMutex
}

// NewRedisLuaLimiter returns nil when rdb is nil; a nil limiter allows everything.
func NewRedisLuaLimiter(rdb *redis.Client, store BucketStore, buckets map[string]BucketConfig) *RedisLuaLimiter {
	if rdb == nil {
		return nil
	}
	if buckets == nil {
		buckets = map[string]BucketConfig{}
	}
	return &RedisLuaLimiter{
		redis:   rdb,
		store:   store,
		buckets: buckets,
		script:  redis.NewScript(tokenBucketScript),
	}
}

const tokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local tokens = capacity
local last_refill = now

local data = redis.call("HMGET", key, "tokens", "last_refill")
if data[1] then
  tokens = tonumber(data[1])
end
if data[2] then
  last_refill = tonumber(data[2])
end

local delta = math.max(0, now - last_refill)
tokens = math.min(capacity, tokens + delta * refill_rate)

local allowed = 0
local retry_after = 0
if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
elseif refill_rate > 0 then
  retry_after = (cost - tokens) / refill_rate
end

redis.call("HSET", key, "tokens", tostring(tokens), "last_refill", tostring(now))
redis.call("EXPIRE", key, math.ceil(capacity / refill_rate) + 60)

return { allowed, tostring(tokens), tostring(now), tostring(retry_after) }
`

func redisKey(key string) string { return "rate:" + key }

// Allow spends cost tokens from key's bucket. Unknown keys and Redis failures
// fail open; the provider's own 429 handling still applies.
func (l *RedisLuaLimiter) Allow(ctx context.Context, key string, cost int64) (bool, time.Duration, error) {
	if l == nil || l.redis == nil {
		return true, 0, nil
	}
	l.mu.RLock()
	cfg, ok := l.buckets[key]
	l.mu.RUnlock()
	if !ok || cfg.Capacity <= 0 || cfg.RefillRate <= 0 {
		return true, 0, nil
	}
	if cost <= 0 {
		cost = 1
	}

	nowSec := float64(time.Now().UnixNano()) / 1e9
	res, err := l.script.Run(ctx, l.redis, []string{redisKey(key)}, cfg.Capacity, cfg.RefillRate, nowSec, cost).Result()
	if err != nil {
		slog.Error("redis rate limiter script error", slog.String("key", key), slog.Any("error", err))
		return true, 0, fmt.Errorf("op=ratelimiter.Allow: %w", err)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 4 {
		slog.Error("redis rate limiter unexpected script result", slog.String("key", key), slog.Any("result", res))
		return true, 0, nil
	}

	allowed := toInt64(vals[0]) == 1
	tokens := toFloat64(vals[1])
	lastRefill := toFloat64(vals[2])
	retryAfter := time.Duration(toFloat64(vals[3]) * float64(time.Second))

	if l.store != nil {
		l.snapshot(ctx, key, cfg, tokens, lastRefill)
	}
	return allowed, retryAfter, nil
}

func (l *RedisLuaLimiter) snapshot(ctx context.Context, key string, cfg BucketConfig, tokens, lastRefillSec float64) {
	if math.IsNaN(tokens) || math.IsNaN(lastRefillSec) {
		return
	}
	_, err := l.store.Exec(ctx,
		`INSERT INTO rate_limit_buckets (bucket_key, capacity, refill_rate, tokens, last_refill)
		 VALUES ($1, $2, $3, $4, to_timestamp($5))
		 ON CONFLICT (bucket_key) DO UPDATE SET
		   capacity = EXCLUDED.capacity,
		   refill_rate = EXCLUDED.refill_rate,
		   tokens = EXCLUDED.tokens,
		   last_refill = EXCLUDED.last_refill`,
		key, cfg.Capacity, cfg.RefillRate, tokens, lastRefillSec,
	)
	if err != nil {
		slog.Error("failed to snapshot rate limit bucket", slog.String("key", key), slog.Any("error", err))
	}
}

// WarmFromStore loads persisted buckets into Redis. Call once at worker start.
func (l *RedisLuaLimiter) WarmFromStore(ctx context.Context) error {
	if l == nil || l.store == nil || l.redis == nil {
		return nil
	}
	rows, err := l.store.Query(ctx, `SELECT bucket_key, tokens, EXTRACT(EPOCH FROM last_refill)::float8 FROM rate_limit_buckets`)
	if err != nil {
		return fmt.Errorf("op=ratelimiter.WarmFromStore: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var tokens, lastRefill float64
		if err := rows.Scan(&key, &tokens, &lastRefill); err != nil {
			return fmt.Errorf("op=ratelimiter.WarmFromStore: %w", err)
		}
		if err := l.redis.HSet(ctx, redisKey(key), "tokens", tokens, "last_refill", lastRefill).Err(); err != nil {
			slog.Error("failed to warm redis bucket", slog.String("key", key), slog.Any("error", err))
		}
	}
	return rows.Err()
}

// SetBucketConfig adds or replaces a bucket. Safe for concurrent use.
func (l *RedisLuaLimiter) SetBucketConfig(key string, cfg BucketConfig) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buckets == nil {
		l.buckets = map[string]BucketConfig{}
	}
	l.buckets[key] = cfg
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func toFloat64(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}
