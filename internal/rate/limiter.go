package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// slidingWindowScript trims entries at or before now-window, counts what is
// left, and inserts now when admitted (or always, when ARGV[6] is 1).
// Returns {allowed, count, reset_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]
local ttl = tonumber(ARGV[5])
local record_rejected = tonumber(ARGV[6])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  allowed = 1
end
if allowed == 1 or record_rejected == 1 then
  redis.call('ZADD', key, now, member)
  count = count + 1
  redis.call('PEXPIRE', key, ttl)
end

local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {allowed, count, reset}
`)

// Config holds limiter tuning parameters.
type Config struct {
	// Buffer is added to the window when setting the key TTL.
	Buffer time.Duration
	// Timeout bounds every Redis round trip. Exceeding it fails open.
	Timeout time.Duration
	// Now supplies the clock used for window scores.
	Now func() time.Time
	// OnFailOpen is invoked once per check that failed open.
	OnFailOpen func(key string)
}

// Result is the outcome of one window check.
type Result struct {
	Allowed   bool
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
	FailOpen  bool
}

// Limiter implements sliding-window quotas and single-holder cooldowns on
// Redis. Counters live only in Redis so every instance sees the same window.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
	logger *zap.Logger
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config, logger *zap.Logger) *Limiter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
		logger: logger,
	}
}

// Allow counts the request against key whether or not it is admitted.
// Repeated rejected calls therefore keep the window full.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) Result {
	return l.check(ctx, key, limit, window, true)
}

// Reserve counts the request only when it is admitted. Used for per-user
// quotas where a rejected request must not extend the lockout.
func (l *Limiter) Reserve(ctx context.Context, key string, limit int, window time.Duration) Result {
	return l.check(ctx, key, limit, window, false)
}

func (l *Limiter) check(ctx context.Context, key string, limit int, window time.Duration, recordRejected bool) Result {
	now := l.config.Now()
	nowMs := now.UnixMilli()

	if limit <= 0 {
		return Result{Allowed: false, Limit: limit, ResetAt: now.Add(window)}
	}

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	record := 0
	if recordRejected {
		record = 1
	}
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())

	vals, err := slidingWindowScript.Run(ctx, l.redis, []string{key},
		nowMs,
		window.Milliseconds(),
		limit,
		member,
		(window + l.config.Buffer).Milliseconds(),
		record,
	).Int64Slice()
	if err == nil && len(vals) != 3 {
		err = fmt.Errorf("unexpected script reply length %d", len(vals))
	}
	if err != nil {
		return l.failOpen(key, limit, now, window, err)
	}

	res := Result{
		Allowed: vals[0] == 1,
		Count:   int(vals[1]),
		Limit:   limit,
		ResetAt: time.UnixMilli(vals[2]),
	}
	if remaining := limit - res.Count; remaining > 0 {
		res.Remaining = remaining
	}
	if !res.Allowed {
		l.logger.Debug("rate limit exceeded",
			zap.String("key", key),
			zap.Int("limit", limit),
			zap.Int("count", res.Count),
			zap.Time("reset_at", res.ResetAt),
		)
	}
	return res
}

func (l *Limiter) failOpen(key string, limit int, now time.Time, window time.Duration, err error) Result {
	l.logger.Warn("rate limiter degraded: failing open",
		zap.String("key", key),
		zap.Error(fmt.Errorf("%w: %v", ErrRedisUnavailable, err)),
	)
	if l.config.OnFailOpen != nil {
		l.config.OnFailOpen(key)
	}
	return Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit,
		ResetAt:   now.Add(window),
		FailOpen:  true,
	}
}

// Reset clears the window stored at key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	if err := l.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Acquire takes a single-holder cooldown at key for ttl. When the key is
// already held it returns false and the remaining hold time. Redis failures
// fail open.
func (l *Limiter) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, time.Duration) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	ok, err := l.redis.SetNX(ctx, key, l.config.Now().UnixMilli(), ttl).Result()
	if err != nil {
		l.failOpen(key, 1, l.config.Now(), ttl, err)
		return true, 0
	}
	if ok {
		return true, 0
	}

	remaining, err := l.redis.PTTL(ctx, key).Result()
	if err != nil || remaining < 0 {
		return false, ttl
	}
	return false, remaining
}

// Hold sets the cooldown at key unconditionally.
func (l *Limiter) Hold(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	if err := l.redis.Set(ctx, key, l.config.Now().UnixMilli(), ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (l *Limiter) Ping(ctx context.Context) error {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	if err := l.redis.Ping(ctx).Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: timeout", ErrRedisUnavailable)
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.config.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, l.config.Timeout)
}
