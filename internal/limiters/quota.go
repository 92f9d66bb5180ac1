package limiters

import (
	"context"
	"time"

	"github.com/MrEthical07/otpauth/internal/rate"
)

type QuotaConfig struct {
	Prefix string
	Limit  int
	Window time.Duration
}

// QuotaLimiter caps how many times one subject may perform an action per
// window. Rejected attempts are not counted.
type QuotaLimiter struct {
	limiter *rate.Limiter
	config  QuotaConfig
}

func NewQuotaLimiter(limiter *rate.Limiter, cfg QuotaConfig) *QuotaLimiter {
	return &QuotaLimiter{limiter: limiter, config: cfg}
}

func (q *QuotaLimiter) Reserve(ctx context.Context, subject string) rate.Result {
	if q == nil || q.limiter == nil {
		return rate.Result{Allowed: true}
	}
	return q.limiter.Reserve(ctx, q.key(subject), q.config.Limit, q.config.Window)
}

func (q *QuotaLimiter) Reset(ctx context.Context, subject string) error {
	if q == nil || q.limiter == nil {
		return nil
	}
	return q.limiter.Reset(ctx, q.key(subject))
}

func (q *QuotaLimiter) Limit() int {
	if q == nil {
		return 0
	}
	return q.config.Limit
}

func (q *QuotaLimiter) key(subject string) string {
	return q.config.Prefix + ":" + subject
}

// Cooldown enforces a minimum spacing between two actions of one subject.
type Cooldown struct {
	limiter *rate.Limiter
	prefix  string
	ttl     time.Duration
}

func NewCooldown(limiter *rate.Limiter, prefix string, ttl time.Duration) *Cooldown {
	return &Cooldown{limiter: limiter, prefix: prefix, ttl: ttl}
}

// Acquire takes the hold. When it is already taken, it returns false and the
// time left on the hold.
func (c *Cooldown) Acquire(ctx context.Context, subject string) (bool, time.Duration) {
	if c == nil || c.limiter == nil || c.ttl <= 0 {
		return true, 0
	}
	return c.limiter.Acquire(ctx, c.prefix+":"+subject, c.ttl)
}

// Release drops the hold so the next Acquire succeeds.
func (c *Cooldown) Release(ctx context.Context, subject string) error {
	if c == nil || c.limiter == nil || c.ttl <= 0 {
		return nil
	}
	return c.limiter.Reset(ctx, c.prefix+":"+subject)
}

// Start (re)starts the hold regardless of its current state.
func (c *Cooldown) Start(ctx context.Context, subject string) error {
	if c == nil || c.limiter == nil || c.ttl <= 0 {
		return nil
	}
	return c.limiter.Hold(ctx, c.prefix+":"+subject, c.ttl)
}
