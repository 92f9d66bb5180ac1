package otpauth

import (
	"context"
	"strings"
	"time"

	"github.com/MrEthical07/otpauth/internal/autherr"
)

// Validate verifies signature, expiry and type of token and checks the
// revocation registry on every call.
func (e *Engine) Validate(ctx context.Context, token string, expected TokenType) (*Claims, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}()
	}
	return e.flow.Validate(ctx, token, expected)
}

// ValidateAccess is Validate for access tokens.
func (e *Engine) ValidateAccess(ctx context.Context, token string) (*Claims, error) {
	return e.Validate(ctx, token, TokenAccess)
}

// RevokeToken blacklists token's JTI until the token would have expired.
// Either token type is accepted.
func (e *Engine) RevokeToken(ctx context.Context, token, reason string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flow.RevokeToken(ctx, token, reason)
}

// CheckRateLimit counts one request of identity against the ceiling for
// (role, endpoint). When Redis is unreachable the request is admitted and
// FailOpen is set.
func (e *Engine) CheckRateLimit(ctx context.Context, identity, role, endpoint string) (RateLimitResult, error) {
	if !e.ready() {
		return RateLimitResult{}, ErrEngineNotReady
	}
	identity, endpoint = strings.TrimSpace(identity), strings.TrimSpace(endpoint)
	if identity == "" || endpoint == "" {
		return RateLimitResult{}, autherr.Validation("invalid_rate_limit_key", "identity and endpoint are required")
	}
	if role == "" {
		role = string(RoleGuest)
	}
	if e.endpoints == nil {
		return RateLimitResult{Allowed: true}, nil
	}

	res := e.endpoints.Check(ctx, identity, role, endpoint)
	out := RateLimitResult{
		Allowed:   res.Allowed,
		Limit:     res.Limit,
		Remaining: res.Remaining,
		ResetAt:   res.ResetAt,
		FailOpen:  res.FailOpen,
	}
	if res.Allowed {
		return out, nil
	}

	e.metricInc(MetricRateLimitHit)
	retry := res.ResetAt.Sub(e.now())
	return out, autherr.RateLimited("rate_limited", "too many requests, try again later", retry, autherr.ErrRateLimited)
}
