package limiters

import (
	"context"
	"time"

	"github.com/MrEthical07/otpauth/internal/rate"
)

// EndpointPolicy resolves the ceiling for a (role, endpoint) pair.
// Endpoint ceilings override role ceilings.
type EndpointPolicy struct {
	Window         time.Duration
	DefaultLimit   int
	RoleLimits     map[string]int
	EndpointLimits map[string]int
}

// LimitFor returns the ceiling that applies to role on endpoint.
func (p EndpointPolicy) LimitFor(role, endpoint string) int {
	if limit, ok := p.EndpointLimits[endpoint]; ok {
		return limit
	}
	if limit, ok := p.RoleLimits[role]; ok {
		return limit
	}
	return p.DefaultLimit
}

// EndpointLimiter enforces EndpointPolicy on rate_limit:{identity}:{role}:{endpoint}.
type EndpointLimiter struct {
	limiter *rate.Limiter
	policy  EndpointPolicy
}

func NewEndpointLimiter(limiter *rate.Limiter, policy EndpointPolicy) *EndpointLimiter {
	return &EndpointLimiter{limiter: limiter, policy: policy}
}

// Check records one request and reports whether it is within the ceiling.
func (l *EndpointLimiter) Check(ctx context.Context, identity, role, endpoint string) rate.Result {
	if l == nil || l.limiter == nil {
		return rate.Result{Allowed: true}
	}
	return l.limiter.Allow(ctx, endpointKey(identity, role, endpoint), l.policy.LimitFor(role, endpoint), l.policy.Window)
}

func endpointKey(identity, role, endpoint string) string {
	return "rate_limit:" + identity + ":" + role + ":" + endpoint
}
