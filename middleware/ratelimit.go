package middleware

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	otpauth "github.com/MrEthical07/otpauth"
)

// RateChecker counts requests against the endpoint sliding window.
// *otpauth.Engine satisfies it.
type RateChecker interface {
	CheckRateLimit(ctx context.Context, identity, role, endpoint string) (otpauth.RateLimitResult, error)
}

// RateLimit counts each request against endpoint. Authenticated callers
// are keyed by user id and role; everyone else by client IP as guest.
// Requests over the ceiling get 429 with Retry-After. Checker errors other
// than a rejection let the request through.
func RateLimit(rc RateChecker, endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rc == nil {
				next.ServeHTTP(w, r)
				return
			}

			identity, role := ClientIP(r), string(otpauth.RoleGuest)
			if claims, ok := ClaimsFromContext(r.Context()); ok && claims.Subject != "" {
				identity, role = claims.Subject, claims.Role
			}
			if identity == "" {
				next.ServeHTTP(w, r)
				return
			}

			res, err := rc.CheckRateLimit(r.Context(), identity, role, endpoint)
			writeRateHeaders(w, res)
			if err != nil {
				var authErr *otpauth.Error
				if errors.As(err, &authErr) && authErr.Kind == otpauth.KindRateLimit {
					w.Header().Set("Retry-After", RetryAfterSeconds(authErr.RetryAfter))
					http.Error(w, authErr.Message, http.StatusTooManyRequests)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeRateHeaders(w http.ResponseWriter, res otpauth.RateLimitResult) {
	if res.Limit <= 0 {
		return
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(max(res.Remaining, 0)))
	if !res.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
	}
}

// RetryAfterSeconds formats d as a Retry-After value, rounding up and
// never below one second.
func RetryAfterSeconds(d time.Duration) string {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
