package otpauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestValidateRejectsTampering(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "vera@example.com")
	ctx := context.Background()

	res := env.login(t, "vera@example.com")

	tests := []struct {
		name  string
		token string
		typ   TokenType
		want  error
	}{
		{name: "empty", token: "", typ: TokenAccess, want: ErrTokenInvalid},
		{name: "garbage", token: "not.a.jwt", typ: TokenAccess, want: ErrTokenInvalid},
		{name: "truncated signature", token: res.AccessToken[:len(res.AccessToken)-4], typ: TokenAccess, want: ErrTokenInvalid},
		{name: "refresh as access", token: res.RefreshToken, typ: TokenAccess, want: ErrTokenWrongType},
		{name: "access as refresh", token: res.AccessToken, typ: TokenRefresh, want: ErrTokenWrongType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.Validate(ctx, tt.token, tt.typ)
			requireKind(t, err, KindToken)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateRejectsForeignSigner(t *testing.T) {
	env := newTestEnv(t)

	claims := jwt.MapClaims{
		"sub":        "user-x",
		"token_type": "access",
		"jti":        "forged",
		"exp":        env.clock.Now().Add(time.Hour).Unix(),
		"iat":        env.clock.Now().Unix(),
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("another-secret-another-secret-32"))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	_, err = env.engine.ValidateAccess(context.Background(), forged)
	requireKind(t, err, KindToken)
}

func TestValidateExpiredAccessToken(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "walt@example.com")

	res := env.login(t, "walt@example.com")
	env.clock.Advance(15*time.Minute + 2*time.Minute)

	_, err := env.engine.ValidateAccess(context.Background(), res.AccessToken)
	requireKind(t, err, KindToken)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestRevokeTokenIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "xena@example.com")
	ctx := context.Background()

	res := env.login(t, "xena@example.com")
	for i := 0; i < 2; i++ {
		if err := env.engine.RevokeToken(ctx, res.AccessToken, ""); err != nil {
			t.Fatalf("RevokeToken %d failed: %v", i+1, err)
		}
	}

	_, err := env.engine.ValidateAccess(ctx, res.AccessToken)
	requireKind(t, err, KindToken)
	if !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}
	// The refresh token of the same session is untouched.
	if _, err := env.engine.Refresh(ctx, res.RefreshToken); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	err = env.engine.RevokeToken(ctx, "bogus", "")
	requireKind(t, err, KindToken)
}

func TestValidateLatencyHistogram(t *testing.T) {
	env := newTestEnv(t, withConfig(func(cfg *Config) {
		cfg.Metrics.EnableLatencyHistograms = true
	}))
	env.seedUser(t, "yara@example.com")

	res := env.login(t, "yara@example.com")
	if _, err := env.engine.ValidateAccess(context.Background(), res.AccessToken); err != nil {
		t.Fatalf("ValidateAccess failed: %v", err)
	}

	var total uint64
	for _, n := range env.engine.MetricsSnapshot().Histograms[MetricValidateLatency] {
		total += n
	}
	if total != 1 {
		t.Fatalf("expected one latency observation, got %d", total)
	}
}

func TestCheckRateLimitWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	limit := env.engine.Config().RateLimit.RoleLimits["guest"]
	for i := 0; i < limit; i++ {
		res, err := env.engine.CheckRateLimit(ctx, "203.0.113.9", "", "catalog")
		if err != nil {
			t.Fatalf("request %d rejected: %v", i+1, err)
		}
		if res.Remaining != limit-i-1 {
			t.Fatalf("request %d: expected remaining %d, got %d", i+1, limit-i-1, res.Remaining)
		}
	}

	res, err := env.engine.CheckRateLimit(ctx, "203.0.113.9", "", "catalog")
	aerr := requireKind(t, err, KindRateLimit)
	if res.Allowed || res.Remaining != 0 {
		t.Fatalf("unexpected result over limit: %+v", res)
	}
	if aerr.RetryAfter <= 0 {
		t.Fatalf("expected retry hint, got %v", aerr.RetryAfter)
	}
	if env.engine.MetricsSnapshot().Counters[MetricRateLimitHit] != 1 {
		t.Fatal("expected one rate limit hit")
	}

	// Roles have separate ceilings and separate windows.
	if _, err := env.engine.CheckRateLimit(ctx, "203.0.113.9", "seller", "catalog"); err != nil {
		t.Fatalf("seller window rejected: %v", err)
	}

	env.clock.Advance(61 * time.Second)
	if _, err := env.engine.CheckRateLimit(ctx, "203.0.113.9", "", "catalog"); err != nil {
		t.Fatalf("request after window rejected: %v", err)
	}
}

func TestCheckRateLimitValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.CheckRateLimit(context.Background(), "", "guest", "login")
	requireKind(t, err, KindValidation)
	_, err = env.engine.CheckRateLimit(context.Background(), "1.2.3.4", "guest", " ")
	requireKind(t, err, KindValidation)
}

func TestCheckRateLimitDisabled(t *testing.T) {
	env := newTestEnv(t, withConfig(func(cfg *Config) {
		cfg.RateLimit.Enabled = false
	}))

	res, err := env.engine.CheckRateLimit(context.Background(), "1.2.3.4", "guest", "login")
	if err != nil || !res.Allowed {
		t.Fatalf("disabled limiter must admit: %+v %v", res, err)
	}
}

func TestCheckRateLimitFailsOpen(t *testing.T) {
	env := newTestEnv(t)
	env.mr.Close()

	res, err := env.engine.CheckRateLimit(context.Background(), "198.51.100.1", "guest", "login")
	if err != nil {
		t.Fatalf("fail-open must not error: %v", err)
	}
	if !res.Allowed || !res.FailOpen {
		t.Fatalf("expected fail-open admission, got %+v", res)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricRateLimitFailOpen]; got != 1 {
		t.Fatalf("expected 1 fail-open, got %d", got)
	}
	if env.logs.FilterMessage("rate limiter degraded: failing open").Len() != 1 {
		t.Fatal("expected fail-open warning")
	}
}

func TestLoginSurvivesRedisOutage(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "zane@example.com")
	env.mr.Close()

	// Gate, quota and cooldown all fail open.
	env.login(t, "zane@example.com")
	if env.engine.MetricsSnapshot().Counters[MetricRateLimitFailOpen] == 0 {
		t.Fatal("expected fail-open to be counted")
	}
}
