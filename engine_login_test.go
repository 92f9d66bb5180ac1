package otpauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/otpauth/notify"
	"github.com/MrEthical07/otpauth/store"
)

func TestLoginTwoStepSuccess(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "alice@example.com")

	ctx := WithUserAgent(WithClientIP(context.Background(), "10.0.0.1"), "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0)")
	userID, err := env.engine.LoginStep1(ctx, "  Alice@Example.com ", testPassword)
	if err != nil {
		t.Fatalf("LoginStep1 failed: %v", err)
	}
	if userID != user.ID {
		t.Fatalf("expected user id %q, got %q", user.ID, userID)
	}
	code := env.waitForMessage(t, notify.KindOTP, userID, 1).Secret
	if len(code) != 6 {
		t.Fatalf("expected 6 digit code, got %q", code)
	}

	res, err := env.engine.LoginStep2(ctx, userID, code)
	if err != nil {
		t.Fatalf("LoginStep2 failed: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" || res.SessionID == "" {
		t.Fatalf("incomplete login result: %+v", res)
	}
	if res.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Fatalf("expected expires_in 900, got %d", res.ExpiresIn)
	}
	if res.User.ID != user.ID || res.User.LoginCount != 1 || res.User.LastLoginAt == nil {
		t.Fatalf("unexpected user view: %+v", res.User)
	}

	claims, err := env.engine.ValidateAccess(context.Background(), res.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess failed: %v", err)
	}
	if claims.Subject != user.ID || claims.Role != string(store.RoleCustomer) || claims.TokenType != TokenAccess {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	sessions, err := env.engine.ListSessions(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != res.SessionID {
		t.Fatalf("expected the new session, got %+v", sessions)
	}
	if sessions[0].IPAddress != "10.0.0.1" || sessions[0].DeviceName == "" {
		t.Fatalf("session missing client details: %+v", sessions[0])
	}

	stored, err := env.store.Users().FindByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if stored.LoginCount != 1 || stored.OTPBlockedUntil != nil || stored.OTPRequestCount != 0 {
		t.Fatalf("login tracking not persisted: %+v", stored)
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricLoginStep1Success] != 1 || snap.Counters[MetricLoginStep2Success] != 1 {
		t.Fatalf("unexpected login metrics: %+v", snap.Counters)
	}
}

func TestLoginStep1UnknownEmailAndWrongPasswordIdentical(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "bob@example.com")
	ctx := context.Background()

	_, unknownErr := env.engine.LoginStep1(ctx, "nobody@example.com", testPassword)
	_, wrongErr := env.engine.LoginStep1(ctx, "bob@example.com", "wrong-password-123")

	a := requireKind(t, unknownErr, KindAuthentication)
	b := requireKind(t, wrongErr, KindAuthentication)
	if a.Code != b.Code || a.Message != b.Message {
		t.Fatalf("responses differ: %q/%q vs %q/%q", a.Code, a.Message, b.Code, b.Message)
	}
	if !errors.Is(unknownErr, ErrInvalidCredentials) || !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatal("expected both errors to wrap ErrInvalidCredentials")
	}
	if len(env.notes.Messages()) != 0 {
		t.Fatal("no code may be sent on failed credentials")
	}
}

func TestLoginStep1RejectsUnverifiedEmail(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "carol@example.com")
	if err := env.store.Users().Create(context.Background(), &store.User{
		ID:           "unverified",
		Email:        "unverified@example.com",
		PasswordHash: u.PasswordHash,
		Role:         store.RoleCustomer,
		Status:       store.AccountActive,
		EmailStatus:  store.EmailUnverified,
	}); err != nil {
		t.Fatalf("create user failed: %v", err)
	}

	_, err := env.engine.LoginStep1(context.Background(), "unverified@example.com", testPassword)
	requireKind(t, err, KindAuthentication)
	if !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("expected ErrEmailNotVerified, got %v", err)
	}
}

func TestLoginStep1MissingFields(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.LoginStep1(context.Background(), "", "")
	requireKind(t, err, KindValidation)
}

func TestLoginStep2WrongCodesBlockEvenCorrectCode(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "dave@example.com")
	ctx := context.Background()

	userID, code := env.stepOne(t, "dave@example.com")
	bad := wrongCode(code)

	_, err := env.engine.LoginStep2(ctx, userID, bad)
	aerr := requireKind(t, err, KindAuthentication)
	if aerr.AttemptsRemaining != 2 {
		t.Fatalf("expected 2 attempts remaining, got %d", aerr.AttemptsRemaining)
	}
	_, err = env.engine.LoginStep2(ctx, userID, bad)
	if aerr = requireKind(t, err, KindAuthentication); aerr.AttemptsRemaining != 1 {
		t.Fatalf("expected 1 attempt remaining, got %d", aerr.AttemptsRemaining)
	}

	_, err = env.engine.LoginStep2(ctx, userID, bad)
	requireKind(t, err, KindRateLimit)
	if !errors.Is(err, ErrOTPBlocked) {
		t.Fatalf("expected ErrOTPBlocked on third failure, got %v", err)
	}

	_, err = env.engine.LoginStep2(ctx, userID, code)
	aerr = requireKind(t, err, KindRateLimit)
	if aerr.RetryAfter <= 0 || aerr.RetryAfter > 15*time.Minute {
		t.Fatalf("unexpected retry after %v", aerr.RetryAfter)
	}
	if env.engine.MetricsSnapshot().Counters[MetricOTPBlocked] == 0 {
		t.Fatal("expected blocked metric")
	}

	// A blocked code also refuses reissue until the block ends.
	_, err = env.engine.LoginStep1(ctx, "dave@example.com", testPassword)
	requireKind(t, err, KindRateLimit)

	env.clock.Advance(16 * time.Minute)
	env.login(t, "dave@example.com")
}

func TestLoginStep1InvalidatesPreviousCode(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "erin@example.com")
	ctx := context.Background()

	userID, first := env.stepOne(t, "erin@example.com")
	_, second := env.stepOne(t, "erin@example.com")

	if first != second {
		if _, err := env.engine.LoginStep2(ctx, userID, first); err == nil {
			t.Fatal("superseded code must not log in")
		}
	}
	if _, err := env.engine.LoginStep2(ctx, userID, second); err != nil {
		t.Fatalf("latest code rejected: %v", err)
	}
}

func TestLoginStep2ExpiredCode(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "frank@example.com")

	userID, code := env.stepOne(t, "frank@example.com")
	env.clock.Advance(5*time.Minute + time.Second)

	_, err := env.engine.LoginStep2(context.Background(), userID, code)
	requireKind(t, err, KindAuthentication)
	if !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("expected ErrOTPExpired, got %v", err)
	}
}

func TestLoginStep2UnknownUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.LoginStep2(context.Background(), "ghost", "123456")
	requireKind(t, err, KindAuthentication)
	if !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("expected ErrOTPExpired, got %v", err)
	}
}

func TestOTPRequestQuotaPerHour(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "gina@example.com")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := env.engine.LoginStep1(ctx, "gina@example.com", testPassword); err != nil {
			t.Fatalf("request %d failed: %v", i+1, err)
		}
		env.clock.Advance(time.Minute)
	}

	_, err := env.engine.LoginStep1(ctx, "gina@example.com", testPassword)
	requireKind(t, err, KindRateLimit)
	if !errors.Is(err, ErrOTPRequestLimit) {
		t.Fatalf("expected ErrOTPRequestLimit, got %v", err)
	}

	stored, err := env.store.Users().FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if stored.OTPBlockedUntil == nil || stored.OTPRequestCount != 5 {
		t.Fatalf("expected escalation to be persisted, got %+v", stored)
	}

	// The first request was at T0; the window frees one hour after it.
	env.clock.Advance(time.Hour - 5*time.Minute + time.Second)
	if _, err := env.engine.LoginStep1(ctx, "gina@example.com", testPassword); err != nil {
		t.Fatalf("request after the hour failed: %v", err)
	}
}

func TestResendOTPCooldownAndNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "hank@example.com")
	ctx := context.Background()

	userID, first := env.stepOne(t, "hank@example.com")

	err := env.engine.ResendOTP(ctx, userID)
	aerr := requireKind(t, err, KindRateLimit)
	if !errors.Is(err, ErrOTPCooldown) || aerr.RetryAfter <= 0 {
		t.Fatalf("expected cooldown with retry hint, got %v (%v)", err, aerr.RetryAfter)
	}

	env.mr.FastForward(61 * time.Second)
	env.clock.Advance(61 * time.Second)
	if err := env.engine.ResendOTP(ctx, userID); err != nil {
		t.Fatalf("ResendOTP after cooldown failed: %v", err)
	}
	second := env.waitForMessage(t, notify.KindOTP, userID, 2).Secret

	if first != second {
		if _, err := env.engine.LoginStep2(ctx, userID, first); err == nil {
			t.Fatal("resend must invalidate the previous code")
		}
	}
	if _, err := env.engine.LoginStep2(ctx, userID, second); err != nil {
		t.Fatalf("resent code rejected: %v", err)
	}

	err = env.engine.ResendOTP(ctx, "missing-user")
	requireKind(t, err, KindNotFound)
}

func TestRejectedResendDoesNotStartCooldown(t *testing.T) {
	env := newTestEnv(t, withConfig(func(cfg *Config) {
		cfg.OTP.RequestsPerHour = 1
	}))
	env.seedUser(t, "iris@example.com")
	ctx := context.Background()

	userID, _ := env.stepOne(t, "iris@example.com")
	env.mr.FastForward(61 * time.Second)
	env.clock.Advance(61 * time.Second)

	for i := 0; i < 2; i++ {
		err := env.engine.ResendOTP(ctx, userID)
		requireKind(t, err, KindRateLimit)
		if !errors.Is(err, ErrOTPRequestLimit) {
			t.Fatalf("resend %d: expected the hourly limit, got %v", i+1, err)
		}
	}
	if n := env.notes.Count(notify.KindOTP, userID); n != 1 {
		t.Fatalf("expected only the login code to be sent, got %d", n)
	}
}

func TestEndpointRateLimitGatesLogin(t *testing.T) {
	env := newTestEnv(t, withConfig(func(cfg *Config) {
		cfg.RateLimit.EndpointLimits["login"] = 2
	}))
	ctx := WithClientIP(context.Background(), "192.0.2.7")

	for i := 0; i < 2; i++ {
		_, err := env.engine.LoginStep1(ctx, "nobody@example.com", testPassword)
		requireKind(t, err, KindAuthentication)
	}
	_, err := env.engine.LoginStep1(ctx, "nobody@example.com", testPassword)
	requireKind(t, err, KindRateLimit)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// A different client IP has its own window.
	other := WithClientIP(context.Background(), "192.0.2.8")
	_, err = env.engine.LoginStep1(other, "nobody@example.com", testPassword)
	requireKind(t, err, KindAuthentication)
}
