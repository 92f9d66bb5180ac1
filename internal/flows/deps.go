package flows

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/otpauth/internal/async"
	"github.com/MrEthical07/otpauth/internal/autherr"
	"github.com/MrEthical07/otpauth/internal/limiters"
	"github.com/MrEthical07/otpauth/internal/otp"
	"github.com/MrEthical07/otpauth/jwt"
	"github.com/MrEthical07/otpauth/notify"
	"github.com/MrEthical07/otpauth/store"
)

// PasswordHasher is the subset of password.Argon2 the flows need.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	VerifyDummy(password string)
}

// Metrics carries metric IDs used by flows. Zero IDs are valid and simply
// count into slot zero, so the root engine always fills every field.
type Metrics struct {
	LoginStep1Success    int
	LoginStep1Failure    int
	LoginStep2Success    int
	LoginStep2Failure    int
	OTPIssued            int
	OTPBlocked           int
	OTPRequestLimited    int
	OTPResend            int
	RefreshSuccess       int
	RefreshFailure       int
	LogoutSuccess        int
	LogoutFailure        int
	LogoutCascade        int
	LogoutCascadeFailure int
	SessionCreated       int
	SessionInvalidated   int
	ValidateSuccess      int
	ValidateFailure      int
	TokenRevoked         int
	RateLimitHit         int
	Registration         int
	EmailVerified        int
	VerificationResend   int
	NotificationDropped  int
}

// Events carries audit event names used by flows.
type Events struct {
	LoginStep1Success  string
	LoginStep1Failure  string
	LoginStep2Success  string
	LoginStep2Failure  string
	OTPResend          string
	RefreshSuccess     string
	RefreshFailure     string
	Logout             string
	LogoutCascade      string
	SessionInvalidated string
	SessionsCleared    string
	TokenRevoked       string
	RateLimited        string
	Registration       string
	EmailVerified      string
	VerificationResend string
}

// AuditRecord is the flow-local audit shape. The engine adds timestamp, ip
// and user agent before dispatch.
type AuditRecord struct {
	Event     string
	UserID    string
	SessionID string
	Success   bool
	Err       error
	Metadata  map[string]string
}

// Endpoint names used as the last segment of endpoint rate-limit keys.
const (
	EndpointLogin              = "login"
	EndpointLoginVerify        = "login_verify"
	EndpointOTPResend          = "otp_resend"
	EndpointRegister           = "register"
	EndpointVerificationResend = "verification_resend"

	RoleGuest = "guest"
)

// Deps is built once by the root engine and shared by every flow.
type Deps struct {
	Store     store.Store
	OTP       *otp.Manager
	Tokens    *jwt.Manager
	Passwords PasswordHasher
	Notifier  notify.Notifier

	Endpoints         *limiters.EndpointLimiter
	OTPQuota          *limiters.QuotaLimiter
	OTPCooldown       *limiters.Cooldown
	VerificationQuota *limiters.QuotaLimiter

	// Background runs notifications and the logout cascade.
	Background *async.Runner

	Logger *zap.Logger
	Now    func() time.Time

	SessionTTL      time.Duration
	VerificationTTL time.Duration
	StoreTimeout    time.Duration
	CascadeLogout   bool
	DefaultRole     store.Role

	ClientIP  func(context.Context) string
	UserAgent func(context.Context) string

	MetricInc func(int)
	EmitAudit func(context.Context, AuditRecord)

	Metrics Metrics
	Events  Events
}

func normalizeDeps(deps *Deps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, AuditRecord) {}
	}
	if deps.ClientIP == nil {
		deps.ClientIP = func(context.Context) string { return "" }
	}
	if deps.UserAgent == nil {
		deps.UserAgent = func(context.Context) string { return "" }
	}
	if deps.DefaultRole == "" {
		deps.DefaultRole = store.RoleCustomer
	}
}

// storeCtx bounds one store interaction with the configured timeout.
func (d *Deps) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.StoreTimeout)
}

// internalError logs cause with op and returns the client-safe error.
func (d *Deps) internalError(op string, cause error, fields ...zap.Field) error {
	d.Logger.Error(op+" failed", append(fields, zap.Error(cause))...)
	return autherr.Internal(cause)
}

// gate applies the endpoint sliding window before any other work.
func (d *Deps) gate(ctx context.Context, identity, role, endpoint string) error {
	if d.Endpoints == nil {
		return nil
	}
	if ip := d.ClientIP(ctx); ip != "" {
		identity = ip
	}
	res := d.Endpoints.Check(ctx, identity, role, endpoint)
	if res.Allowed {
		return nil
	}

	d.MetricInc(d.Metrics.RateLimitHit)
	d.EmitAudit(ctx, AuditRecord{
		Event:    d.Events.RateLimited,
		Err:      autherr.ErrRateLimited,
		Metadata: map[string]string{"endpoint": endpoint, "role": role},
	})
	retry := res.ResetAt.Sub(d.Now())
	return autherr.RateLimited("rate_limited", "too many requests, try again later", retry, autherr.ErrRateLimited)
}

// notifyAsync schedules a notification on the background runner. A full
// queue drops the message and counts it.
func (d *Deps) notifyAsync(name string, fn func(ctx context.Context, n notify.Notifier) error) {
	if d.Notifier == nil {
		return
	}
	n := d.Notifier
	if d.Background == nil {
		if err := fn(context.Background(), n); err != nil {
			d.Logger.Error("notification failed", zap.String("task", name), zap.Error(err))
		}
		return
	}
	if !d.Background.Submit(name, func(ctx context.Context) error { return fn(ctx, n) }) {
		d.MetricInc(d.Metrics.NotificationDropped)
	}
}

func recipient(u *store.User) notify.Recipient {
	return notify.Recipient{UserID: u.ID, Email: u.Email, Name: u.Name}
}
