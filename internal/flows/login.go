package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/MrEthical07/otpauth/internal"
	"github.com/MrEthical07/otpauth/internal/autherr"
	"github.com/MrEthical07/otpauth/internal/otp"
	"github.com/MrEthical07/otpauth/jwt"
	"github.com/MrEthical07/otpauth/notify"
	"github.com/MrEthical07/otpauth/store"
)

// LoginResult is the flow-local shape of a completed login.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	User         store.User
	ExpiresIn    int64
	SessionID    string
}

// RunLoginStep1 checks credentials and sends a one-time code. It returns
// the user id the client presents again in step 2.
func RunLoginStep1(ctx context.Context, email, password string, deps Deps) (string, error) {
	normalizeDeps(&deps)
	email = NormalizeEmail(email)

	if err := deps.gate(ctx, email, RoleGuest, EndpointLogin); err != nil {
		return "", err
	}
	if email == "" || password == "" {
		return "", autherr.Validation("missing_credentials", "email and password are required")
	}

	user, err := deps.verifyCredentials(ctx, email, password)
	if err != nil {
		deps.MetricInc(deps.Metrics.LoginStep1Failure)
		rec := AuditRecord{Event: deps.Events.LoginStep1Failure, Err: err}
		if user != nil {
			rec.UserID = user.ID
		}
		deps.EmitAudit(ctx, rec)
		return "", err
	}

	if err := deps.reserveOTPRequest(ctx, user, true); err != nil {
		deps.MetricInc(deps.Metrics.LoginStep1Failure)
		deps.EmitAudit(ctx, AuditRecord{Event: deps.Events.LoginStep1Failure, UserID: user.ID, Err: err})
		return "", err
	}

	if err := deps.issueAndSendOTP(ctx, user); err != nil {
		deps.MetricInc(deps.Metrics.LoginStep1Failure)
		deps.EmitAudit(ctx, AuditRecord{Event: deps.Events.LoginStep1Failure, UserID: user.ID, Err: err})
		return "", err
	}
	if err := deps.OTPCooldown.Start(ctx, user.ID); err != nil {
		deps.Logger.Warn("otp cooldown not started", zap.String("user_id", user.ID), zap.Error(err))
	}

	deps.MetricInc(deps.Metrics.LoginStep1Success)
	deps.EmitAudit(ctx, AuditRecord{Event: deps.Events.LoginStep1Success, UserID: user.ID, Success: true})
	return user.ID, nil
}

// RunLoginStep2 verifies the one-time code and opens a session.
func RunLoginStep2(ctx context.Context, userID, code string, deps Deps) (*LoginResult, error) {
	normalizeDeps(&deps)
	userID = strings.TrimSpace(userID)

	if err := deps.gate(ctx, userID, RoleGuest, EndpointLoginVerify); err != nil {
		return nil, err
	}
	if userID == "" || strings.TrimSpace(code) == "" {
		return nil, autherr.Validation("missing_otp", "user id and code are required")
	}

	res, err := deps.runLoginStep2(ctx, userID, code)
	if err != nil {
		deps.MetricInc(deps.Metrics.LoginStep2Failure)
		deps.EmitAudit(ctx, AuditRecord{Event: deps.Events.LoginStep2Failure, UserID: userID, Err: err})
		return nil, err
	}

	deps.MetricInc(deps.Metrics.LoginStep2Success)
	deps.MetricInc(deps.Metrics.SessionCreated)
	deps.EmitAudit(ctx, AuditRecord{
		Event:     deps.Events.LoginStep2Success,
		UserID:    userID,
		SessionID: res.SessionID,
		Success:   true,
	})
	return res, nil
}

func (d *Deps) runLoginStep2(ctx context.Context, userID, code string) (*LoginResult, error) {
	sctx, cancel := d.storeCtx(ctx)
	user, err := d.Store.Users().FindByID(sctx, userID)
	cancel()
	if errors.Is(err, store.ErrNotFound) {
		return nil, otpExpired()
	}
	if err != nil {
		return nil, d.internalError("find user by id", err, zap.String("user_id", userID))
	}
	if user.Status != store.AccountActive {
		return nil, autherr.New(autherr.KindAuthentication, "account_disabled",
			"account has been disabled, contact support", autherr.ErrAccountDisabled)
	}

	sctx, cancel = d.storeCtx(ctx)
	check := d.OTP.Validate(sctx, userID, code)
	cancel()
	if err := d.otpFailure(check); err != nil {
		if check.Failure == otp.FailureBlocked {
			d.MetricInc(d.Metrics.OTPBlocked)
		}
		return nil, err
	}

	access, err := d.Tokens.Issue(user.ID, user.Email, string(user.Role), jwt.TypeAccess)
	if err != nil {
		return nil, d.internalError("issue access token", err, zap.String("user_id", userID))
	}
	refresh, err := d.Tokens.Issue(user.ID, user.Email, string(user.Role), jwt.TypeRefresh)
	if err != nil {
		return nil, d.internalError("issue refresh token", err, zap.String("user_id", userID))
	}

	now := d.Now()
	ua := d.UserAgent(ctx)
	sess := store.Session{
		ID:               ulid.Make().String(),
		UserID:           user.ID,
		RefreshTokenHash: internal.HashToken(refresh.Value),
		AccessTokenJTI:   access.JTI,
		DeviceName:       internal.DeviceName(ua),
		IPAddress:        d.ClientIP(ctx),
		UserAgent:        ua,
		Status:           store.SessionActive,
		ExpiresAt:        now.Add(d.SessionTTL),
		LastActivity:     now,
		CreatedAt:        now,
	}
	if d.SessionTTL <= 0 {
		sess.ExpiresAt = refresh.ExpiresAt
	}

	sctx, cancel = d.storeCtx(ctx)
	err = d.Store.WithinTx(sctx, func(tx store.Store) error {
		if err := tx.Sessions().Create(sctx, &sess); err != nil {
			return err
		}
		if err := tx.Users().RecordLogin(sctx, user.ID, now); err != nil {
			return err
		}
		return tx.Users().UpdateOTPBlock(sctx, user.ID, nil, 0)
	})
	cancel()
	if err != nil {
		return nil, d.internalError("create session", err, zap.String("user_id", userID))
	}

	if err := d.OTPQuota.Reset(ctx, user.ID); err != nil {
		d.Logger.Warn("otp request quota not cleared", zap.String("user_id", user.ID), zap.Error(err))
	}

	user.LastLoginAt = &now
	user.LoginCount++
	user.OTPBlockedUntil = nil
	user.OTPRequestCount = 0
	return &LoginResult{
		AccessToken:  access.Value,
		RefreshToken: refresh.Value,
		User:         *user,
		ExpiresIn:    int64(d.Tokens.TTL(jwt.TypeAccess).Seconds()),
		SessionID:    sess.ID,
	}, nil
}

// RunResendOTP issues a fresh code for a user who is between step 1 and
// step 2. Resends are spaced by the cooldown and share the hourly quota.
func RunResendOTP(ctx context.Context, userID string, deps Deps) error {
	normalizeDeps(&deps)
	userID = strings.TrimSpace(userID)

	if err := deps.gate(ctx, userID, RoleGuest, EndpointOTPResend); err != nil {
		return err
	}
	if userID == "" {
		return autherr.Validation("missing_user_id", "user id is required")
	}

	sctx, cancel := deps.storeCtx(ctx)
	user, err := deps.Store.Users().FindByID(sctx, userID)
	cancel()
	if errors.Is(err, store.ErrNotFound) {
		return autherr.New(autherr.KindNotFound, "user_not_found", "user not found", autherr.ErrUserNotFound)
	}
	if err != nil {
		return deps.internalError("find user by id", err, zap.String("user_id", userID))
	}

	now := deps.Now()
	if user.OTPBlocked(now) {
		left := user.OTPBlockedUntil.Sub(now)
		return autherr.RateLimited("otp_blocked",
			fmt.Sprintf("too many attempts, try again in %d minutes", autherr.Minutes(left)),
			left, autherr.ErrOTPBlocked)
	}

	if ok, left := deps.OTPCooldown.Acquire(ctx, user.ID); !ok {
		deps.MetricInc(deps.Metrics.RateLimitHit)
		secs := int(left.Seconds() + 0.999)
		if secs < 1 {
			secs = 1
		}
		return autherr.RateLimited("otp_cooldown",
			fmt.Sprintf("wait %d seconds before requesting another code", secs),
			left, autherr.ErrOTPCooldown)
	}

	err = deps.reserveOTPRequest(ctx, user, false)
	if err == nil {
		err = deps.issueAndSendOTP(ctx, user)
	}
	if err != nil {
		// No code went out, so the user may retry at once.
		if rerr := deps.OTPCooldown.Release(ctx, user.ID); rerr != nil {
			deps.Logger.Warn("otp cooldown not released", zap.String("user_id", user.ID), zap.Error(rerr))
		}
		return err
	}

	deps.MetricInc(deps.Metrics.OTPResend)
	deps.EmitAudit(ctx, AuditRecord{Event: deps.Events.OTPResend, UserID: user.ID, Success: true})
	return nil
}

// reserveOTPRequest takes one slot of the hourly OTP quota. With escalate,
// a rejected request also blocks the user until the window frees.
func (d *Deps) reserveOTPRequest(ctx context.Context, user *store.User, escalate bool) error {
	res := d.OTPQuota.Reserve(ctx, user.ID)
	if res.Allowed {
		return nil
	}

	d.MetricInc(d.Metrics.OTPRequestLimited)
	now := d.Now()
	retry := res.ResetAt.Sub(now)

	if escalate {
		until := res.ResetAt
		sctx, cancel := d.storeCtx(ctx)
		err := d.Store.Users().UpdateOTPBlock(sctx, user.ID, &until, res.Count)
		cancel()
		if err != nil {
			d.Logger.Warn("otp request block not persisted", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	return autherr.RateLimited("otp_request_limit",
		fmt.Sprintf("too many code requests, try again in %d minutes", autherr.Minutes(retry)),
		retry, autherr.ErrOTPRequestLimit)
}

func (d *Deps) issueAndSendOTP(ctx context.Context, user *store.User) error {
	sctx, cancel := d.storeCtx(ctx)
	issued, err := d.OTP.Issue(sctx, user.ID, d.ClientIP(ctx), d.UserAgent(ctx))
	cancel()

	var blocked *otp.BlockedError
	if errors.As(err, &blocked) {
		left := blocked.Until.Sub(d.Now())
		return autherr.RateLimited("otp_blocked",
			fmt.Sprintf("code blocked after too many attempts, try again in %d minutes", autherr.Minutes(left)),
			left, autherr.ErrOTPBlocked)
	}
	if err != nil {
		return d.internalError("issue otp", err, zap.String("user_id", user.ID))
	}

	d.MetricInc(d.Metrics.OTPIssued)
	to := recipient(user)
	code := issued.Code
	d.notifyAsync("send_otp", func(ctx context.Context, n notify.Notifier) error {
		return n.SendOTP(ctx, to, code)
	})
	return nil
}

func otpExpired() error {
	return autherr.New(autherr.KindAuthentication, "otp_expired", "OTP expired, request a new code", autherr.ErrOTPExpired)
}

func (d *Deps) otpFailure(res otp.ValidateResult) error {
	now := d.Now()
	switch res.Failure {
	case otp.FailureNone:
		return nil
	case otp.FailureNoActive:
		return otpExpired()
	case otp.FailureMismatch:
		return autherr.New(autherr.KindAuthentication, "otp_invalid",
			fmt.Sprintf("incorrect code, %d attempts remaining", res.AttemptsRemaining),
			autherr.ErrOTPInvalid).WithAttempts(res.AttemptsRemaining)
	case otp.FailureBlocked, otp.FailureConsumed:
		left := res.BlockedUntil.Sub(now)
		return autherr.RateLimited("otp_blocked",
			fmt.Sprintf("code blocked after too many attempts, try again in %d minutes", autherr.Minutes(left)),
			left, autherr.ErrOTPBlocked)
	default:
		return d.internalError("validate otp", res.Err)
	}
}
