package flows

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/otpauth/internal"
	"github.com/MrEthical07/otpauth/internal/autherr"
	"github.com/MrEthical07/otpauth/notify"
	"github.com/MrEthical07/otpauth/password"
	"github.com/MrEthical07/otpauth/store"
)

const maxEmailBytes = 254

// RegisterRequest is the flow-local registration input.
type RegisterRequest struct {
	Email    string
	Password string
	Name     string
	Role     string
}

// RunRegister creates an unverified account and sends a verification token.
func RunRegister(ctx context.Context, req RegisterRequest, deps Deps) (*store.User, error) {
	normalizeDeps(&deps)
	email := NormalizeEmail(req.Email)

	if err := deps.gate(ctx, email, RoleGuest, EndpointRegister); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, autherr.Validation("invalid_name", "name is required")
	}
	role := store.Role(strings.ToLower(strings.TrimSpace(req.Role)))
	if role == "" {
		role = deps.DefaultRole
	}
	if !role.Valid() {
		return nil, autherr.Validation("invalid_role", "role must be customer or seller")
	}

	hash, err := deps.Passwords.Hash(req.Password)
	switch {
	case errors.Is(err, password.ErrPasswordTooShort):
		return nil, autherr.Validation("weak_password", "password must be at least 8 characters")
	case errors.Is(err, password.ErrPasswordTooLong):
		return nil, autherr.Validation("weak_password", "password is too long")
	case err != nil:
		return nil, deps.internalError("hash password", err)
	}

	now := deps.Now()
	user := store.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         role,
		Status:       store.AccountActive,
		EmailStatus:  store.EmailUnverified,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	token := uuid.NewString()
	verification := deps.newVerification(user.ID, email, token)

	sctx, cancel := deps.storeCtx(ctx)
	err = deps.Store.WithinTx(sctx, func(tx store.Store) error {
		if err := tx.Users().Create(sctx, &user); err != nil {
			return err
		}
		return tx.Verifications().Create(sctx, &verification)
	})
	cancel()
	if errors.Is(err, store.ErrDuplicate) {
		deps.EmitAudit(ctx, AuditRecord{Event: deps.Events.Registration, Err: autherr.ErrEmailTaken})
		return nil, autherr.New(autherr.KindConflict, "email_taken", "email already registered", autherr.ErrEmailTaken)
	}
	if err != nil {
		return nil, deps.internalError("create user", err)
	}

	to := recipient(&user)
	deps.notifyAsync("send_verification", func(ctx context.Context, n notify.Notifier) error {
		return n.SendVerification(ctx, to, token)
	})

	deps.MetricInc(deps.Metrics.Registration)
	deps.EmitAudit(ctx, AuditRecord{Event: deps.Events.Registration, UserID: user.ID, Success: true})
	return &user, nil
}

// RunVerifyEmail consumes a verification token and marks the email verified.
func RunVerifyEmail(ctx context.Context, token string, deps Deps) error {
	normalizeDeps(&deps)
	token = strings.TrimSpace(token)
	if token == "" {
		return autherr.Validation("missing_token", "verification token is required")
	}

	now := deps.Now()
	var userID string

	sctx, cancel := deps.storeCtx(ctx)
	defer cancel()
	err := deps.Store.WithinTx(sctx, func(tx store.Store) error {
		v, err := tx.Verifications().FindByTokenHash(sctx, internal.HashToken(token))
		if errors.Is(err, store.ErrNotFound) {
			return autherr.New(autherr.KindNotFound, "verification_not_found",
				"verification token not found", autherr.ErrVerificationNotFound)
		}
		if err != nil {
			return err
		}
		if v.UsedAt != nil {
			return verificationUsed()
		}
		if !now.Before(v.ExpiresAt) {
			return autherr.New(autherr.KindValidation, "verification_expired",
				"verification token expired, request a new one", autherr.ErrVerificationExpired)
		}

		ok, err := tx.Verifications().MarkUsed(sctx, v.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return verificationUsed()
		}
		userID = v.UserID
		return tx.Users().MarkEmailVerified(sctx, v.UserID, now)
	})

	var aerr *autherr.Error
	if errors.As(err, &aerr) {
		return aerr
	}
	if err != nil {
		return deps.internalError("verify email", err)
	}

	deps.MetricInc(deps.Metrics.EmailVerified)
	deps.EmitAudit(ctx, AuditRecord{Event: deps.Events.EmailVerified, UserID: userID, Success: true})
	return nil
}

// RunResendVerification issues a new verification token for an unverified
// account, at most VerificationQuota times per window.
func RunResendVerification(ctx context.Context, email string, deps Deps) error {
	normalizeDeps(&deps)
	email = NormalizeEmail(email)

	if err := deps.gate(ctx, email, RoleGuest, EndpointVerificationResend); err != nil {
		return err
	}
	if email == "" {
		return autherr.Validation("invalid_email", "email is required")
	}

	sctx, cancel := deps.storeCtx(ctx)
	user, err := deps.Store.Users().FindByEmail(sctx, email)
	cancel()
	if errors.Is(err, store.ErrNotFound) {
		return autherr.New(autherr.KindNotFound, "user_not_found", "user not found", autherr.ErrUserNotFound)
	}
	if err != nil {
		return deps.internalError("find user by email", err)
	}
	if user.EmailStatus == store.EmailVerified {
		return autherr.New(autherr.KindValidation, "already_verified", "email already verified", autherr.ErrAlreadyVerified)
	}

	res := deps.VerificationQuota.Reserve(ctx, user.ID)
	if !res.Allowed {
		deps.MetricInc(deps.Metrics.RateLimitHit)
		retry := res.ResetAt.Sub(deps.Now())
		return autherr.RateLimited("verification_resend_limit",
			fmt.Sprintf("too many requests, try again in %d minutes", autherr.Minutes(retry)),
			retry, autherr.ErrRateLimited)
	}

	token := uuid.NewString()
	verification := deps.newVerification(user.ID, user.Email, token)
	sctx, cancel = deps.storeCtx(ctx)
	err = deps.Store.Verifications().Create(sctx, &verification)
	cancel()
	if err != nil {
		return deps.internalError("create verification", err, zap.String("user_id", user.ID))
	}

	to := recipient(user)
	deps.notifyAsync("send_verification", func(ctx context.Context, n notify.Notifier) error {
		return n.SendVerification(ctx, to, token)
	})

	deps.MetricInc(deps.Metrics.VerificationResend)
	deps.EmitAudit(ctx, AuditRecord{Event: deps.Events.VerificationResend, UserID: user.ID, Success: true})
	return nil
}

func (d *Deps) newVerification(userID, email, token string) store.EmailVerification {
	now := d.Now()
	return store.EmailVerification{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: internal.HashToken(token),
		Email:     email,
		ExpiresAt: now.Add(d.VerificationTTL),
		SentCount: 1,
		CreatedAt: now,
	}
}

func verificationUsed() error {
	return autherr.New(autherr.KindValidation, "verification_used",
		"verification token already used", autherr.ErrVerificationUsed)
}

func validateEmail(email string) error {
	invalid := autherr.Validation("invalid_email", "email address is not valid")
	if email == "" || len(email) > maxEmailBytes {
		return invalid
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return invalid
	}
	at := strings.LastIndexByte(email, '@')
	if at < 1 || !strings.Contains(email[at+1:], ".") {
		return invalid
	}
	return nil
}
