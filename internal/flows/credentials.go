package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/MrEthical07/otpauth/internal/autherr"
	"github.com/MrEthical07/otpauth/store"
)

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// verifyCredentials checks email and password and then the account state.
// Unknown email and wrong password produce the same error, and an unknown
// email still costs one password verification.
func (d *Deps) verifyCredentials(ctx context.Context, email, password string) (*store.User, error) {
	sctx, cancel := d.storeCtx(ctx)
	user, err := d.Store.Users().FindByEmail(sctx, email)
	cancel()
	if errors.Is(err, store.ErrNotFound) {
		d.Passwords.VerifyDummy(password)
		return nil, autherr.InvalidCredentials()
	}
	if err != nil {
		return nil, d.internalError("find user by email", err)
	}

	ok, err := d.Passwords.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, d.internalError("verify password", err, zap.String("user_id", user.ID))
	}
	if !ok {
		return nil, autherr.InvalidCredentials()
	}

	if user.EmailStatus != store.EmailVerified {
		return nil, autherr.New(autherr.KindAuthentication, "email_not_verified",
			"email not verified, check your inbox", autherr.ErrEmailNotVerified)
	}
	if user.Status != store.AccountActive {
		return nil, autherr.New(autherr.KindAuthentication, "account_disabled",
			"account has been disabled, contact support", autherr.ErrAccountDisabled)
	}

	now := d.Now()
	if user.OTPBlocked(now) {
		left := user.OTPBlockedUntil.Sub(now)
		return nil, autherr.RateLimited("otp_blocked",
			fmt.Sprintf("too many attempts, try again in %d minutes", autherr.Minutes(left)),
			left, autherr.ErrOTPBlocked)
	}
	return user, nil
}
