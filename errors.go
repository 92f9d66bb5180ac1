package otpauth

import (
	"time"

	"github.com/MrEthical07/otpauth/internal/autherr"
)

// Error is returned by every Engine operation. Message is safe to show to
// clients; the wrapped sentinel is reachable through errors.Is.
type Error = autherr.Error

// Kind classifies an Error.
type Kind = autherr.Kind

const (
	KindInternal       = autherr.KindInternal
	KindValidation     = autherr.KindValidation
	KindAuthentication = autherr.KindAuthentication
	KindAuthorization  = autherr.KindAuthorization
	KindNotFound       = autherr.KindNotFound
	KindConflict       = autherr.KindConflict
	KindRateLimit      = autherr.KindRateLimit
	KindToken          = autherr.KindToken
)

var (
	// ErrInvalidInput is wrapped by every validation error.
	ErrInvalidInput = autherr.ErrInvalidInput
	// ErrInvalidCredentials is returned for both an unknown email and a wrong password.
	ErrInvalidCredentials = autherr.ErrInvalidCredentials
	ErrEmailNotVerified   = autherr.ErrEmailNotVerified
	ErrAccountDisabled    = autherr.ErrAccountDisabled
	// ErrOTPBlocked is returned while a user is barred from OTP login.
	ErrOTPBlocked      = autherr.ErrOTPBlocked
	ErrOTPExpired      = autherr.ErrOTPExpired
	ErrOTPInvalid      = autherr.ErrOTPInvalid
	ErrOTPRequestLimit = autherr.ErrOTPRequestLimit
	ErrOTPCooldown     = autherr.ErrOTPCooldown
	// ErrRateLimited is returned when an endpoint ceiling is reached.
	ErrRateLimited    = autherr.ErrRateLimited
	ErrTokenInvalid   = autherr.ErrTokenInvalid
	ErrTokenExpired   = autherr.ErrTokenExpired
	ErrTokenRevoked   = autherr.ErrTokenRevoked
	ErrTokenWrongType = autherr.ErrTokenWrongType
	// ErrSessionNotFound is returned by refresh and session management when
	// no usable session exists.
	ErrSessionNotFound      = autherr.ErrSessionNotFound
	ErrSessionForbidden     = autherr.ErrSessionForbidden
	ErrUserNotFound         = autherr.ErrUserNotFound
	ErrEmailTaken           = autherr.ErrEmailTaken
	ErrVerificationNotFound = autherr.ErrVerificationNotFound
	ErrVerificationUsed     = autherr.ErrVerificationUsed
	ErrVerificationExpired  = autherr.ErrVerificationExpired
	ErrAlreadyVerified      = autherr.ErrAlreadyVerified
	// ErrStoreUnavailable is wrapped by every internal error.
	ErrStoreUnavailable = autherr.ErrStoreUnavailable
	// ErrEngineNotReady is returned when an Engine was not produced by Build.
	ErrEngineNotReady = autherr.New(autherr.KindInternal, "engine_not_ready", "internal error", autherr.ErrStoreUnavailable)
)

// KindOf returns the Kind of err. Errors not produced by this package are
// KindInternal.
func KindOf(err error) Kind {
	return autherr.KindOf(err)
}

// RetryAfter returns how long the caller should wait before retrying, or
// zero when err carries no hint.
func RetryAfter(err error) time.Duration {
	return autherr.RetryAfter(err)
}
