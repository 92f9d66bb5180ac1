// Package autherr defines the error taxonomy returned by every otpauth
// operation. The root package re-exports these names.
package autherr

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Kind classifies an Error for callers and transport adapters.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindRateLimit
	KindToken
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimit:
		return "rate_limit"
	case KindToken:
		return "token"
	default:
		return "internal"
	}
}

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrEmailNotVerified     = errors.New("email not verified")
	ErrAccountDisabled      = errors.New("account disabled")
	ErrOTPBlocked           = errors.New("otp blocked")
	ErrOTPExpired           = errors.New("otp expired")
	ErrOTPInvalid           = errors.New("otp invalid")
	ErrOTPRequestLimit      = errors.New("otp request limit reached")
	ErrOTPCooldown          = errors.New("otp resend cooldown")
	ErrRateLimited          = errors.New("rate limited")
	ErrTokenInvalid         = errors.New("token invalid")
	ErrTokenExpired         = errors.New("token expired")
	ErrTokenRevoked         = errors.New("token revoked")
	ErrTokenWrongType       = errors.New("token type mismatch")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionForbidden     = errors.New("session belongs to another user")
	ErrUserNotFound         = errors.New("user not found")
	ErrEmailTaken           = errors.New("email already registered")
	ErrVerificationNotFound = errors.New("verification token not found")
	ErrVerificationUsed     = errors.New("verification token already used")
	ErrVerificationExpired  = errors.New("verification token expired")
	ErrAlreadyVerified      = errors.New("email already verified")
	ErrStoreUnavailable     = errors.New("store unavailable")
)

// Error is the single error type surfaced by public operations. Message is
// always safe to show to clients.
type Error struct {
	Kind              Kind
	Code              string
	Message           string
	RetryAfter        time.Duration
	AttemptsRemaining int
	err               error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// New builds an Error wrapping cause.
func New(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, err: cause}
}

func Validation(code, message string) *Error {
	return New(KindValidation, code, message, ErrInvalidInput)
}

// InvalidCredentials is shared by the unknown-email and wrong-password paths.
func InvalidCredentials() *Error {
	return New(KindAuthentication, "invalid_credentials", "email or password incorrect", ErrInvalidCredentials)
}

func SessionNotFound() *Error {
	return New(KindAuthentication, "session_not_found", "session not found", ErrSessionNotFound)
}

func RateLimited(code, message string, retryAfter time.Duration, cause error) *Error {
	if retryAfter < 0 {
		retryAfter = 0
	}
	return &Error{Kind: KindRateLimit, Code: code, Message: message, RetryAfter: retryAfter, err: cause}
}

func Token(cause error) *Error {
	switch {
	case errors.Is(cause, ErrTokenExpired):
		return New(KindToken, "token_expired", "token expired", cause)
	case errors.Is(cause, ErrTokenRevoked):
		return New(KindToken, "token_revoked", "token has been revoked", cause)
	case errors.Is(cause, ErrTokenWrongType):
		return New(KindToken, "token_wrong_type", "wrong token type", cause)
	default:
		return New(KindToken, "token_invalid", "invalid token", ErrTokenInvalid)
	}
}

// Internal hides cause behind a generic message. Callers log cause first.
func Internal(cause error) *Error {
	return New(KindInternal, "internal_error", "internal error", fmt.Errorf("%w: %v", ErrStoreUnavailable, cause))
}

// WithAttempts returns a copy of e carrying the number of attempts left.
func (e *Error) WithAttempts(n int) *Error {
	out := *e
	out.AttemptsRemaining = n
	return &out
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// RetryAfter returns the retry hint carried by err, if any.
func RetryAfter(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// Minutes rounds d up to whole minutes, minimum one.
func Minutes(d time.Duration) int {
	m := int(math.Ceil(d.Minutes()))
	if m < 1 {
		return 1
	}
	return m
}
