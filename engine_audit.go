package otpauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/otpauth/internal/flows"
)

const (
	auditEventLoginStep1Success  = "login_step1_success"
	auditEventLoginStep1Failure  = "login_step1_failure"
	auditEventLoginStep2Success  = "login_step2_success"
	auditEventLoginStep2Failure  = "login_step2_failure"
	auditEventOTPResend          = "otp_resend"
	auditEventRefreshSuccess     = "refresh_success"
	auditEventRefreshFailure     = "refresh_failure"
	auditEventLogout             = "logout"
	auditEventLogoutCascade      = "logout_other_sessions"
	auditEventSessionInvalidated = "session_invalidated"
	auditEventSessionsCleared    = "sessions_cleared"
	auditEventTokenRevoked       = "token_revoked"
	auditEventRateLimited        = "rate_limit_triggered"
	auditEventRegistration       = "registration"
	auditEventEmailVerified      = "email_verified"
	auditEventVerificationResend = "verification_resend"
)

func flowEvents() flows.Events {
	return flows.Events{
		LoginStep1Success:  auditEventLoginStep1Success,
		LoginStep1Failure:  auditEventLoginStep1Failure,
		LoginStep2Success:  auditEventLoginStep2Success,
		LoginStep2Failure:  auditEventLoginStep2Failure,
		OTPResend:          auditEventOTPResend,
		RefreshSuccess:     auditEventRefreshSuccess,
		RefreshFailure:     auditEventRefreshFailure,
		Logout:             auditEventLogout,
		LogoutCascade:      auditEventLogoutCascade,
		SessionInvalidated: auditEventSessionInvalidated,
		SessionsCleared:    auditEventSessionsCleared,
		TokenRevoked:       auditEventTokenRevoked,
		RateLimited:        auditEventRateLimited,
		Registration:       auditEventRegistration,
		EmailVerified:      auditEventEmailVerified,
		VerificationResend: auditEventVerificationResend,
	}
}

func (e *Engine) emitAudit(ctx context.Context, rec flows.AuditRecord) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: rec.Event,
		UserID:    rec.UserID,
		SessionID: rec.SessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   rec.Success,
		Error:     auditErrorCode(rec.Err),
		Metadata:  rec.Metadata,
	}
	e.audit.Emit(ctx, event)
}

// auditErrorCode reduces err to a stable code. Causes of internal errors are
// never written to the audit trail.
func auditErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var aerr *Error
	if errors.As(err, &aerr) && aerr.Code != "" {
		return aerr.Code
	}

	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrEmailTaken):
		return "email_taken"
	case errors.Is(err, ErrSessionForbidden):
		return "session_forbidden"
	default:
		return "internal_error"
	}
}
