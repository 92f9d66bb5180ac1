package internaldefs

import (
	otpauth "github.com/MrEthical07/otpauth"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   otpauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   otpauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: otpauth.MetricLoginStep1Success, Name: "otpauth_login_step1_success_total", Help: "Password checks that sent a one-time code."},
	{ID: otpauth.MetricLoginStep1Failure, Name: "otpauth_login_step1_failure_total", Help: "Rejected password checks."},
	{ID: otpauth.MetricLoginStep2Success, Name: "otpauth_login_step2_success_total", Help: "One-time codes accepted."},
	{ID: otpauth.MetricLoginStep2Failure, Name: "otpauth_login_step2_failure_total", Help: "One-time codes rejected."},
	{ID: otpauth.MetricOTPIssued, Name: "otpauth_otp_issued_total", Help: "One-time codes issued, including resends."},
	{ID: otpauth.MetricOTPBlocked, Name: "otpauth_otp_blocked_total", Help: "Codes blocked after too many wrong guesses."},
	{ID: otpauth.MetricOTPRequestLimited, Name: "otpauth_otp_request_limited_total", Help: "Code requests rejected by the hourly quota."},
	{ID: otpauth.MetricOTPResend, Name: "otpauth_otp_resend_total", Help: "Codes resent on request."},
	{ID: otpauth.MetricRefreshSuccess, Name: "otpauth_refresh_success_total", Help: "Successful refresh operations."},
	{ID: otpauth.MetricRefreshFailure, Name: "otpauth_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: otpauth.MetricLogoutSuccess, Name: "otpauth_logout_success_total", Help: "Successful logouts."},
	{ID: otpauth.MetricLogoutFailure, Name: "otpauth_logout_failure_total", Help: "Failed logouts."},
	{ID: otpauth.MetricLogoutCascade, Name: "otpauth_logout_cascade_total", Help: "Background deactivations of a user's other sessions."},
	{ID: otpauth.MetricLogoutCascadeFailure, Name: "otpauth_logout_cascade_failure_total", Help: "Cascade deactivations that failed or were not scheduled."},
	{ID: otpauth.MetricSessionCreated, Name: "otpauth_session_created_total", Help: "Created sessions."},
	{ID: otpauth.MetricSessionInvalidated, Name: "otpauth_session_invalidated_total", Help: "Session invalidation operations."},
	{ID: otpauth.MetricValidateSuccess, Name: "otpauth_validate_success_total", Help: "Tokens accepted by Validate."},
	{ID: otpauth.MetricValidateFailure, Name: "otpauth_validate_failure_total", Help: "Tokens rejected by Validate."},
	{ID: otpauth.MetricTokenRevoked, Name: "otpauth_token_revoked_total", Help: "Explicit token revocations."},
	{ID: otpauth.MetricRateLimitHit, Name: "otpauth_rate_limit_hit_total", Help: "Requests rejected by a limiter."},
	{ID: otpauth.MetricRateLimitFailOpen, Name: "otpauth_rate_limit_fail_open_total", Help: "Limiter checks admitted because Redis was unreachable."},
	{ID: otpauth.MetricRegistration, Name: "otpauth_registration_total", Help: "Created accounts."},
	{ID: otpauth.MetricEmailVerified, Name: "otpauth_email_verified_total", Help: "Verified email addresses."},
	{ID: otpauth.MetricVerificationResend, Name: "otpauth_verification_resend_total", Help: "Verification tokens resent."},
	{ID: otpauth.MetricNotificationDropped, Name: "otpauth_notification_dropped_total", Help: "Notifications dropped because the background queue was full."},
	{ID: otpauth.MetricBackgroundTaskFailed, Name: "otpauth_background_task_failed_total", Help: "Background tasks that returned an error."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: otpauth.MetricValidateLatency, Name: "otpauth_validate_latency_seconds", Help: "Validate latency histogram."},
}

// Gauge-style totals read from the engine outside the snapshot.
const (
	AuditDroppedName      = "otpauth_audit_dropped_total"
	AuditDroppedHelp      = "Dropped audit events due to dispatcher backpressure."
	BackgroundDroppedName = "otpauth_background_dropped_total"
	BackgroundDroppedHelp = "Background tasks dropped because the queue was full."
)

// HistogramUpperBounds are the finite bucket bounds in seconds; the last
// engine bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// flatten buckets into separate instruments.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
