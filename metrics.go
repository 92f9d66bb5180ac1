package otpauth

import (
	internalmetrics "github.com/MrEthical07/otpauth/internal/metrics"
)

// MetricID identifies one engine counter.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginStep1Success = internalmetrics.MetricLoginStep1Success
	MetricLoginStep1Failure = internalmetrics.MetricLoginStep1Failure
	MetricLoginStep2Success = internalmetrics.MetricLoginStep2Success
	MetricLoginStep2Failure = internalmetrics.MetricLoginStep2Failure
	// MetricOTPIssued counts codes created, including resends.
	MetricOTPIssued = internalmetrics.MetricOTPIssued
	// MetricOTPBlocked counts codes blocked after too many wrong guesses.
	MetricOTPBlocked           = internalmetrics.MetricOTPBlocked
	MetricOTPRequestLimited    = internalmetrics.MetricOTPRequestLimited
	MetricOTPResend            = internalmetrics.MetricOTPResend
	MetricRefreshSuccess       = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure       = internalmetrics.MetricRefreshFailure
	MetricLogoutSuccess        = internalmetrics.MetricLogoutSuccess
	MetricLogoutFailure        = internalmetrics.MetricLogoutFailure
	MetricLogoutCascade        = internalmetrics.MetricLogoutCascade
	MetricLogoutCascadeFailure = internalmetrics.MetricLogoutCascadeFailure
	MetricSessionCreated       = internalmetrics.MetricSessionCreated
	MetricSessionInvalidated   = internalmetrics.MetricSessionInvalidated
	MetricValidateSuccess      = internalmetrics.MetricValidateSuccess
	MetricValidateFailure      = internalmetrics.MetricValidateFailure
	MetricTokenRevoked         = internalmetrics.MetricTokenRevoked
	// MetricRateLimitHit counts requests rejected by any limiter.
	MetricRateLimitHit = internalmetrics.MetricRateLimitHit
	// MetricRateLimitFailOpen counts limiter checks admitted because Redis
	// was unreachable.
	MetricRateLimitFailOpen     = internalmetrics.MetricRateLimitFailOpen
	MetricRegistration          = internalmetrics.MetricRegistration
	MetricEmailVerified         = internalmetrics.MetricEmailVerified
	MetricVerificationResend    = internalmetrics.MetricVerificationResend
	MetricNotificationDropped   = internalmetrics.MetricNotificationDropped
	MetricBackgroundTaskFailed  = internalmetrics.MetricBackgroundTaskFailed
	MetricValidateLatency       = internalmetrics.MetricValidateLatency
	metricIDCount               = internalmetrics.MetricIDCount
)

// Metrics is the engine's counter set.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics returns a counter set honoring cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Enabled,
		EnableLatencyHistograms: cfg.EnableLatencyHistograms,
	})
}
