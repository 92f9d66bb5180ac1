package otpauth

import (
	"bytes"

	"github.com/MrEthical07/otpauth/internal/security"
)

// SecurityReport is a read-only snapshot of the engine's security posture,
// returned by [Engine.SecurityReport]. Weaknesses lists settings below the
// built-in baselines; it is empty for [DefaultConfig] with a dedicated OTP
// pepper.
type SecurityReport = security.Report

type PasswordConfigReport = security.PasswordReport

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return security.BuildReport(security.ReportInput{
		SigningAlgorithm: e.config.JWT.SigningMethod,
		AccessTTL:        e.config.JWT.AccessTTL,
		RefreshTTL:       e.config.JWT.RefreshTTL,
		Leeway:           e.config.JWT.Leeway,
		Password: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		OTPDigits:            e.config.OTP.Digits,
		OTPTTL:               e.config.OTP.TTL,
		OTPMaxAttempts:       e.config.OTP.MaxAttempts,
		OTPBlockDuration:     e.config.OTP.BlockDuration,
		OTPRequestsPerHour:   e.config.OTP.RequestsPerHour,
		DedicatedOTPPepper:   !bytes.Equal(e.config.OTP.Pepper, e.config.JWT.PrivateKey),
		RateLimitEnabled:     e.config.RateLimit.Enabled,
		RateLimitDefault:     e.config.RateLimit.DefaultLimit,
		CascadeOtherSessions: e.config.Logout.CascadeOtherSessions,
		AuditEnabled:         e.config.Audit.Enabled,
	})
}
