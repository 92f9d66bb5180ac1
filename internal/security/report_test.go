package security

import (
	"slices"
	"testing"
	"time"
)

func strongInput() ReportInput {
	return ReportInput{
		SigningAlgorithm:     "HS256",
		AccessTTL:            15 * time.Minute,
		RefreshTTL:           7 * 24 * time.Hour,
		Leeway:               time.Minute,
		Password:             PasswordReport{Memory: 64 * 1024, Time: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32},
		OTPDigits:            6,
		OTPTTL:               5 * time.Minute,
		OTPMaxAttempts:       3,
		OTPBlockDuration:     15 * time.Minute,
		OTPRequestsPerHour:   5,
		DedicatedOTPPepper:   true,
		RateLimitEnabled:     true,
		RateLimitDefault:     100,
		CascadeOtherSessions: true,
	}
}

func TestBuildReportStrongConfig(t *testing.T) {
	rep := BuildReport(strongInput())
	if len(rep.Weaknesses) != 0 {
		t.Fatalf("expected no weaknesses, got %v", rep.Weaknesses)
	}
	if !rep.RateLimitingActive || !rep.LogoutCascadeActive || rep.AuditActive {
		t.Fatalf("unexpected flags: %+v", rep)
	}
	if rep.Argon2.Memory != 64*1024 || rep.SigningAlgorithm != "HS256" {
		t.Fatalf("settings not copied: %+v", rep)
	}
}

func TestBuildReportWeaknesses(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ReportInput)
		want   string
	}{
		{"argon2 memory", func(in *ReportInput) { in.Password.Memory = 8 * 1024 }, "argon2 memory below 19 MiB"},
		{"access ttl", func(in *ReportInput) { in.AccessTTL = 2 * time.Hour }, "access token lifetime above 1h"},
		{"otp attempts", func(in *ReportInput) { in.OTPMaxAttempts = 10 }, "more than 5 OTP attempts per code"},
		{"otp block", func(in *ReportInput) { in.OTPBlockDuration = time.Minute }, "OTP block shorter than 5m"},
		{"shared pepper", func(in *ReportInput) { in.DedicatedOTPPepper = false }, "OTP pepper shares the JWT secret"},
		{"limiter off", func(in *ReportInput) { in.RateLimitEnabled = false }, "endpoint rate limiting disabled"},
		{"zero default limit", func(in *ReportInput) { in.RateLimitDefault = 0 }, "endpoint rate limiting disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := strongInput()
			tt.mutate(&in)
			rep := BuildReport(in)
			if len(rep.Weaknesses) != 1 || !slices.Contains(rep.Weaknesses, tt.want) {
				t.Fatalf("weaknesses = %v, want only %q", rep.Weaknesses, tt.want)
			}
		})
	}
}

func TestBuildReportBaselinesAreInclusive(t *testing.T) {
	in := strongInput()
	in.Password.Memory = MinArgon2MemoryKB
	in.AccessTTL = MaxAccessTTL
	in.OTPMaxAttempts = MaxOTPAttempts
	in.OTPBlockDuration = MinOTPBlockDuration
	if rep := BuildReport(in); len(rep.Weaknesses) != 0 {
		t.Fatalf("values at the baseline should pass, got %v", rep.Weaknesses)
	}
}
