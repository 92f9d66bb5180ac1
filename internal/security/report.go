package security

import "time"

// Baselines below which a setting is reported as weak.
const (
	MinArgon2MemoryKB   = 19 * 1024
	MaxAccessTTL        = time.Hour
	MaxOTPAttempts      = 5
	MinOTPBlockDuration = 5 * time.Minute
)

type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Report is a read-only view of the security-relevant settings of an
// engine, plus the settings that fall below the baselines.
type Report struct {
	SigningAlgorithm    string
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	Leeway              time.Duration
	Argon2              PasswordReport
	OTPDigits           int
	OTPTTL              time.Duration
	OTPMaxAttempts      int
	OTPBlockDuration    time.Duration
	OTPRequestsPerHour  int
	DedicatedOTPPepper  bool
	RateLimitingActive  bool
	LogoutCascadeActive bool
	AuditActive         bool
	Weaknesses          []string
}

type ReportInput struct {
	SigningAlgorithm     string
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	Leeway               time.Duration
	Password             PasswordReport
	OTPDigits            int
	OTPTTL               time.Duration
	OTPMaxAttempts       int
	OTPBlockDuration     time.Duration
	OTPRequestsPerHour   int
	DedicatedOTPPepper   bool
	RateLimitEnabled     bool
	RateLimitDefault     int
	CascadeOtherSessions bool
	AuditEnabled         bool
}

func BuildReport(input ReportInput) Report {
	rep := Report{
		SigningAlgorithm:    input.SigningAlgorithm,
		AccessTTL:           input.AccessTTL,
		RefreshTTL:          input.RefreshTTL,
		Leeway:              input.Leeway,
		Argon2:              input.Password,
		OTPDigits:           input.OTPDigits,
		OTPTTL:              input.OTPTTL,
		OTPMaxAttempts:      input.OTPMaxAttempts,
		OTPBlockDuration:    input.OTPBlockDuration,
		OTPRequestsPerHour:  input.OTPRequestsPerHour,
		DedicatedOTPPepper:  input.DedicatedOTPPepper,
		RateLimitingActive:  input.RateLimitEnabled && input.RateLimitDefault > 0,
		LogoutCascadeActive: input.CascadeOtherSessions,
		AuditActive:         input.AuditEnabled,
	}

	if input.Password.Memory < MinArgon2MemoryKB {
		rep.Weaknesses = append(rep.Weaknesses, "argon2 memory below 19 MiB")
	}
	if input.AccessTTL > MaxAccessTTL {
		rep.Weaknesses = append(rep.Weaknesses, "access token lifetime above 1h")
	}
	if input.OTPMaxAttempts > MaxOTPAttempts {
		rep.Weaknesses = append(rep.Weaknesses, "more than 5 OTP attempts per code")
	}
	if input.OTPBlockDuration < MinOTPBlockDuration {
		rep.Weaknesses = append(rep.Weaknesses, "OTP block shorter than 5m")
	}
	if !input.DedicatedOTPPepper {
		rep.Weaknesses = append(rep.Weaknesses, "OTP pepper shares the JWT secret")
	}
	if !rep.RateLimitingActive {
		rep.Weaknesses = append(rep.Weaknesses, "endpoint rate limiting disabled")
	}
	return rep
}
