package otpauth

import (
	"strings"
	"testing"
)

func TestSecurityReportReflectsConfig(t *testing.T) {
	env := newTestEnv(t)
	rep := env.engine.SecurityReport()

	if rep.SigningAlgorithm != "hs256" || rep.OTPDigits != 6 || rep.OTPMaxAttempts != 3 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if !rep.RateLimitingActive || !rep.LogoutCascadeActive {
		t.Fatalf("expected rate limiting and cascade active: %+v", rep)
	}
	if rep.DedicatedOTPPepper {
		t.Fatal("pepper defaults to the JWT secret")
	}

	// The test config uses tiny argon2 parameters and no dedicated pepper.
	joined := strings.Join(rep.Weaknesses, "; ")
	for _, want := range []string{"argon2 memory", "OTP pepper"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected weakness %q in %q", want, joined)
		}
	}
}

func TestSecurityReportDefaultsAreClean(t *testing.T) {
	env := newTestEnv(t, withConfig(func(cfg *Config) {
		cfg.Password = DefaultConfig().Password
		cfg.OTP.Pepper = []byte("a-dedicated-otp-pepper")
	}))

	rep := env.engine.SecurityReport()
	if len(rep.Weaknesses) != 0 {
		t.Fatalf("expected no weaknesses, got %v", rep.Weaknesses)
	}
	if !rep.DedicatedOTPPepper {
		t.Fatal("expected dedicated pepper")
	}
}

func TestSecurityReportNilEngine(t *testing.T) {
	var e *Engine
	if rep := e.SecurityReport(); rep.SigningAlgorithm != "" || rep.Weaknesses != nil {
		t.Fatalf("expected zero report, got %+v", rep)
	}
}
