package otpauth

import (
	"errors"
	"time"
)

// Config is the complete engine configuration. Build copies it, so later
// changes to the caller's value have no effect.
type Config struct {
	JWT          JWTConfig
	OTP          OTPConfig
	RateLimit    RateLimitConfig
	Session      SessionConfig
	Logout       LogoutConfig
	Verification VerificationConfig
	Password     PasswordConfig
	Async        AsyncConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
	Store        StoreConfig
	Retention    RetentionConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Server       ServerConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls token signing and lifetimes.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte // HS256 secret or Ed25519 private key
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls one-time login codes.
type OTPConfig struct {
	Digits          int
	TTL             time.Duration
	MaxAttempts     int
	BlockDuration   time.Duration
	RequestsPerHour int
	RequestWindow   time.Duration
	ResendCooldown  time.Duration
	// Pepper keys the HMAC over stored codes. Defaults to the JWT secret
	// when empty and the signing method is hs256.
	Pepper []byte
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig controls the endpoint sliding window.
type RateLimitConfig struct {
	Enabled        bool
	Window         time.Duration
	Buffer         time.Duration
	Timeout        time.Duration
	DefaultLimit   int
	RoleLimits     map[string]int
	EndpointLimits map[string]int
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig sets how long a login session lives.
type SessionConfig struct {
	Lifetime time.Duration
}

// LogoutConfig controls what a logout does beyond the presented session.
type LogoutConfig struct {
	CascadeOtherSessions bool
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// VerificationConfig controls email verification tokens.
type VerificationConfig struct {
	TokenTTL        time.Duration
	ResendPerWindow int
	ResendWindow    time.Duration
	DefaultRole     string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the argon2id cost parameters.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
ASYNC / AUDIT / METRICS CONFIG
====================================
*/

// AsyncConfig sizes the background runner used for notifications and the
// logout cascade.
type AsyncConfig struct {
	Workers     int
	QueueSize   int
	DropIfFull  bool
	TaskTimeout time.Duration
}

// AuditConfig enables audit events and sizes the dispatch buffer.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
STORE / RETENTION CONFIG
====================================
*/

// StoreConfig bounds every repository call.
type StoreConfig struct {
	Timeout time.Duration
}

// RetentionConfig drives the cleanup scheduler.
type RetentionConfig struct {
	Enabled          bool
	Schedule         string
	OTPGrace         time.Duration
	SessionGrace     time.Duration
	InactiveIdle     time.Duration
	VerificationKeep time.Duration
}

/*
====================================
INFRASTRUCTURE CONFIG
====================================
*/

// DatabaseConfig is read by cmd/authd; the engine itself takes a store.Store.
type DatabaseConfig struct {
	URL            string
	MaxConnections int32
}

// RedisConfig locates the shared limiter cache.
type RedisConfig struct {
	URL string
}

// KafkaConfig locates the notification topic. No brokers means
// notifications are only logged.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// ServerConfig is read by cmd/authd.
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	Development     bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
			Leeway:        60 * time.Second,
		},
		OTP: OTPConfig{
			Digits:          6,
			TTL:             5 * time.Minute,
			MaxAttempts:     3,
			BlockDuration:   15 * time.Minute,
			RequestsPerHour: 5,
			RequestWindow:   time.Hour,
			ResendCooldown:  60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:      true,
			Window:       60 * time.Second,
			Buffer:       5 * time.Second,
			Timeout:      200 * time.Millisecond,
			DefaultLimit: 100,
			RoleLimits: map[string]int{
				"guest":    100,
				"customer": 300,
				"seller":   500,
			},
			EndpointLimits: map[string]int{
				"login":               30,
				"login_verify":        30,
				"otp_resend":          10,
				"register":            10,
				"verification_resend": 10,
			},
		},
		Session: SessionConfig{
			Lifetime: 7 * 24 * time.Hour,
		},
		Logout: LogoutConfig{
			CascadeOtherSessions: true,
		},
		Verification: VerificationConfig{
			TokenTTL:        24 * time.Hour,
			ResendPerWindow: 3,
			ResendWindow:    time.Hour,
			DefaultRole:     "customer",
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Async: AsyncConfig{
			Workers:     4,
			QueueSize:   1024,
			DropIfFull:  true,
			TaskTimeout: 30 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Store: StoreConfig{
			Timeout: 3 * time.Second,
		},
		Retention: RetentionConfig{
			Enabled:          true,
			Schedule:         "@hourly",
			OTPGrace:         24 * time.Hour,
			SessionGrace:     7 * 24 * time.Hour,
			InactiveIdle:     30 * 24 * time.Hour,
			VerificationKeep: 0,
		},
		Database: DatabaseConfig{
			MaxConnections: 25,
		},
		Kafka: KafkaConfig{
			Topic:    "auth.notifications",
			ClientID: "otpauth",
		},
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
	}
}

// DefaultConfig returns the production defaults. The caller still has to
// supply JWT key material.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.OTP.Pepper = cloneBytes(cfg.OTP.Pepper)
	out.RateLimit.RoleLimits = cloneLimits(cfg.RateLimit.RoleLimits)
	out.RateLimit.EndpointLimits = cloneLimits(cfg.RateLimit.EndpointLimits)
	out.Kafka.Brokers = append([]string(nil), cfg.Kafka.Brokers...)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneLimits(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("JWT AccessTTL must be shorter than RefreshTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey secret of at least 32 bytes")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	if c.OTP.Digits < 6 || c.OTP.Digits > 10 {
		return errors.New("OTP Digits must be between 6 and 10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("OTP MaxAttempts must be > 0")
	}
	if c.OTP.BlockDuration <= 0 {
		return errors.New("OTP BlockDuration must be > 0")
	}
	if c.OTP.RequestsPerHour <= 0 || c.OTP.RequestWindow <= 0 {
		return errors.New("OTP RequestsPerHour and RequestWindow must be > 0")
	}
	if c.OTP.ResendCooldown < 0 {
		return errors.New("OTP ResendCooldown must be >= 0")
	}
	if len(c.OTP.Pepper) > 0 && len(c.OTP.Pepper) < 16 {
		return errors.New("OTP Pepper must be at least 16 bytes")
	}
	if len(c.OTP.Pepper) == 0 && c.JWT.SigningMethod != "hs256" {
		return errors.New("OTP Pepper is required unless JWT uses hs256")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Window <= 0 {
			return errors.New("RateLimit Window must be > 0")
		}
		if c.RateLimit.Buffer < 0 {
			return errors.New("RateLimit Buffer must be >= 0")
		}
		if c.RateLimit.Timeout <= 0 {
			return errors.New("RateLimit Timeout must be > 0")
		}
		if c.RateLimit.DefaultLimit <= 0 {
			return errors.New("RateLimit DefaultLimit must be > 0")
		}
		for name, limit := range c.RateLimit.RoleLimits {
			if limit <= 0 {
				return errors.New("RateLimit role limit for " + name + " must be > 0")
			}
		}
		for name, limit := range c.RateLimit.EndpointLimits {
			if limit <= 0 {
				return errors.New("RateLimit endpoint limit for " + name + " must be > 0")
			}
		}
	}

	if c.Session.Lifetime <= 0 {
		return errors.New("Session Lifetime must be > 0")
	}

	if c.Verification.TokenTTL <= 0 {
		return errors.New("Verification TokenTTL must be > 0")
	}
	if c.Verification.ResendPerWindow <= 0 || c.Verification.ResendWindow <= 0 {
		return errors.New("Verification ResendPerWindow and ResendWindow must be > 0")
	}
	if c.Verification.DefaultRole != "customer" && c.Verification.DefaultRole != "seller" {
		return errors.New("Verification DefaultRole must be customer or seller")
	}

	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	if c.Async.Workers <= 0 || c.Async.QueueSize <= 0 {
		return errors.New("Async Workers and QueueSize must be > 0")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Store.Timeout < 0 {
		return errors.New("Store Timeout must be >= 0")
	}
	if c.Retention.Enabled && c.Retention.Schedule == "" {
		return errors.New("Retention Schedule is required when retention is enabled")
	}

	return nil
}
