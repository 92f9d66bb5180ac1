package otpauth

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/otpauth/internal/async"
	internalaudit "github.com/MrEthical07/otpauth/internal/audit"
	"github.com/MrEthical07/otpauth/internal/flows"
	"github.com/MrEthical07/otpauth/internal/limiters"
	"github.com/MrEthical07/otpauth/internal/otp"
	"github.com/MrEthical07/otpauth/internal/rate"
	"github.com/MrEthical07/otpauth/jwt"
	"github.com/MrEthical07/otpauth/notify"
	"github.com/MrEthical07/otpauth/password"
	"github.com/MrEthical07/otpauth/store"
)

const (
	otpQuotaPrefix          = "otp_requests"
	otpCooldownPrefix       = "otp_cooldown"
	verificationQuotaPrefix = "verification_resend"
)

// Builder assembles an [Engine]. A Builder can be used for exactly one
// successful Build.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	store     store.Store
	notifier  notify.Notifier
	logger    *zap.Logger
	now       func() time.Time
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The Builder keeps its own
// copy.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the shared cache used by every limiter. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore sets the relational store. Required.
func (b *Builder) WithStore(st store.Store) *Builder {
	b.store = st
	return b
}

// WithNotifier sets where OTP codes and verification tokens are delivered.
// Defaults to a notifier that only logs that a message was sent.
func (b *Builder) WithNotifier(n notify.Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for every component. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.OTP.Pepper) == 0 {
		cfg.OTP.Pepper = cloneBytes(cfg.JWT.PrivateKey)
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config:  cloneConfig(cfg),
		logger:  logger,
		now:     now,
		store:   b.store,
		redis:   b.redis,
		metrics: NewMetrics(cfg.Metrics),
	}

	// -------- LIMITERS --------
	engine.limiter = rate.New(b.redis, rate.Config{
		Buffer:  cfg.RateLimit.Buffer,
		Timeout: cfg.RateLimit.Timeout,
		Now:     now,
		OnFailOpen: func(string) {
			engine.metricInc(MetricRateLimitFailOpen)
		},
	}, logger.Named("ratelimit"))

	if cfg.RateLimit.Enabled {
		engine.endpoints = limiters.NewEndpointLimiter(engine.limiter, limiters.EndpointPolicy{
			Window:         cfg.RateLimit.Window,
			DefaultLimit:   cfg.RateLimit.DefaultLimit,
			RoleLimits:     cfg.RateLimit.RoleLimits,
			EndpointLimits: cfg.RateLimit.EndpointLimits,
		})
	}
	otpQuota := limiters.NewQuotaLimiter(engine.limiter, limiters.QuotaConfig{
		Prefix: otpQuotaPrefix,
		Limit:  cfg.OTP.RequestsPerHour,
		Window: cfg.OTP.RequestWindow,
	})
	otpCooldown := limiters.NewCooldown(engine.limiter, otpCooldownPrefix, cfg.OTP.ResendCooldown)
	verificationQuota := limiters.NewQuotaLimiter(engine.limiter, limiters.QuotaConfig{
		Prefix: verificationQuotaPrefix,
		Limit:  cfg.Verification.ResendPerWindow,
		Window: cfg.Verification.ResendWindow,
	})

	// -------- CREDENTIALS --------
	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}
	engine.tokens = jm

	om, err := otp.NewManager(otp.Config{
		Digits:        cfg.OTP.Digits,
		TTL:           cfg.OTP.TTL,
		MaxAttempts:   cfg.OTP.MaxAttempts,
		BlockDuration: cfg.OTP.BlockDuration,
		Pepper:        cloneBytes(cfg.OTP.Pepper),
	}, b.store, now)
	if err != nil {
		return nil, err
	}

	// -------- BACKGROUND --------
	engine.background = async.NewRunner(async.Config{
		Workers:     cfg.Async.Workers,
		QueueSize:   cfg.Async.QueueSize,
		DropIfFull:  cfg.Async.DropIfFull,
		TaskTimeout: cfg.Async.TaskTimeout,
	}, logger.Named("async"))
	engine.background.OnFailure = func(string) {
		engine.metricInc(MetricBackgroundTaskFailed)
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink, logger.Named("audit"))

	notifier := b.notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger.Named("notify"), false)
	}

	engine.flow = flows.New(flows.Deps{
		Store:             b.store,
		OTP:               om,
		Tokens:            jm,
		Passwords:         ph,
		Notifier:          notifier,
		Endpoints:         engine.endpoints,
		OTPQuota:          otpQuota,
		OTPCooldown:       otpCooldown,
		VerificationQuota: verificationQuota,
		Background:        engine.background,
		Logger:            logger.Named("flows"),
		Now:               now,
		SessionTTL:        cfg.Session.Lifetime,
		VerificationTTL:   cfg.Verification.TokenTTL,
		StoreTimeout:      cfg.Store.Timeout,
		CascadeLogout:     cfg.Logout.CascadeOtherSessions,
		DefaultRole:       store.Role(cfg.Verification.DefaultRole),
		ClientIP:          clientIPFromContext,
		UserAgent:         userAgentFromContext,
		MetricInc: func(id int) {
			engine.metricInc(MetricID(id))
		},
		EmitAudit: engine.emitAudit,
		Metrics:   flowMetrics(),
		Events:    flowEvents(),
	})

	b.built = true

	return engine, nil
}
