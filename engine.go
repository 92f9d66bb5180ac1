package otpauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/otpauth/internal/async"
	internalaudit "github.com/MrEthical07/otpauth/internal/audit"
	"github.com/MrEthical07/otpauth/internal/flows"
	"github.com/MrEthical07/otpauth/internal/limiters"
	"github.com/MrEthical07/otpauth/internal/rate"
	"github.com/MrEthical07/otpauth/jwt"
	"github.com/MrEthical07/otpauth/store"
)

// Engine runs every authentication operation. It is safe for concurrent
// use and must be created with [Builder.Build].
type Engine struct {
	config     Config
	logger     *zap.Logger
	now        func() time.Time
	store      store.Store
	redis      redis.UniversalClient
	limiter    *rate.Limiter
	endpoints  *limiters.EndpointLimiter
	tokens     *jwt.Manager
	background *async.Runner
	audit      *internalaudit.Dispatcher
	metrics    *Metrics
	flow       flows.Service
}

// Close stops the background runner and the audit dispatcher after they
// drain. The store and Redis client belong to the caller and stay open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.background != nil {
		e.background.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the configuration the engine was built with.
func (e *Engine) Config() Config {
	if e == nil {
		return defaultConfig()
	}
	return cloneConfig(e.config)
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// BackgroundDropped returns how many notifications or cascades were dropped
// on a full queue.
func (e *Engine) BackgroundDropped() uint64 {
	if e == nil || e.background == nil {
		return 0
	}
	return e.background.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.flow.Initialized()
}

// Health pings the store and Redis. Both must answer.
func (e *Engine) Health(ctx context.Context) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	var errs []error
	sctx, cancel := e.storeCtx(ctx)
	if err := e.store.Ping(sctx); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	cancel()
	if err := e.limiter.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("redis: %w", err))
	}
	if len(errs) == 0 {
		return nil
	}

	err := errors.Join(errs...)
	e.logger.Error("health check failed", zap.Error(err))
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.Store.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.config.Store.Timeout)
}

func flowMetrics() flows.Metrics {
	return flows.Metrics{
		LoginStep1Success:    int(MetricLoginStep1Success),
		LoginStep1Failure:    int(MetricLoginStep1Failure),
		LoginStep2Success:    int(MetricLoginStep2Success),
		LoginStep2Failure:    int(MetricLoginStep2Failure),
		OTPIssued:            int(MetricOTPIssued),
		OTPBlocked:           int(MetricOTPBlocked),
		OTPRequestLimited:    int(MetricOTPRequestLimited),
		OTPResend:            int(MetricOTPResend),
		RefreshSuccess:       int(MetricRefreshSuccess),
		RefreshFailure:       int(MetricRefreshFailure),
		LogoutSuccess:        int(MetricLogoutSuccess),
		LogoutFailure:        int(MetricLogoutFailure),
		LogoutCascade:        int(MetricLogoutCascade),
		LogoutCascadeFailure: int(MetricLogoutCascadeFailure),
		SessionCreated:       int(MetricSessionCreated),
		SessionInvalidated:   int(MetricSessionInvalidated),
		ValidateSuccess:      int(MetricValidateSuccess),
		ValidateFailure:      int(MetricValidateFailure),
		TokenRevoked:         int(MetricTokenRevoked),
		RateLimitHit:         int(MetricRateLimitHit),
		Registration:         int(MetricRegistration),
		EmailVerified:        int(MetricEmailVerified),
		VerificationResend:   int(MetricVerificationResend),
		NotificationDropped:  int(MetricNotificationDropped),
	}
}
