package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/MrEthical07/otpauth/store"
)

var ErrInvalidSchedule = errors.New("retention: invalid schedule")

// Config sets how long each kind of row outlives its expiry.
type Config struct {
	// Schedule is a cron spec or descriptor such as "@hourly".
	Schedule string
	// OTPGrace keeps codes this long past their expiry.
	OTPGrace time.Duration
	// SessionGrace keeps sessions this long past their expiry.
	SessionGrace time.Duration
	// InactiveIdle removes deactivated sessions idle for longer than this.
	InactiveIdle time.Duration
	// VerificationKeep keeps unused verification tokens past their expiry.
	VerificationKeep time.Duration
	// Timeout bounds one run. Zero means no bound.
	Timeout time.Duration
}

// Report counts the rows removed by one run.
type Report struct {
	OTPs          int64
	Sessions      int64
	Verifications int64
	Revocations   int64
}

// Scheduler deletes stale rows on a cron schedule. Users are never touched.
type Scheduler struct {
	store  store.Store
	config Config
	logger *zap.Logger
	now    func() time.Time

	cron    *cron.Cron
	runs    atomic.Int64
	mu      sync.Mutex
	last    Report
	started bool
}

// New validates the schedule and prepares a stopped Scheduler.
func New(st store.Store, cfg Config, logger *zap.Logger, now func() time.Time) (*Scheduler, error) {
	if st == nil {
		return nil, errors.New("retention: store required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}

	s := &Scheduler{
		store:  st,
		config: cfg,
		logger: logger,
		now:    now,
	}

	cl := cronLogger{logger.Sugar()}
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := s.cron.AddFunc(cfg.Schedule, s.tick); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, cfg.Schedule, err)
	}
	return s, nil
}

// Start begins running on the schedule. It is a no-op when already started.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.logger.Info("retention scheduler started", zap.String("schedule", s.config.Schedule))
}

// Stop prevents further runs and waits for a running one to finish or for
// ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Runs reports how many scheduled runs have completed.
func (s *Scheduler) Runs() int64 {
	return s.runs.Load()
}

// Last returns the report of the most recent run.
func (s *Scheduler) Last() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	_, err := s.RunOnce(ctx)
	s.runs.Add(1)
	if err != nil {
		s.logger.Error("retention run failed", zap.Error(err))
	}
}

// RunOnce performs one cleanup pass. Each step runs even when an earlier
// one fails; the failures are joined.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	now := s.now()
	var report Report
	var errs []error

	n, err := s.store.OTPs().DeleteExpiredBefore(ctx, now.Add(-s.config.OTPGrace))
	if err != nil {
		errs = append(errs, fmt.Errorf("delete otp codes: %w", err))
	}
	report.OTPs = n

	n, err = s.store.Sessions().DeleteStale(ctx, now.Add(-s.config.SessionGrace), now.Add(-s.config.InactiveIdle))
	if err != nil {
		errs = append(errs, fmt.Errorf("delete sessions: %w", err))
	}
	report.Sessions = n

	n, err = s.store.Verifications().DeleteExpiredBefore(ctx, now.Add(-s.config.VerificationKeep))
	if err != nil {
		errs = append(errs, fmt.Errorf("delete verifications: %w", err))
	}
	report.Verifications = n

	n, err = s.store.Revocations().DeleteExpiredBefore(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("delete revocations: %w", err))
	}
	report.Revocations = n

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	s.logger.Info("retention run completed",
		zap.Int64("otp_codes", report.OTPs),
		zap.Int64("sessions", report.Sessions),
		zap.Int64("verifications", report.Verifications),
		zap.Int64("revocations", report.Revocations),
	)
	return report, errors.Join(errs...)
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
