// Command authd runs the otpauth HTTP service.
//
// Configuration comes from the environment and an optional .env file; see
// otpauth.LoadConfigFromEnv for the variable names. DATABASE_URL,
// REDIS_URL and JWT_SECRET are required. Without KAFKA_BROKERS codes are
// only logged.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	otpauth "github.com/MrEthical07/otpauth"
	"github.com/MrEthical07/otpauth/httpapi"
	promexport "github.com/MrEthical07/otpauth/metrics/export/prometheus"
	"github.com/MrEthical07/otpauth/notify"
	"github.com/MrEthical07/otpauth/notify/kafka"
	"github.com/MrEthical07/otpauth/retention"
	"github.com/MrEthical07/otpauth/store/postgres"
)

func main() {
	envFile := flag.String("env", ".env", "optional env file")
	migrate := flag.Bool("migrate", false, "apply the database schema before serving")
	flag.Parse()

	if err := run(*envFile, *migrate); err != nil {
		fmt.Fprintf(os.Stderr, "authd: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile string, migrate bool) error {
	cfg, err := otpauth.LoadConfigFromEnv(envFile)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" || cfg.Redis.URL == "" {
		return errors.New("DATABASE_URL and REDIS_URL are required")
	}

	logger, err := newLogger(cfg.Server.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// -------- STORAGE --------
	db, err := postgres.Open(ctx, cfg.Database.URL, cfg.Database.MaxConnections)
	if err != nil {
		return err
	}
	defer db.Close()
	if migrate {
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("database schema applied")
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()

	// -------- NOTIFICATIONS --------
	var notifier notify.Notifier = notify.NewLogNotifier(logger, cfg.Server.Development)
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.Dial(kafka.Config{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ClientID: cfg.Kafka.ClientID,
		}, logger)
		if err != nil {
			return err
		}
		defer func() { _ = producer.Close() }()
		notifier = producer
		logger.Info("publishing notifications to kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	// -------- ENGINE --------
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	engine, err := otpauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithStore(db).
		WithNotifier(notifier).
		WithLogger(logger).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()
	for _, weakness := range engine.SecurityReport().Weaknesses {
		logger.Warn("weak security setting", zap.String("setting", weakness))
	}

	if cfg.Retention.Enabled {
		sched, err := retention.New(db, retention.Config{
			Schedule:         cfg.Retention.Schedule,
			OTPGrace:         cfg.Retention.OTPGrace,
			SessionGrace:     cfg.Retention.SessionGrace,
			InactiveIdle:     cfg.Retention.InactiveIdle,
			VerificationKeep: cfg.Retention.VerificationKeep,
			Timeout:          time.Minute,
		}, logger.Named("retention"), nil)
		if err != nil {
			return err
		}
		sched.Start()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			_ = sched.Stop(sctx)
		}()
	}

	// -------- HTTP --------
	srv := &http.Server{
		Addr: ":" + strconv.Itoa(cfg.Server.Port),
		Handler: httpapi.NewRouter(engine, httpapi.Options{
			Logger:        logger.Named("http"),
			SecureCookies: !cfg.Server.Development,
			Metrics:       promexport.NewPrometheusExporter(engine).Handler(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("auth service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
