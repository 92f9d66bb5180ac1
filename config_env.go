package otpauth

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadConfigFromEnv starts from [DefaultConfig], loads the given .env files
// (".env" when none are named) without overriding variables already set,
// and applies the process environment. Missing .env files are ignored.
//
// Durations accept either whole seconds ("900") or Go duration syntax
// ("15m"). The result is not validated; call [Config.Validate] or let
// [Builder.Build] do it.
func LoadConfigFromEnv(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	cfg := defaultConfig()
	var errs []error
	seconds := func(name string, dst *time.Duration) {
		if err := envDuration(name, dst); err != nil {
			errs = append(errs, err)
		}
	}
	number := func(name string, dst *int) {
		if err := envInt(name, dst); err != nil {
			errs = append(errs, err)
		}
	}

	cfg.Database.URL = os.Getenv("DATABASE_URL")
	cfg.Redis.URL = os.Getenv("REDIS_URL")
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWT.PrivateKey = []byte(v)
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.JWT.Issuer = v
	}
	if v := os.Getenv("JWT_AUDIENCE"); v != "" {
		cfg.JWT.Audience = v
	}
	seconds("JWT_ACCESS_TOKEN_EXPIRY", &cfg.JWT.AccessTTL)
	seconds("JWT_REFRESH_TOKEN_EXPIRY", &cfg.JWT.RefreshTTL)
	if v := os.Getenv("OTP_PEPPER"); v != "" {
		cfg.OTP.Pepper = []byte(v)
	}

	number("AUTH_SERVICE_PORT", &cfg.Server.Port)
	cfg.Server.Development = strings.EqualFold(os.Getenv("APP_ENV"), "development")

	var windowMinutes int
	number("RATE_LIMIT_WINDOW_MINUTES", &windowMinutes)
	if windowMinutes > 0 {
		cfg.RateLimit.Window = time.Duration(windowMinutes) * time.Minute
	}
	for env, role := range map[string]string{
		"RATE_LIMIT_GUEST_REQUESTS":    string(RoleGuest),
		"RATE_LIMIT_CUSTOMER_REQUESTS": string(RoleCustomer),
		"RATE_LIMIT_SELLER_REQUESTS":   string(RoleSeller),
	} {
		limit := cfg.RateLimit.RoleLimits[role]
		number(env, &limit)
		cfg.RateLimit.RoleLimits[role] = limit
	}
	var sensitive int
	number("RATE_LIMIT_SENSITIVE_ENDPOINTS", &sensitive)
	if sensitive > 0 {
		for endpoint := range cfg.RateLimit.EndpointLimits {
			cfg.RateLimit.EndpointLimits[endpoint] = sensitive
		}
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		for _, broker := range strings.Split(v, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, broker)
			}
		}
	}
	if v := os.Getenv("KAFKA_NOTIFICATION_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

func envInt(name string, dst *int) error {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}

func envDuration(name string, dst *time.Duration) error {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return nil
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		*dst = time.Duration(n) * time.Second
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}
