package otpauth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MrEthical07/otpauth/notify"
	"github.com/MrEthical07/otpauth/password"
	"github.com/MrEthical07/otpauth/store"
	"github.com/MrEthical07/otpauth/store/memory"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testPassword = "correct-password-123"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	engine *Engine
	store  *memory.Store
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	clock  *fakeClock
	notes  *notify.Recorder
	logs   *observer.ObservedLogs
	hasher *password.Argon2
}

type envOption func(*testEnv, *Config, *Builder)

func withAuditSink(sink AuditSink) envOption {
	return func(_ *testEnv, cfg *Config, b *Builder) {
		cfg.Audit.Enabled = true
		b.WithAuditSink(sink)
	}
}

// withStoreWrapper builds the engine on top of wrap(env.store); seeding still
// goes straight to the memory store.
func withStoreWrapper(wrap func(store.Store) store.Store) envOption {
	return func(env *testEnv, _ *Config, b *Builder) {
		b.WithStore(wrap(env.store))
	}
}

func withConfig(fn func(*Config)) envOption {
	return func(_ *testEnv, cfg *Config, _ *Builder) {
		fn(cfg)
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte(testSecret)
	cfg.Password = PasswordConfig{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	core, logs := observer.New(zapcore.DebugLevel)
	env := &testEnv{
		store: memory.New(),
		mr:    mr,
		rdb:   rdb,
		clock: &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		notes: &notify.Recorder{},
		logs:  logs,
	}

	cfg := testConfig()
	b := New().
		WithRedis(rdb).
		WithStore(env.store).
		WithNotifier(env.notes).
		WithLogger(zap.New(core)).
		WithClock(env.clock.Now)
	for _, opt := range opts {
		opt(env, &cfg, b)
	}
	b.WithConfig(cfg)

	engine, err := b.Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}
	env.engine = engine

	env.hasher, err = password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return env
}

// seedUser inserts a verified, active customer.
func (env *testEnv) seedUser(t *testing.T, email string) *store.User {
	t.Helper()

	hash, err := env.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	now := env.clock.Now()
	u := &store.User{
		ID:           "user-" + email,
		Email:        email,
		Name:         "Test User",
		PasswordHash: hash,
		Role:         store.RoleCustomer,
		Status:       store.AccountActive,
		EmailStatus:  store.EmailVerified,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := env.store.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	return u
}

// waitForMessage blocks until the recorder holds n messages of kind for
// userID and returns the newest.
func (env *testEnv) waitForMessage(t *testing.T, kind notify.Kind, userID string, n int) notify.Message {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if env.notes.Count(kind, userID) >= n {
			m, _ := env.notes.Last(kind, userID)
			return m
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d %s messages for %s, got %d", n, kind, userID, env.notes.Count(kind, userID))
	return notify.Message{}
}

// stepOne runs LoginStep1 for a seeded user and returns the delivered code.
func (env *testEnv) stepOne(t *testing.T, email string) (string, string) {
	t.Helper()

	n := env.notes.Count(notify.KindOTP, "user-"+email) + 1
	userID, err := env.engine.LoginStep1(context.Background(), email, testPassword)
	if err != nil {
		t.Fatalf("LoginStep1 failed: %v", err)
	}
	return userID, env.waitForMessage(t, notify.KindOTP, userID, n).Secret
}

func (env *testEnv) login(t *testing.T, email string) *LoginResult {
	t.Helper()

	userID, code := env.stepOne(t, email)
	res, err := env.engine.LoginStep2(context.Background(), userID, code)
	if err != nil {
		t.Fatalf("LoginStep2 failed: %v", err)
	}
	return res
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func requireKind(t *testing.T, err error, want Kind) *Error {
	t.Helper()

	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	aerr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if aerr.Kind != want {
		t.Fatalf("expected kind %s, got %s (%s: %s)", want, aerr.Kind, aerr.Code, aerr.Message)
	}
	return aerr
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
