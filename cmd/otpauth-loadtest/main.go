package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	otpauth "github.com/MrEthical07/otpauth"
	"github.com/MrEthical07/otpauth/notify"
	"github.com/MrEthical07/otpauth/password"
	"github.com/MrEthical07/otpauth/store"
	"github.com/MrEthical07/otpauth/store/memory"
)

const (
	loadEndpoint = "loadtest"
	loadPassword = "loadtest-password-123"
	loadSecret   = "loadtest-secret-0123456789abcdef"
)

func main() {
	var (
		identities  = flag.Int("identities", 1000, "distinct rate-limit identities")
		limit       = flag.Int("limit", 50, "guest ceiling per identity per window")
		window      = flag.Duration("window", 10*time.Minute, "sliding window; must outlast the run")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *identities <= 0 || *limit <= 0 || *concurrency <= 0 || *ops <= 0 || *window <= 0 {
		fmt.Fprintln(os.Stderr, "identities, limit, window, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := otpauth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte(loadSecret)
	cfg.Password = otpauth.PasswordConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	cfg.RateLimit.Window = *window
	cfg.RateLimit.Timeout = 2 * time.Second
	cfg.RateLimit.RoleLimits = map[string]int{string(otpauth.RoleGuest): *limit}
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	st := memory.New()
	notes := &notify.Recorder{}
	engine, err := otpauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithStore(st).
		WithNotifier(notes).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()
	access, err := seedAndLogin(ctx, engine, st, notes, cfg.Password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed login: %v\n", err)
		os.Exit(1)
	}

	limitStats, admitted := runRateLimitPhase(ctx, engine, *identities, *ops, *concurrency)
	validateStats := runValidatePhase(ctx, engine, access, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("check_rate_limit", limitStats)
	printStats("validate", validateStats)

	over := 0
	var total int64
	for _, n := range admitted {
		total += n
		if n > int64(*limit) {
			over++
		}
	}
	fmt.Printf("admitted=%d ceiling=%d identities_over_ceiling=%d fail_open=%d\n",
		total, int64(*limit)*int64(*identities), over,
		engine.MetricsSnapshot().Counters[otpauth.MetricRateLimitFailOpen])
	if over > 0 {
		fmt.Fprintln(os.Stderr, "FAIL: admitted requests exceeded the ceiling")
		os.Exit(1)
	}
}

// seedAndLogin creates one verified user and runs the two-step login to get
// an access token for the validate phase.
func seedAndLogin(ctx context.Context, engine *otpauth.Engine, st store.Store, notes *notify.Recorder, pc otpauth.PasswordConfig) (string, error) {
	hasher, err := password.NewArgon2(password.Config{
		Memory:      pc.Memory,
		Time:        pc.Time,
		Parallelism: pc.Parallelism,
		SaltLength:  pc.SaltLength,
		KeyLength:   pc.KeyLength,
	})
	if err != nil {
		return "", err
	}
	hash, err := hasher.Hash(loadPassword)
	if err != nil {
		return "", err
	}

	now := time.Now()
	user := &store.User{
		ID:           "loadtest-user",
		Email:        "loadtest@example.com",
		Name:         "Load Test",
		PasswordHash: hash,
		Role:         store.RoleCustomer,
		Status:       store.AccountActive,
		EmailStatus:  store.EmailVerified,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := st.Users().Create(ctx, user); err != nil {
		return "", err
	}

	userID, err := engine.LoginStep1(ctx, user.Email, loadPassword)
	if err != nil {
		return "", err
	}
	deadline := time.Now().Add(5 * time.Second)
	for notes.Count(notify.KindOTP, userID) == 0 {
		if time.Now().After(deadline) {
			return "", errors.New("otp was not delivered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	msg, _ := notes.Last(notify.KindOTP, userID)

	res, err := engine.LoginStep2(ctx, userID, msg.Secret)
	if err != nil {
		return "", err
	}
	return res.AccessToken, nil
}

func runRateLimitPhase(ctx context.Context, engine *otpauth.Engine, identities, ops, concurrency int) (phaseStats, []int64) {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		admitted  = make([]int64, identities)
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(identities)
				t0 := time.Now()
				res, err := engine.CheckRateLimit(ctx, fmt.Sprintf("10.0.%d.%d", idx/256, idx%256), "", loadEndpoint)
				d := time.Since(t0)
				if res.Allowed {
					atomic.AddInt64(&admitted[idx], 1)
				}
				if err != nil && otpauth.KindOf(err) != otpauth.KindRateLimit {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures), admitted
}

func runValidatePhase(ctx context.Context, engine *otpauth.Engine, token string, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				_, err := engine.ValidateAccess(ctx, token)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
