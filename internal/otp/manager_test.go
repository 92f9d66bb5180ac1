package otp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/otpauth/store"
	"github.com/MrEthical07/otpauth/store/memory"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newManagerTest(t *testing.T) (*Manager, *memory.Store, *clock) {
	t.Helper()

	st := memory.New()
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m, err := NewManager(Config{
		Digits:        6,
		TTL:           5 * time.Minute,
		MaxAttempts:   3,
		BlockDuration: 15 * time.Minute,
		Pepper:        []byte("0123456789abcdef-pepper"),
	}, st, clk.Now)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, st, clk
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestIssueStoresHashOnly(t *testing.T) {
	m, _, _ := newManagerTest(t)

	issued, err := m.Issue(context.Background(), "u1", "10.0.0.1", "ua")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(issued.Code) != 6 {
		t.Fatalf("expected 6 digit code, got %q", issued.Code)
	}
	if strings.Contains(issued.Record.CodeHash, issued.Code) {
		t.Fatal("stored hash must not contain the plaintext code")
	}
}

func TestIssueInvalidatesPreviousCode(t *testing.T) {
	m, st, _ := newManagerTest(t)
	ctx := context.Background()

	first, err := m.Issue(ctx, "u1", "", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	second, err := m.Issue(ctx, "u1", "", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	old, err := st.OTPs().FindLatestByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("FindLatestByUser: %v", err)
	}
	if old.ID != second.Record.ID {
		t.Fatal("latest code should be the second one")
	}

	if first.Code != second.Code {
		res := m.Validate(ctx, "u1", first.Code)
		if res.Failure != FailureMismatch {
			t.Fatalf("old code must not validate, got failure %d", res.Failure)
		}
	}
	if res := m.Validate(ctx, "u1", second.Code); res.Failure != FailureNone {
		t.Fatalf("new code should validate, got failure %d", res.Failure)
	}
}

func TestValidateBlocksOnThirdFailure(t *testing.T) {
	m, _, _ := newManagerTest(t)
	ctx := context.Background()

	issued, err := m.Issue(ctx, "u1", "", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	bad := wrongCode(issued.Code)

	res := m.Validate(ctx, "u1", bad)
	if res.Failure != FailureMismatch || res.AttemptsRemaining != 2 {
		t.Fatalf("attempt 1: got %+v", res)
	}
	res = m.Validate(ctx, "u1", bad)
	if res.Failure != FailureMismatch || res.AttemptsRemaining != 1 {
		t.Fatalf("attempt 2: got %+v", res)
	}
	res = m.Validate(ctx, "u1", bad)
	if res.Failure != FailureBlocked {
		t.Fatalf("attempt 3: expected blocked, got %+v", res)
	}

	res = m.Validate(ctx, "u1", issued.Code)
	if res.Failure != FailureBlocked {
		t.Fatalf("correct code after block must be refused, got %+v", res)
	}
}

func TestConcurrentFailuresBlockExactlyAtCeiling(t *testing.T) {
	m, st, _ := newManagerTest(t)
	ctx := context.Background()

	issued, err := m.Issue(ctx, "u1", "", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	bad := wrongCode(issued.Code)

	const callers = 10
	results := make(chan ValidateResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- m.Validate(ctx, "u1", bad)
		}()
	}
	wg.Wait()
	close(results)

	mismatches := 0
	for res := range results {
		if res.Failure == FailureMismatch {
			mismatches++
		}
	}
	if mismatches > 2 {
		t.Fatalf("at most 2 attempts may report remaining attempts, got %d", mismatches)
	}

	rec, err := st.OTPs().FindLatestByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("FindLatestByUser: %v", err)
	}
	if rec.State(time.Now()) != store.OTPBlocked {
		t.Fatalf("expected blocked state, got %s", rec.State(time.Now()))
	}
	if res := m.Validate(ctx, "u1", issued.Code); res.Failure != FailureBlocked {
		t.Fatalf("correct code must not validate after block, got %+v", res)
	}
}

func TestIssueRefusedWhileBlocked(t *testing.T) {
	m, _, clk := newManagerTest(t)
	ctx := context.Background()

	issued, _ := m.Issue(ctx, "u1", "", "")
	bad := wrongCode(issued.Code)
	for i := 0; i < 3; i++ {
		m.Validate(ctx, "u1", bad)
	}

	_, err := m.Issue(ctx, "u1", "", "")
	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected BlockedError, got %v", err)
	}
	if !errors.Is(err, ErrBlocked) {
		t.Fatal("BlockedError must unwrap to ErrBlocked")
	}

	clk.Advance(15*time.Minute + time.Second)
	if _, err := m.Issue(ctx, "u1", "", ""); err != nil {
		t.Fatalf("issue after block expiry: %v", err)
	}
}

func TestValidateExpiredCode(t *testing.T) {
	m, _, clk := newManagerTest(t)
	ctx := context.Background()

	issued, _ := m.Issue(ctx, "u1", "", "")
	clk.Advance(5 * time.Minute)

	if res := m.Validate(ctx, "u1", issued.Code); res.Failure != FailureNoActive {
		t.Fatalf("expected no active code after ttl, got %+v", res)
	}
}

func TestValidateConsumesOnce(t *testing.T) {
	m, _, _ := newManagerTest(t)
	ctx := context.Background()

	issued, _ := m.Issue(ctx, "u1", "", "")
	if res := m.Validate(ctx, "u1", issued.Code); res.Failure != FailureNone {
		t.Fatalf("first use: %+v", res)
	}
	if res := m.Validate(ctx, "u1", issued.Code); res.Failure != FailureNoActive {
		t.Fatalf("replay must find no active code, got %+v", res)
	}
}
