// Package otp issues and validates one-time login codes.
//
// Codes are persisted as HMAC-SHA256(pepper, salt || user || code) with a
// per-code salt. Issuing a code consumes every earlier code of the same user
// inside one store transaction, so at most one code is valid at a time.
package otp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/otpauth/internal"
	"github.com/MrEthical07/otpauth/store"
	"github.com/google/uuid"
)

const saltSize = 16

var (
	ErrBlocked  = errors.New("otp blocked")
	ErrNoActive = errors.New("no active otp")
)

// Config controls code shape and retry policy.
type Config struct {
	Digits        int
	TTL           time.Duration
	MaxAttempts   int
	BlockDuration time.Duration
	Pepper        []byte
}

// Manager issues and checks codes against a store.Store.
type Manager struct {
	config Config
	store  store.Store
	now    func() time.Time
}

func NewManager(cfg Config, st store.Store, now func() time.Time) (*Manager, error) {
	if cfg.Digits < 6 || cfg.Digits > 10 {
		return nil, errors.New("otp digits must be between 6 and 10")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("otp ttl must be > 0")
	}
	if cfg.MaxAttempts <= 0 {
		return nil, errors.New("otp max attempts must be > 0")
	}
	if cfg.BlockDuration <= 0 {
		return nil, errors.New("otp block duration must be > 0")
	}
	if len(cfg.Pepper) < 16 {
		return nil, errors.New("otp pepper must be at least 16 bytes")
	}
	if st == nil {
		return nil, errors.New("otp store required")
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{config: cfg, store: st, now: now}, nil
}

// Issued is the outcome of a successful Issue.
type Issued struct {
	Code   string
	Record store.OTPCode
}

// BlockedError reports that issuance is refused until Until.
type BlockedError struct {
	Until time.Time
}

func (e *BlockedError) Error() string { return "otp blocked until " + e.Until.Format(time.RFC3339) }
func (e *BlockedError) Unwrap() error { return ErrBlocked }

// Issue creates a fresh code for userID and invalidates every earlier one.
// It refuses while the user's latest code is blocked.
func (m *Manager) Issue(ctx context.Context, userID, ip, userAgent string) (*Issued, error) {
	code, err := internal.NewOTP(m.config.Digits)
	if err != nil {
		return nil, err
	}
	salt, err := internal.NewSalt(saltSize)
	if err != nil {
		return nil, err
	}

	now := m.now()
	rec := store.OTPCode{
		ID:        uuid.NewString(),
		UserID:    userID,
		CodeHash:  m.encode(salt, userID, code),
		ExpiresAt: now.Add(m.config.TTL),
		IPAddress: ip,
		UserAgent: userAgent,
		CreatedAt: now,
	}

	err = m.store.WithinTx(ctx, func(tx store.Store) error {
		repo := tx.OTPs()
		if err := repo.LockUser(ctx, userID); err != nil {
			return err
		}

		latest, err := repo.FindLatestByUser(ctx, userID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		case latest.BlockedUntil != nil && now.Before(*latest.BlockedUntil):
			return &BlockedError{Until: *latest.BlockedUntil}
		}

		if _, err := repo.InvalidateAllForUser(ctx, userID, now); err != nil {
			return err
		}
		return repo.Create(ctx, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &Issued{Code: code, Record: rec}, nil
}

// FailureKind classifies a rejected validation.
type FailureKind int

const (
	FailureNone FailureKind = iota
	// FailureNoActive: no unused, unexpired code exists.
	FailureNoActive
	// FailureMismatch: wrong code, attempts remain.
	FailureMismatch
	// FailureBlocked: the code is blocked or was blocked by this attempt.
	FailureBlocked
	// FailureConsumed: a concurrent caller consumed or blocked the code first.
	FailureConsumed
	FailureStore
)

// ValidateResult carries the outcome of Validate.
type ValidateResult struct {
	Failure           FailureKind
	AttemptsRemaining int
	BlockedUntil      time.Time
	CodeID            string
	Err               error
}

// Validate checks code against the latest active code of userID. Every
// mismatch increments the attempt counter atomically; the attempt that
// reaches MaxAttempts blocks the code.
func (m *Manager) Validate(ctx context.Context, userID, code string) ValidateResult {
	now := m.now()
	repo := m.store.OTPs()

	rec, err := repo.FindLatestActiveByUser(ctx, userID, now)
	if errors.Is(err, store.ErrNotFound) {
		return ValidateResult{Failure: FailureNoActive}
	}
	if err != nil {
		return ValidateResult{Failure: FailureStore, Err: err}
	}

	if rec.BlockedUntil != nil {
		return ValidateResult{Failure: FailureBlocked, BlockedUntil: *rec.BlockedUntil, CodeID: rec.ID}
	}
	if rec.AttemptCount >= m.config.MaxAttempts {
		return ValidateResult{Failure: FailureBlocked, BlockedUntil: now.Add(m.config.BlockDuration), CodeID: rec.ID}
	}

	if !m.matches(rec.CodeHash, userID, strings.TrimSpace(code)) {
		count, err := repo.IncrementAttempt(ctx, rec.ID)
		if err != nil {
			return ValidateResult{Failure: FailureStore, Err: err, CodeID: rec.ID}
		}
		if count < m.config.MaxAttempts {
			return ValidateResult{
				Failure:           FailureMismatch,
				AttemptsRemaining: m.config.MaxAttempts - count,
				CodeID:            rec.ID,
			}
		}
		until := now.Add(m.config.BlockDuration)
		if count == m.config.MaxAttempts {
			if err := repo.SetBlocked(ctx, rec.ID, until); err != nil {
				return ValidateResult{Failure: FailureStore, Err: err, CodeID: rec.ID}
			}
		}
		return ValidateResult{Failure: FailureBlocked, BlockedUntil: until, CodeID: rec.ID}
	}

	used, err := repo.MarkUsed(ctx, rec.ID, now, m.config.MaxAttempts)
	if err != nil {
		return ValidateResult{Failure: FailureStore, Err: err, CodeID: rec.ID}
	}
	if !used {
		return ValidateResult{Failure: FailureConsumed, BlockedUntil: now.Add(m.config.BlockDuration), CodeID: rec.ID}
	}
	return ValidateResult{CodeID: rec.ID}
}

func (m *Manager) mac(salt []byte, userID, code string) []byte {
	h := hmac.New(sha256.New, m.config.Pepper)
	h.Write(salt)
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(code))
	return h.Sum(nil)
}

func (m *Manager) encode(salt []byte, userID, code string) string {
	return fmt.Sprintf("%s$%s",
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(m.mac(salt, userID, code)),
	)
}

func (m *Manager) matches(encoded, userID, code string) bool {
	saltPart, macPart, ok := strings.Cut(encoded, "$")
	if !ok {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(saltPart)
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(macPart)
	if err != nil {
		return false
	}
	return hmac.Equal(m.mac(salt, userID, code), want)
}
