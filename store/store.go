package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("store: duplicate")
)

// UserRepository persists accounts. Users are never hard-deleted.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user *User) error
	MarkEmailVerified(ctx context.Context, id string, at time.Time) error
	RecordLogin(ctx context.Context, id string, at time.Time) error
	UpdateOTPBlock(ctx context.Context, id string, blockedUntil *time.Time, requestCount int) error
}

// OTPRepository persists one-time codes.
type OTPRepository interface {
	// LockUser serializes code issuance for one user until the enclosing
	// transaction ends.
	LockUser(ctx context.Context, userID string) error
	Create(ctx context.Context, code *OTPCode) error
	// FindLatestActiveByUser returns the newest code that is unused and not
	// expired at now. Blocked codes are returned so callers can report them.
	FindLatestActiveByUser(ctx context.Context, userID string, now time.Time) (*OTPCode, error)
	FindLatestByUser(ctx context.Context, userID string) (*OTPCode, error)
	// MarkUsed consumes the code only when it is unused, unblocked and below
	// maxAttempts. The boolean reports whether this call consumed it.
	MarkUsed(ctx context.Context, id string, at time.Time, maxAttempts int) (bool, error)
	// IncrementAttempt atomically bumps attempt_count and returns the new value.
	IncrementAttempt(ctx context.Context, id string) (int, error)
	SetBlocked(ctx context.Context, id string, until time.Time) error
	InvalidateAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionRepository persists sessions. Sessions are deactivated, not deleted,
// except by retention.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	// FindActiveByRefreshHash returns the active session holding hash. Inside
	// WithinTx the row stays locked until the transaction ends.
	FindActiveByRefreshHash(ctx context.Context, hash string, now time.Time) (*Session, error)
	FindByID(ctx context.Context, id string) (*Session, error)
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]Session, error)
	UpdateLastActivity(ctx context.Context, id string, at time.Time) error
	// UpdateAccessJTI records jti on the session only while it is still
	// active at now; otherwise it returns ErrNotFound.
	UpdateAccessJTI(ctx context.Context, id, jti string, now time.Time) error
	Deactivate(ctx context.Context, id string) error
	// DeactivateAllForUser deactivates every active session of userID except
	// keepID (when non-empty) and returns the number of rows changed.
	DeactivateAllForUser(ctx context.Context, userID, keepID string) (int64, error)
	// DeleteStale removes sessions expired before expiredBefore and inactive
	// sessions idle since before idleBefore.
	DeleteStale(ctx context.Context, expiredBefore, idleBefore time.Time) (int64, error)
}

// RevocationRepository is the append-only JTI blacklist.
type RevocationRepository interface {
	// Insert is idempotent on JTI.
	Insert(ctx context.Context, token RevokedToken) error
	Exists(ctx context.Context, jti string) (bool, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// VerificationRepository persists email verification challenges.
type VerificationRepository interface {
	Create(ctx context.Context, v *EmailVerification) error
	FindByTokenHash(ctx context.Context, hash string) (*EmailVerification, error)
	MarkUsed(ctx context.Context, id string, at time.Time) (bool, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store groups the repositories behind one transactional boundary.
//
// WithinTx runs fn against a Store bound to a single transaction. Writes made
// through tx become visible together when fn returns nil and are discarded
// otherwise. Calling WithinTx on a transactional Store nests.
type Store interface {
	Users() UserRepository
	OTPs() OTPRepository
	Sessions() SessionRepository
	Revocations() RevocationRepository
	Verifications() VerificationRepository
	WithinTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
}
