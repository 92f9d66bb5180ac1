package postgres

import (
	"context"
	"time"

	"github.com/MrEthical07/otpauth/store"
)

type otps struct{ q querier }

const otpColumns = `id, user_id, code_hash, expires_at, attempt_count, used_at, blocked_until,
	ip_address, user_agent, created_at`

func (r otps) LockUser(ctx context.Context, userID string) error {
	_, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID)
	return mapErr(err)
}

func (r otps) Create(ctx context.Context, c *store.OTPCode) error {
	const q = `
		INSERT INTO otp_codes (id, user_id, code_hash, expires_at, attempt_count, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $7)`
	_, err := r.q.Exec(ctx, q, c.ID, c.UserID, c.CodeHash, c.ExpiresAt, c.IPAddress, c.UserAgent, c.CreatedAt)
	return mapErr(err)
}

func (r otps) scanOne(ctx context.Context, query string, args ...any) (*store.OTPCode, error) {
	var c store.OTPCode
	err := r.q.QueryRow(ctx, query, args...).Scan(
		&c.ID,
		&c.UserID,
		&c.CodeHash,
		&c.ExpiresAt,
		&c.AttemptCount,
		&c.UsedAt,
		&c.BlockedUntil,
		&c.IPAddress,
		&c.UserAgent,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r otps) FindLatestActiveByUser(ctx context.Context, userID string, now time.Time) (*store.OTPCode, error) {
	return r.scanOne(ctx, `
		SELECT `+otpColumns+` FROM otp_codes
		WHERE user_id = $1 AND used_at IS NULL AND expires_at > $2
		ORDER BY seq DESC LIMIT 1`, userID, now)
}

func (r otps) FindLatestByUser(ctx context.Context, userID string) (*store.OTPCode, error) {
	return r.scanOne(ctx, `
		SELECT `+otpColumns+` FROM otp_codes
		WHERE user_id = $1
		ORDER BY seq DESC LIMIT 1`, userID)
}

func (r otps) MarkUsed(ctx context.Context, id string, at time.Time, maxAttempts int) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE otp_codes SET used_at = $2
		WHERE id = $1 AND used_at IS NULL AND blocked_until IS NULL AND attempt_count < $3`,
		id, at, maxAttempts)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r otps) IncrementAttempt(ctx context.Context, id string) (int, error) {
	var count int
	err := r.q.QueryRow(ctx,
		`UPDATE otp_codes SET attempt_count = attempt_count + 1 WHERE id = $1 RETURNING attempt_count`, id,
	).Scan(&count)
	if err != nil {
		return 0, mapErr(err)
	}
	return count, nil
}

func (r otps) SetBlocked(ctx context.Context, id string, until time.Time) error {
	tag, err := r.q.Exec(ctx, `UPDATE otp_codes SET blocked_until = $2 WHERE id = $1`, id, until)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(tag)
}

func (r otps) InvalidateAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx,
		`UPDATE otp_codes SET used_at = $2 WHERE user_id = $1 AND used_at IS NULL`, userID, at)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}

func (r otps) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM otp_codes WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}
