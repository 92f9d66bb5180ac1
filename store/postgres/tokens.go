package postgres

import (
	"context"
	"time"

	"github.com/MrEthical07/otpauth/store"
)

type revocations struct{ q querier }

func (r revocations) Insert(ctx context.Context, t store.RevokedToken) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO revoked_tokens (jti, token_type, user_id, reason, revoked_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (jti) DO NOTHING`,
		t.JTI, string(t.TokenType), t.UserID, t.Reason, t.RevokedAt, t.ExpiresAt)
	return mapErr(err)
}

func (r revocations) Exists(ctx context.Context, jti string) (bool, error) {
	var ok bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1)`, jti).Scan(&ok)
	if err != nil {
		return false, mapErr(err)
	}
	return ok, nil
}

func (r revocations) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}

type verifications struct{ q querier }

func (r verifications) Create(ctx context.Context, v *store.EmailVerification) error {
	sent := v.SentCount
	if sent <= 0 {
		sent = 1
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO email_verifications (id, user_id, token_hash, email, expires_at, sent_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.ID, v.UserID, v.TokenHash, v.Email, v.ExpiresAt, sent, v.CreatedAt)
	return mapErr(err)
}

func (r verifications) FindByTokenHash(ctx context.Context, hash string) (*store.EmailVerification, error) {
	var v store.EmailVerification
	err := r.q.QueryRow(ctx, `
		SELECT id, user_id, token_hash, email, expires_at, used_at, sent_count, created_at
		FROM email_verifications WHERE token_hash = $1`, hash).Scan(
		&v.ID,
		&v.UserID,
		&v.TokenHash,
		&v.Email,
		&v.ExpiresAt,
		&v.UsedAt,
		&v.SentCount,
		&v.CreatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &v, nil
}

func (r verifications) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx,
		`UPDATE email_verifications SET used_at = $2 WHERE id = $1 AND used_at IS NULL`, id, at)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r verifications) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx,
		`DELETE FROM email_verifications WHERE used_at IS NULL AND expires_at < $1`, cutoff)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}
