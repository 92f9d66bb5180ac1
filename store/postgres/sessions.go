package postgres

import (
	"context"
	"time"

	"github.com/MrEthical07/otpauth/store"
	"github.com/jackc/pgx/v5"
)

type sessions struct{ q querier }

const sessionColumns = `id, user_id, refresh_token_hash, access_token_jti, device_name, ip_address,
	user_agent, status, expires_at, last_activity, created_at`

func scanSession(row pgx.Row) (*store.Session, error) {
	var (
		s      store.Session
		status string
	)
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.RefreshTokenHash,
		&s.AccessTokenJTI,
		&s.DeviceName,
		&s.IPAddress,
		&s.UserAgent,
		&status,
		&s.ExpiresAt,
		&s.LastActivity,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	s.Status = store.SessionStatus(status)
	return &s, nil
}

func (r sessions) Create(ctx context.Context, s *store.Session) error {
	const q = `
		INSERT INTO sessions (id, user_id, refresh_token_hash, access_token_jti, device_name, ip_address,
			user_agent, status, expires_at, last_activity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.q.Exec(ctx, q,
		s.ID,
		s.UserID,
		s.RefreshTokenHash,
		s.AccessTokenJTI,
		s.DeviceName,
		s.IPAddress,
		s.UserAgent,
		string(s.Status),
		s.ExpiresAt,
		s.LastActivity,
		s.CreatedAt,
	)
	return mapErr(err)
}

func (r sessions) FindActiveByRefreshHash(ctx context.Context, hash string, now time.Time) (*store.Session, error) {
	return scanSession(r.q.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE refresh_token_hash = $1 AND status = 'active' AND expires_at > $2
		FOR UPDATE`, hash, now))
}

func (r sessions) FindByID(ctx context.Context, id string) (*store.Session, error) {
	return scanSession(r.q.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
}

func (r sessions) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]store.Session, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND status = 'active' AND expires_at > $2
		ORDER BY last_activity DESC, id DESC`, userID, now)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []store.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, mapErr(rows.Err())
}

func (r sessions) UpdateLastActivity(ctx context.Context, id string, at time.Time) error {
	tag, err := r.q.Exec(ctx, `UPDATE sessions SET last_activity = $2 WHERE id = $1`, id, at)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(tag)
}

func (r sessions) UpdateAccessJTI(ctx context.Context, id, jti string, now time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE sessions SET access_token_jti = $2
		WHERE id = $1 AND status = 'active' AND expires_at > $3`, id, jti, now)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(tag)
}

func (r sessions) Deactivate(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `UPDATE sessions SET status = 'inactive' WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(tag)
}

func (r sessions) DeactivateAllForUser(ctx context.Context, userID, keepID string) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE sessions SET status = 'inactive'
		WHERE user_id = $1 AND status = 'active' AND id <> $2`, userID, keepID)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}

func (r sessions) DeleteStale(ctx context.Context, expiredBefore, idleBefore time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		DELETE FROM sessions
		WHERE expires_at < $1 OR (status = 'inactive' AND last_activity < $2)`, expiredBefore, idleBefore)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}
