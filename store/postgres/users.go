package postgres

import (
	"context"
	"time"

	"github.com/MrEthical07/otpauth/store"
)

type users struct{ q querier }

const userColumns = `id, email, name, password_hash, role, account_status, email_status,
	otp_blocked_until, otp_request_count, last_login_at, login_count, created_at, updated_at`

func (r users) scan(ctx context.Context, query string, arg any) (*store.User, error) {
	var (
		u                         store.User
		role, status, emailStatus string
	)
	err := r.q.QueryRow(ctx, query, arg).Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.PasswordHash,
		&role,
		&status,
		&emailStatus,
		&u.OTPBlockedUntil,
		&u.OTPRequestCount,
		&u.LastLoginAt,
		&u.LoginCount,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	u.Role = store.Role(role)
	u.Status = store.AccountStatus(status)
	u.EmailStatus = store.EmailStatus(emailStatus)
	return &u, nil
}

func (r users) FindByEmail(ctx context.Context, email string) (*store.User, error) {
	return r.scan(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

func (r users) FindByID(ctx context.Context, id string) (*store.User, error) {
	return r.scan(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r users) Create(ctx context.Context, u *store.User) error {
	const q = `
		INSERT INTO users (id, email, name, password_hash, role, account_status, email_status,
			otp_request_count, login_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0, $8, $9)`
	_, err := r.q.Exec(ctx, q,
		u.ID,
		u.Email,
		u.Name,
		u.PasswordHash,
		string(u.Role),
		string(u.Status),
		string(u.EmailStatus),
		u.CreatedAt,
		u.UpdatedAt,
	)
	return mapErr(err)
}

func (r users) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE users SET email_status = 'verified', updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(tag)
}

func (r users) RecordLogin(ctx context.Context, id string, at time.Time) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE users SET last_login_at = $2, login_count = login_count + 1, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(tag)
}

func (r users) UpdateOTPBlock(ctx context.Context, id string, blockedUntil *time.Time, requestCount int) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE users SET otp_blocked_until = $2, otp_request_count = $3 WHERE id = $1`, id, blockedUntil, requestCount)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(tag)
}
