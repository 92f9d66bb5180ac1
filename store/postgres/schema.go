package postgres

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id                TEXT PRIMARY KEY,
		email             TEXT NOT NULL,
		name              TEXT NOT NULL DEFAULT '',
		password_hash     TEXT NOT NULL,
		role              TEXT NOT NULL,
		account_status    TEXT NOT NULL DEFAULT 'active',
		email_status      TEXT NOT NULL DEFAULT 'unverified',
		otp_blocked_until TIMESTAMPTZ,
		otp_request_count INTEGER NOT NULL DEFAULT 0,
		last_login_at     TIMESTAMPTZ,
		login_count       INTEGER NOT NULL DEFAULT 0,
		created_at        TIMESTAMPTZ NOT NULL,
		updated_at        TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (lower(email))`,

	`CREATE TABLE IF NOT EXISTS otp_codes (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL REFERENCES users (id),
		code_hash     TEXT NOT NULL,
		expires_at    TIMESTAMPTZ NOT NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		used_at       TIMESTAMPTZ,
		blocked_until TIMESTAMPTZ,
		ip_address    TEXT NOT NULL DEFAULT '',
		user_agent    TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL,
		seq           BIGSERIAL
	)`,
	`CREATE INDEX IF NOT EXISTS otp_codes_user_idx ON otp_codes (user_id, seq DESC)`,
	// At most one unconsumed code per user.
	`CREATE UNIQUE INDEX IF NOT EXISTS otp_codes_one_open_per_user ON otp_codes (user_id) WHERE used_at IS NULL`,

	`CREATE TABLE IF NOT EXISTS sessions (
		id                 TEXT PRIMARY KEY,
		user_id            TEXT NOT NULL REFERENCES users (id),
		refresh_token_hash TEXT NOT NULL UNIQUE,
		access_token_jti   TEXT NOT NULL DEFAULT '',
		device_name        TEXT NOT NULL DEFAULT '',
		ip_address         TEXT NOT NULL DEFAULT '',
		user_agent         TEXT NOT NULL DEFAULT '',
		status             TEXT NOT NULL DEFAULT 'active',
		expires_at         TIMESTAMPTZ NOT NULL,
		last_activity      TIMESTAMPTZ NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS sessions_user_active_idx ON sessions (user_id) WHERE status = 'active'`,

	`CREATE TABLE IF NOT EXISTS revoked_tokens (
		jti        TEXT PRIMARY KEY,
		token_type TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		reason     TEXT NOT NULL DEFAULT '',
		revoked_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS revoked_tokens_expires_idx ON revoked_tokens (expires_at)`,

	`CREATE TABLE IF NOT EXISTS email_verifications (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES users (id),
		token_hash TEXT NOT NULL UNIQUE,
		email      TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		used_at    TIMESTAMPTZ,
		sent_count INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}
