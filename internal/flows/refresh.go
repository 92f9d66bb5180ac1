package flows

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/MrEthical07/otpauth/internal"
	"github.com/MrEthical07/otpauth/internal/autherr"
	"github.com/MrEthical07/otpauth/jwt"
	"github.com/MrEthical07/otpauth/store"
)

// RunRefresh exchanges a refresh token for a new access token and rotates
// the session's access JTI. The refresh token itself is not rotated.
func RunRefresh(ctx context.Context, refreshToken string, deps Deps) (string, error) {
	normalizeDeps(&deps)

	access, sess, err := deps.runRefresh(ctx, strings.TrimSpace(refreshToken))
	if err != nil {
		deps.MetricInc(deps.Metrics.RefreshFailure)
		deps.EmitAudit(ctx, AuditRecord{Event: deps.Events.RefreshFailure, Err: err})
		return "", err
	}

	deps.MetricInc(deps.Metrics.RefreshSuccess)
	deps.EmitAudit(ctx, AuditRecord{
		Event:     deps.Events.RefreshSuccess,
		UserID:    sess.UserID,
		SessionID: sess.ID,
		Success:   true,
	})
	return access, nil
}

func (d *Deps) runRefresh(ctx context.Context, refreshToken string) (string, *store.Session, error) {
	if refreshToken == "" {
		return "", nil, autherr.Validation("missing_token", "refresh token is required")
	}

	claims, verr := d.validate(ctx, refreshToken, jwt.TypeRefresh)
	if verr != nil && !errors.Is(verr, autherr.ErrTokenRevoked) {
		return "", nil, verr
	}

	now := d.Now()
	sctx, cancel := d.storeCtx(ctx)
	sess, err := d.Store.Sessions().FindActiveByRefreshHash(sctx, internal.HashToken(refreshToken), now)
	cancel()
	if errors.Is(err, store.ErrNotFound) {
		return "", nil, autherr.SessionNotFound()
	}
	if err != nil {
		return "", nil, d.internalError("find session by refresh hash", err)
	}
	// The JTI is revoked but the session is still live: a token problem,
	// not a missing session.
	if verr != nil {
		return "", nil, verr
	}
	if sess.UserID != claims.Subject {
		return "", nil, autherr.SessionNotFound()
	}

	access, err := d.Tokens.Issue(claims.Subject, claims.Email, claims.Role, jwt.TypeAccess)
	if err != nil {
		return "", nil, d.internalError("issue access token", err, zap.String("user_id", claims.Subject))
	}

	sctx, cancel = d.storeCtx(ctx)
	err = d.Store.WithinTx(sctx, func(tx store.Store) error {
		if err := tx.Sessions().UpdateAccessJTI(sctx, sess.ID, access.JTI, now); err != nil {
			return err
		}
		return tx.Sessions().UpdateLastActivity(sctx, sess.ID, now)
	})
	cancel()
	if errors.Is(err, store.ErrNotFound) {
		return "", nil, autherr.SessionNotFound()
	}
	if err != nil {
		return "", nil, d.internalError("rotate access jti", err, zap.String("session_id", sess.ID))
	}

	sess.AccessTokenJTI = access.JTI
	sess.LastActivity = now
	return access.Value, sess, nil
}
