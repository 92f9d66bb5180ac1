package flows

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/MrEthical07/otpauth/internal"
	"github.com/MrEthical07/otpauth/internal/autherr"
	"github.com/MrEthical07/otpauth/jwt"
	"github.com/MrEthical07/otpauth/store"
)

const logoutReason = "logout"

// RunLogout revokes the refresh JTI and the session's current access JTI
// and deactivates the session, all in one transaction. When cascading is on
// it then schedules RunLogoutOtherSessions in the background; that phase
// never affects the result.
func RunLogout(ctx context.Context, refreshToken string, deps Deps) error {
	normalizeDeps(&deps)

	sess, claims, err := deps.runLogout(ctx, strings.TrimSpace(refreshToken))
	if err != nil {
		deps.MetricInc(deps.Metrics.LogoutFailure)
		deps.EmitAudit(ctx, AuditRecord{Event: deps.Events.Logout, Err: err})
		return err
	}

	rec := AuditRecord{Event: deps.Events.Logout, UserID: claims.Subject, Success: true}
	if sess != nil {
		rec.SessionID = sess.ID
	}
	deps.MetricInc(deps.Metrics.LogoutSuccess)
	deps.EmitAudit(ctx, rec)

	if deps.CascadeLogout {
		userID, keep := claims.Subject, rec.SessionID
		scheduled := deps.Background.Submit("logout_other_sessions", func(bctx context.Context) error {
			_, err := RunLogoutOtherSessions(bctx, userID, keep, deps)
			return err
		})
		if !scheduled {
			deps.MetricInc(deps.Metrics.LogoutCascadeFailure)
			deps.Logger.Warn("logout cascade not scheduled", zap.String("user_id", userID))
		}
	}
	return nil
}

func (d *Deps) runLogout(ctx context.Context, refreshToken string) (*store.Session, *jwt.Claims, error) {
	if refreshToken == "" {
		return nil, nil, autherr.Validation("missing_token", "refresh token is required")
	}
	claims, err := d.validate(ctx, refreshToken, jwt.TypeRefresh)
	if err != nil {
		return nil, nil, err
	}

	now := d.Now()
	hash := internal.HashToken(refreshToken)
	var sess *store.Session

	sctx, cancel := d.storeCtx(ctx)
	defer cancel()
	err = d.Store.WithinTx(sctx, func(tx store.Store) error {
		if err := tx.Revocations().Insert(sctx, d.revocation(claims, jwt.TypeRefresh, logoutReason, now)); err != nil {
			return err
		}

		found, err := tx.Sessions().FindActiveByRefreshHash(sctx, hash, now)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if found.AccessTokenJTI != "" {
			err := tx.Revocations().Insert(sctx, store.RevokedToken{
				JTI:       found.AccessTokenJTI,
				TokenType: store.TokenAccess,
				UserID:    found.UserID,
				Reason:    logoutReason,
				RevokedAt: now,
				ExpiresAt: now.Add(d.Tokens.TTL(jwt.TypeAccess) + d.Tokens.Leeway()),
			})
			if err != nil {
				return err
			}
		}
		if err := tx.Sessions().Deactivate(sctx, found.ID); err != nil {
			return err
		}
		sess = found
		return nil
	})
	if err != nil {
		return nil, nil, d.internalError("logout", err, zap.String("user_id", claims.Subject))
	}
	return sess, claims, nil
}

// RunLogoutOtherSessions deactivates every active session of userID except
// keepSessionID. Access tokens of those sessions are not revoked and stay
// valid until they expire.
func RunLogoutOtherSessions(ctx context.Context, userID, keepSessionID string, deps Deps) (int64, error) {
	normalizeDeps(&deps)

	sctx, cancel := deps.storeCtx(ctx)
	n, err := deps.Store.Sessions().DeactivateAllForUser(sctx, userID, keepSessionID)
	cancel()
	if err != nil {
		deps.MetricInc(deps.Metrics.LogoutCascadeFailure)
		return 0, deps.internalError("deactivate other sessions", err, zap.String("user_id", userID))
	}

	deps.MetricInc(deps.Metrics.LogoutCascade)
	deps.EmitAudit(ctx, AuditRecord{
		Event:     deps.Events.LogoutCascade,
		UserID:    userID,
		SessionID: keepSessionID,
		Success:   true,
		Metadata:  map[string]string{"deactivated": strconv.FormatInt(n, 10)},
	})
	return n, nil
}
