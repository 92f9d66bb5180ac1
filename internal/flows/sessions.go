package flows

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/MrEthical07/otpauth/internal/autherr"
	"github.com/MrEthical07/otpauth/store"
)

// RunListSessions returns the user's active sessions, most recent activity
// first.
func RunListSessions(ctx context.Context, userID string, deps Deps) ([]store.Session, error) {
	normalizeDeps(&deps)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, autherr.Validation("missing_user_id", "user id is required")
	}

	sctx, cancel := deps.storeCtx(ctx)
	sessions, err := deps.Store.Sessions().ListActiveByUser(sctx, userID, deps.Now())
	cancel()
	if err != nil {
		return nil, deps.internalError("list sessions", err, zap.String("user_id", userID))
	}
	return sessions, nil
}

// RunInvalidateSession deactivates one session owned by userID. The
// session's access token is not revoked.
func RunInvalidateSession(ctx context.Context, userID, sessionID string, deps Deps) error {
	normalizeDeps(&deps)
	userID, sessionID = strings.TrimSpace(userID), strings.TrimSpace(sessionID)
	if userID == "" || sessionID == "" {
		return autherr.Validation("missing_session_id", "user id and session id are required")
	}

	sctx, cancel := deps.storeCtx(ctx)
	defer cancel()

	sess, err := deps.Store.Sessions().FindByID(sctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return autherr.New(autherr.KindNotFound, "session_not_found", "session not found", autherr.ErrSessionNotFound)
	}
	if err != nil {
		return deps.internalError("find session", err, zap.String("session_id", sessionID))
	}
	if sess.UserID != userID {
		deps.EmitAudit(ctx, AuditRecord{
			Event:     deps.Events.SessionInvalidated,
			UserID:    userID,
			SessionID: sessionID,
			Err:       autherr.ErrSessionForbidden,
		})
		return autherr.New(autherr.KindAuthorization, "session_forbidden",
			"not allowed to manage this session", autherr.ErrSessionForbidden)
	}

	if err := deps.Store.Sessions().Deactivate(sctx, sess.ID); err != nil {
		return deps.internalError("deactivate session", err, zap.String("session_id", sessionID))
	}

	deps.MetricInc(deps.Metrics.SessionInvalidated)
	deps.EmitAudit(ctx, AuditRecord{
		Event:     deps.Events.SessionInvalidated,
		UserID:    userID,
		SessionID: sessionID,
		Success:   true,
	})
	return nil
}

// RunInvalidateAllSessions deactivates every session of userID. Access
// tokens already handed out stay valid until their natural expiry.
func RunInvalidateAllSessions(ctx context.Context, userID string, deps Deps) error {
	normalizeDeps(&deps)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return autherr.Validation("missing_user_id", "user id is required")
	}

	sctx, cancel := deps.storeCtx(ctx)
	n, err := deps.Store.Sessions().DeactivateAllForUser(sctx, userID, "")
	cancel()
	if err != nil {
		return deps.internalError("deactivate all sessions", err, zap.String("user_id", userID))
	}

	deps.MetricInc(deps.Metrics.SessionInvalidated)
	deps.EmitAudit(ctx, AuditRecord{
		Event:    deps.Events.SessionsCleared,
		UserID:   userID,
		Success:  true,
		Metadata: map[string]string{"deactivated": strconv.FormatInt(n, 10)},
	})
	return nil
}
