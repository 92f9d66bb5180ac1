package otpauth

import (
	"context"
)

// Refresh exchanges a refresh token for a new access token. The refresh
// token is not rotated.
//
// After a logout the session is gone and Refresh reports
// ErrSessionNotFound; a revoked refresh token whose session is somehow
// still active reports ErrTokenRevoked.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	return e.flow.Refresh(ctx, refreshToken)
}

// Logout revokes the refresh token and the session's current access token
// and deactivates the session in one transaction. With
// Config.Logout.CascadeOtherSessions the user's other sessions are then
// deactivated in the background; that phase never changes the result.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flow.Logout(ctx, refreshToken)
}

// LogoutOtherSessions deactivates every session of userID except
// keepSessionID and returns how many were changed.
func (e *Engine) LogoutOtherSessions(ctx context.Context, userID, keepSessionID string) (int64, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	return e.flow.LogoutOtherSessions(ctx, userID, keepSessionID)
}

func (e *Engine) ListSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	sessions, err := e.flow.ListSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, newSessionInfo(s))
	}
	return out, nil
}

// InvalidateSession deactivates one session owned by userID.
func (e *Engine) InvalidateSession(ctx context.Context, userID, sessionID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flow.InvalidateSession(ctx, userID, sessionID)
}

// InvalidateAllSessions deactivates every session of userID. Access tokens
// already issued for those sessions remain valid until they expire.
func (e *Engine) InvalidateAllSessions(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flow.InvalidateAllSessions(ctx, userID)
}
