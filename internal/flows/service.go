package flows

import (
	"context"

	"github.com/MrEthical07/otpauth/jwt"
	"github.com/MrEthical07/otpauth/store"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	normalizeDeps(&deps)
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Store != nil && s.deps.Tokens != nil && s.deps.OTP != nil && s.deps.Passwords != nil
}

func (s Service) LoginStep1(ctx context.Context, email, password string) (string, error) {
	return RunLoginStep1(ctx, email, password, s.deps)
}

func (s Service) LoginStep2(ctx context.Context, userID, code string) (*LoginResult, error) {
	return RunLoginStep2(ctx, userID, code, s.deps)
}

func (s Service) ResendOTP(ctx context.Context, userID string) error {
	return RunResendOTP(ctx, userID, s.deps)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	return RunRefresh(ctx, refreshToken, s.deps)
}

func (s Service) Logout(ctx context.Context, refreshToken string) error {
	return RunLogout(ctx, refreshToken, s.deps)
}

func (s Service) LogoutOtherSessions(ctx context.Context, userID, keepSessionID string) (int64, error) {
	return RunLogoutOtherSessions(ctx, userID, keepSessionID, s.deps)
}

func (s Service) ListSessions(ctx context.Context, userID string) ([]store.Session, error) {
	return RunListSessions(ctx, userID, s.deps)
}

func (s Service) InvalidateSession(ctx context.Context, userID, sessionID string) error {
	return RunInvalidateSession(ctx, userID, sessionID, s.deps)
}

func (s Service) InvalidateAllSessions(ctx context.Context, userID string) error {
	return RunInvalidateAllSessions(ctx, userID, s.deps)
}

func (s Service) Validate(ctx context.Context, token string, expected jwt.TokenType) (*jwt.Claims, error) {
	return RunValidate(ctx, token, expected, s.deps)
}

func (s Service) RevokeToken(ctx context.Context, token, reason string) error {
	return RunRevokeToken(ctx, token, reason, s.deps)
}

func (s Service) Register(ctx context.Context, req RegisterRequest) (*store.User, error) {
	return RunRegister(ctx, req, s.deps)
}

func (s Service) VerifyEmail(ctx context.Context, token string) error {
	return RunVerifyEmail(ctx, token, s.deps)
}

func (s Service) ResendVerification(ctx context.Context, email string) error {
	return RunResendVerification(ctx, email, s.deps)
}
