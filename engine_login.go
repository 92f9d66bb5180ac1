package otpauth

import (
	"context"
)

// LoginStep1 checks email and password and sends a one-time code to the
// account's email. It returns the user id the client presents to
// [Engine.LoginStep2].
//
// An unknown email and a wrong password produce the same error.
func (e *Engine) LoginStep1(ctx context.Context, email, password string) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	return e.flow.LoginStep1(ctx, email, password)
}

// LoginStep2 checks the one-time code and opens a session. After the
// configured number of wrong codes the user is blocked and even the
// correct code is rejected with a rate-limit error until the block ends.
func (e *Engine) LoginStep2(ctx context.Context, userID, otpCode string) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	res, err := e.flow.LoginStep2(ctx, userID, otpCode)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		User:         newUserView(&res.User),
		ExpiresIn:    res.ExpiresIn,
		SessionID:    res.SessionID,
	}, nil
}

// ResendOTP issues a fresh code for a user between the two login steps.
// Resends are spaced by the configured cooldown and share the hourly cap
// with LoginStep1.
func (e *Engine) ResendOTP(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flow.ResendOTP(ctx, userID)
}
