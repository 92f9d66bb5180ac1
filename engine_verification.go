package otpauth

import (
	"context"

	"github.com/MrEthical07/otpauth/internal/flows"
)

// Register creates an unverified account and sends a verification token.
// The account cannot log in until [Engine.VerifyEmail] succeeds.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*UserView, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	user, err := e.flow.Register(ctx, flows.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Role:     req.Role,
	})
	if err != nil {
		return nil, err
	}
	view := newUserView(user)
	return &view, nil
}

// VerifyEmail consumes a verification token. Each token works once.
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flow.VerifyEmail(ctx, token)
}

// ResendVerification sends a new verification token to an unverified
// account, a limited number of times per window.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flow.ResendVerification(ctx, email)
}
