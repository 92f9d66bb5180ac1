package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/otpauth/internal/autherr"
	"github.com/MrEthical07/otpauth/jwt"
	"github.com/MrEthical07/otpauth/store"
)

// RunValidate is the only token validation path: signature, expiry and
// type, then a revocation lookup on every call.
func RunValidate(ctx context.Context, token string, expected jwt.TokenType, deps Deps) (*jwt.Claims, error) {
	normalizeDeps(&deps)

	claims, err := deps.validate(ctx, strings.TrimSpace(token), expected)
	if err != nil {
		deps.MetricInc(deps.Metrics.ValidateFailure)
		return nil, err
	}
	deps.MetricInc(deps.Metrics.ValidateSuccess)
	return claims, nil
}

// validate returns the parsed claims alongside ErrTokenRevoked so callers
// that need the subject of a revoked token can still read it.
func (d *Deps) validate(ctx context.Context, token string, expected jwt.TokenType) (*jwt.Claims, error) {
	if token == "" {
		return nil, autherr.Token(autherr.ErrTokenInvalid)
	}

	claims, err := d.Tokens.Parse(token, expected)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, autherr.Token(autherr.ErrTokenExpired)
	case errors.Is(err, jwt.ErrWrongTokenType):
		return nil, autherr.Token(autherr.ErrTokenWrongType)
	case err != nil:
		return nil, autherr.Token(autherr.ErrTokenInvalid)
	}

	sctx, cancel := d.storeCtx(ctx)
	revoked, err := d.Store.Revocations().Exists(sctx, claims.ID)
	cancel()
	if err != nil {
		return nil, d.internalError("revocation lookup", err, zap.String("jti", claims.ID))
	}
	if revoked {
		return claims, autherr.Token(autherr.ErrTokenRevoked)
	}
	return claims, nil
}

// RunRevokeToken blacklists the JTI of a token that still verifies. Revoking
// an already revoked token succeeds.
func RunRevokeToken(ctx context.Context, token, reason string, deps Deps) error {
	normalizeDeps(&deps)

	typ := jwt.TypeAccess
	claims, err := deps.Tokens.Parse(strings.TrimSpace(token), jwt.TypeAccess)
	if errors.Is(err, jwt.ErrWrongTokenType) {
		typ = jwt.TypeRefresh
		claims, err = deps.Tokens.Parse(strings.TrimSpace(token), jwt.TypeRefresh)
	}
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return autherr.Token(autherr.ErrTokenExpired)
	case err != nil:
		return autherr.Token(autherr.ErrTokenInvalid)
	}

	if reason == "" {
		reason = "revoked"
	}
	rec := deps.revocation(claims, typ, reason, deps.Now())

	sctx, cancel := deps.storeCtx(ctx)
	err = deps.Store.Revocations().Insert(sctx, rec)
	cancel()
	if err != nil {
		return deps.internalError("insert revocation", err, zap.String("jti", claims.ID))
	}

	deps.MetricInc(deps.Metrics.TokenRevoked)
	deps.EmitAudit(ctx, AuditRecord{
		Event:    deps.Events.TokenRevoked,
		UserID:   claims.Subject,
		Success:  true,
		Metadata: map[string]string{"token_type": string(typ), "reason": reason},
	})
	return nil
}

// revocation keeps the row until the token can no longer parse, which is
// exp plus the parser leeway.
func (d *Deps) revocation(claims *jwt.Claims, typ jwt.TokenType, reason string, now time.Time) store.RevokedToken {
	exp := now.Add(d.Tokens.TTL(typ))
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return store.RevokedToken{
		JTI:       claims.ID,
		TokenType: store.TokenType(typ),
		UserID:    claims.Subject,
		Reason:    reason,
		RevokedAt: now,
		ExpiresAt: exp.Add(d.Tokens.Leeway()),
	}
}
