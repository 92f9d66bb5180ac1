package middleware

import (
	"context"
	"net/http"
	"strings"

	otpauth "github.com/MrEthical07/otpauth"
)

// AccessValidator verifies access tokens. *otpauth.Engine satisfies it.
type AccessValidator interface {
	ValidateAccess(ctx context.Context, token string) (*otpauth.Claims, error)
}

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by [Guard].
func ClaimsFromContext(ctx context.Context) (*otpauth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*otpauth.Claims)
	return claims, ok && claims != nil
}

// WithClaims stores claims the way [Guard] does.
func WithClaims(ctx context.Context, claims *otpauth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// Guard requires a valid bearer access token. Revoked, expired and refresh
// tokens are rejected with 401; a failing revocation lookup is a 500.
func Guard(v AccessValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.ValidateAccess(r.Context(), token)
			if err != nil {
				if otpauth.KindOf(err) == otpauth.KindInternal {
					http.Error(w, "internal error", http.StatusInternalServerError)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole admits requests whose claims carry one of roles. It must run
// after [Guard].
func RequireRole(roles ...otpauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if claims.Role == string(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(r *http.Request) (string, bool) {
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
