// Package jwt issues and verifies the access and refresh tokens of otpauth.
//
// Both token types carry sub, email, role, token_type, iat, exp and a UUID
// jti. Parse checks signature, expiry (with leeway) and token_type only;
// revocation is the caller's concern.
package jwt
