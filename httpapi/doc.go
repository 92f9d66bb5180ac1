// Package httpapi serves the otpauth Engine over HTTP with chi.
//
// Routes live under /api/auth:
//
//	POST   /register              create an unverified account
//	GET    /verify-email?token=   confirm an email address (POST with {"token"} also works)
//	POST   /resend-verification   send a new verification token
//	POST   /login                 step 1: email + password, emails a code
//	POST   /verify-otp            step 2: user_id + otp_code, returns tokens
//	POST   /resend-otp            send a new code
//	POST   /refresh               new access token from the refresh cookie or body
//	POST   /logout                revoke the refresh token and its session
//	GET    /me                    claims of the bearer token
//	GET    /sessions              active sessions
//	DELETE /sessions/{id}         end one session
//	DELETE /sessions              end every session
//	POST   /sessions/logout-others end every session except keep_session_id
//
// GET /health reports store and Redis reachability. Errors are mapped from
// otpauth.Kind by [StatusFor]; rate-limited responses carry Retry-After.
package httpapi
