// Package otpauth provides an authentication engine with two-step
// password-plus-OTP login, JWT access and refresh tokens revocable by JTI,
// PostgreSQL-style session records, and Redis sliding-window rate limiting.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// otpauth is the public surface. It exposes [Engine], [Builder], [Config], the [Error]
// taxonomy, and value types (LoginResult, SessionInfo, UserView). Flow orchestration, OTP
// handling, rate limiting, background work and audit dispatch live under internal/ and are
// never exported. Persistence is reached only through the store package interfaces.
//
// # What this package must NOT do
//
//   - Expose Redis keys, OTP hashes or password hashes in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder performs none).
//   - Import any sub-package that re-imports otpauth (no import cycles).
//
// # Failure model
//
// Store failures surface as [KindInternal] errors with a generic message; the cause is
// logged. Limiter failures fail open and are counted. Notification delivery and the logout
// cascade run in the background and never change an operation's result.
package otpauth
