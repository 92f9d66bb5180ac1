// Package limiters provides domain-specific rate limiters built on top of the
// internal/rate primitives.
//
// # Limiters
//
//   - [EndpointLimiter]: per (identity, role, endpoint) sliding window; every
//     call is recorded.
//   - [QuotaLimiter]: per-user quota recording admitted requests only (OTP
//     requests, verification resends).
//   - [Cooldown]: single-holder hold between consecutive sends.
//
// All limiters are nil-safe: calling any method on a nil receiver admits the
// request.
//
// # Architecture boundaries
//
// Each limiter owns its own Redis key namespace. Policy thresholds come from
// config structs supplied at construction time.
//
// # What this package must NOT do
//
//   - Import otpauth or any sibling internal package except internal/rate.
//   - Make policy decisions beyond counting; flow functions decide consequences.
package limiters
