// Package rate provides the Redis primitives behind every quota in otpauth.
//
// # Window semantics
//
// Sliding window on a sorted set: one Lua script trims members scored at or
// before now-window, counts the rest, and inserts now. [Limiter.Allow] records
// every call; [Limiter.Reserve] records admitted calls only. Scores come from
// the injected clock, never from the Redis server.
//
// Single-holder cooldowns use SET NX PX ([Limiter.Acquire]).
//
// # Failure mode
//
// Any Redis error or timeout fails open: the request is admitted, a warning
// is logged and the OnFailOpen hook fires.
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the otpauth module.
package rate
