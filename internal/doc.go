// Package internal contains helper utilities that are intentionally private to otpauth,
// including secure random generation, token digests and device labelling.
//
// # Sub-packages
//
//   - async: bounded background runner for notifications and the logout cascade
//   - audit: audit events, sinks and the async dispatcher
//   - autherr: the error taxonomy shared by flows and the root package
//   - flows: flow orchestrators for every Engine operation
//   - limiters: domain-specific rate limiters (endpoint, quota, cooldown)
//   - metrics: lock-free counters and latency histograms
//   - otp: one-time code issuance and validation
//   - rate: core Redis-backed sliding window primitives
//   - security: configuration posture report
//
// # What this package must NOT do
//
//   - Be imported by any package outside the otpauth module.
package internal
