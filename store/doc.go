// Package store defines the persistent data model of otpauth and the
// repository contracts the engine depends on.
//
// # Drivers
//
//   - store/postgres: pgx-backed driver used in production.
//   - store/memory: process-local driver for tests and the demo binary.
//
// Both drivers honor the same transaction contract: writes made inside
// [Store.WithinTx] are visible together or not at all.
//
// # What this package must NOT do
//
//   - Import the root otpauth package or any flow logic.
//   - Hold plaintext secrets. OTP codes, refresh tokens and verification
//     tokens are stored as hashes only.
package store
