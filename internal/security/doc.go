// Package security summarizes an engine configuration into a posture
// report and flags settings weaker than fixed baselines.
//
// # What this package must NOT do
//
//   - Change configuration; it only reads it.
//   - Expose key material.
package security
