// Package middleware adapts otpauth.Engine to net/http.
//
// # Middleware
//
//   - [ClientContext] attaches the caller's IP and User-Agent for the Engine.
//   - [Guard] requires a valid bearer access token and stores its claims.
//   - [RequireRole] restricts a route to some roles, after Guard.
//   - [RateLimit] applies the endpoint sliding window and sets X-RateLimit-*
//     headers.
//
// Guard and RateLimit take small interfaces that *otpauth.Engine satisfies.
//
// # What this package must NOT do
//
//   - Parse or sign JWTs directly.
//   - Talk to Redis or the store.
//   - Decide authentication outcomes beyond what the Engine returns.
package middleware
