// Package flows contains the orchestration behind every Engine operation.
//
// Each Run* function takes the shared [Deps] by value and coordinates the
// store, the OTP manager, the token manager, the limiters and the
// background runner. Flows hold no state between calls; the Engine owns
// every resource they touch.
//
// Errors returned from flows are always *autherr.Error. Store failures are
// logged here, with their cause, before being reduced to an internal error.
package flows
