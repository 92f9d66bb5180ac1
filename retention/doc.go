// Package retention removes expired auth rows on a cron schedule.
//
// One run deletes OTP codes past their grace period, sessions that expired
// long ago or were deactivated and left idle, unused verification tokens
// past expiry, and revocation entries whose token would have expired
// anyway. User rows are never deleted.
package retention
