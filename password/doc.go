// Package password implements password hashing and verification with Argon2id.
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so the
// caller can re-hash after a successful login. [Argon2.VerifyDummy] lets the
// login flow spend comparable time on unknown accounts.
//
// This package never stores passwords and never logs them.
package password
