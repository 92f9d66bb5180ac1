package store

import "time"

// Role is the authorization role carried by users and tokens.
type Role string

const (
	RoleGuest    Role = "guest"
	RoleCustomer Role = "customer"
	RoleSeller   Role = "seller"
)

// Valid reports whether r is a role a registered user may hold.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleSeller
}

// AccountStatus is the lifecycle state of a user account.
//
// Transitions: active -> disabled (administrative), disabled -> active.
type AccountStatus string

const (
	AccountActive   AccountStatus = "active"
	AccountDisabled AccountStatus = "disabled"
)

// EmailStatus tracks whether the user proved ownership of their email.
//
// Transitions: unverified -> verified (one-way).
type EmailStatus string

const (
	EmailUnverified EmailStatus = "unverified"
	EmailVerified   EmailStatus = "verified"
)

// SessionStatus is the state of one logical login.
//
// Transitions: active -> inactive on logout or invalidation. Inactive is terminal.
type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionInactive SessionStatus = "inactive"
)

// TokenType distinguishes access from refresh tokens.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// OTPState is the derived state of a one-time code at a given instant.
//
// Transitions: valid -> used | expired | blocked. All three are terminal.
type OTPState int

const (
	OTPValid OTPState = iota
	OTPUsed
	OTPExpired
	OTPBlocked
)

func (s OTPState) String() string {
	switch s {
	case OTPValid:
		return "valid"
	case OTPUsed:
		return "used"
	case OTPExpired:
		return "expired"
	case OTPBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// User is a registered account.
type User struct {
	ID              string
	Email           string
	Name            string
	PasswordHash    string
	Role            Role
	Status          AccountStatus
	EmailStatus     EmailStatus
	OTPBlockedUntil *time.Time
	OTPRequestCount int
	LastLoginAt     *time.Time
	LoginCount      int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OTPBlocked reports whether the user is barred from OTP login at now.
func (u User) OTPBlocked(now time.Time) bool {
	return u.OTPBlockedUntil != nil && now.Before(*u.OTPBlockedUntil)
}

// OTPCode is one issued one-time code. Only a keyed hash of the code is kept.
type OTPCode struct {
	ID           string
	UserID       string
	CodeHash     string
	ExpiresAt    time.Time
	AttemptCount int
	UsedAt       *time.Time
	BlockedUntil *time.Time
	IPAddress    string
	UserAgent    string
	CreatedAt    time.Time
}

// State derives the code state at now. Blocked wins over used and expired.
func (c OTPCode) State(now time.Time) OTPState {
	switch {
	case c.BlockedUntil != nil:
		return OTPBlocked
	case c.UsedAt != nil:
		return OTPUsed
	case !now.Before(c.ExpiresAt):
		return OTPExpired
	default:
		return OTPValid
	}
}

// Session is one logical login bound to a refresh token.
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash string
	AccessTokenJTI   string
	DeviceName       string
	IPAddress        string
	UserAgent        string
	Status           SessionStatus
	ExpiresAt        time.Time
	LastActivity     time.Time
	CreatedAt        time.Time
}

// Active reports whether the session may still be used at now.
func (s Session) Active(now time.Time) bool {
	return s.Status == SessionActive && now.Before(s.ExpiresAt)
}

// RevokedToken records a blacklisted JTI until the token's natural expiry.
type RevokedToken struct {
	JTI       string
	TokenType TokenType
	UserID    string
	Reason    string
	RevokedAt time.Time
	ExpiresAt time.Time
}

// EmailVerification is an outstanding email ownership challenge.
type EmailVerification struct {
	ID        string
	UserID    string
	TokenHash string
	Email     string
	ExpiresAt time.Time
	UsedAt    *time.Time
	SentCount int
	CreatedAt time.Time
}
