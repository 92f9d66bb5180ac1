package otpauth

import (
	"time"

	"github.com/MrEthical07/otpauth/jwt"
	"github.com/MrEthical07/otpauth/store"
)

// TokenType distinguishes access from refresh tokens.
type TokenType = jwt.TokenType

const (
	TokenAccess  = jwt.TypeAccess
	TokenRefresh = jwt.TypeRefresh
)

// Claims is the verified payload of a token. Subject is the user id and ID
// is the JTI.
type Claims = jwt.Claims

// Role is the authorization role carried by users and tokens.
type Role = store.Role

const (
	RoleGuest    = store.RoleGuest
	RoleCustomer = store.RoleCustomer
	RoleSeller   = store.RoleSeller
)

// UserView is the client-safe projection of an account. It never carries
// the password hash or OTP bookkeeping.
type UserView struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Name          string     `json:"name"`
	Role          Role       `json:"role"`
	EmailVerified bool       `json:"email_verified"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	LoginCount    int        `json:"login_count"`
	CreatedAt     time.Time  `json:"created_at"`
}

func newUserView(u *store.User) UserView {
	if u == nil {
		return UserView{}
	}
	return UserView{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Role:          u.Role,
		EmailVerified: u.EmailStatus == store.EmailVerified,
		LastLoginAt:   u.LastLoginAt,
		LoginCount:    u.LoginCount,
		CreatedAt:     u.CreatedAt,
	}
}

// LoginResult is returned by [Engine.LoginStep2].
type LoginResult struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	User         UserView `json:"user"`
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64  `json:"expires_in"`
	SessionID string `json:"session_id"`
}

// SessionInfo describes one active session for session management screens.
type SessionInfo struct {
	ID           string    `json:"id"`
	DeviceName   string    `json:"device_name"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	LastActivity time.Time `json:"last_activity"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func newSessionInfo(s store.Session) SessionInfo {
	return SessionInfo{
		ID:           s.ID,
		DeviceName:   s.DeviceName,
		IPAddress:    s.IPAddress,
		UserAgent:    s.UserAgent,
		LastActivity: s.LastActivity,
		CreatedAt:    s.CreatedAt,
		ExpiresAt:    s.ExpiresAt,
	}
}

// RegisterRequest is the input of [Engine.Register]. An empty Role means
// the configured default role.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
}

// RateLimitResult is the outcome of [Engine.CheckRateLimit].
type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// FailOpen is set when Redis could not be reached and the request was
	// admitted anyway.
	FailOpen bool
}
