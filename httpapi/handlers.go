package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	otpauth "github.com/MrEthical07/otpauth"
	"github.com/MrEthical07/otpauth/middleware"
)

type emailRequest struct {
	Email string `json:"email"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyOTPRequest struct {
	UserID  string `json:"user_id"`
	OTPCode string `json:"otp_code"`
}

type userIDRequest struct {
	UserID string `json:"user_id"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutOthersRequest struct {
	KeepSessionID string `json:"keep_session_id"`
}

type loginStep1Response struct {
	UserID string `json:"user_id"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type meResponse struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req otpauth.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := a.engine.Register(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "registration successful, check your email to verify the account", user)
}

// verifyEmail accepts the token as a query parameter (the link in the
// email) or in a JSON body.
func (a *API) verifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" && r.Method == http.MethodPost {
		var req tokenRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		token = req.Token
	}
	if err := a.engine.VerifyEmail(r.Context(), token); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeMessage(w, "email verified, you can now log in")
}

func (a *API) resendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.engine.ResendVerification(r.Context(), req.Email); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeMessage(w, "verification email sent")
}

func (a *API) loginStep1(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	userID, err := a.engine.LoginStep1(r.Context(), req.Email, req.Password)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "a login code has been sent to your email", loginStep1Response{UserID: userID})
}

func (a *API) loginStep2(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := a.engine.LoginStep2(r.Context(), req.UserID, req.OTPCode)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.setRefreshCookie(w, res.RefreshToken)
	writeData(w, http.StatusOK, "login successful", res)
}

func (a *API) resendOTP(w http.ResponseWriter, r *http.Request) {
	var req userIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.engine.ResendOTP(r.Context(), req.UserID); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeMessage(w, "a new login code has been sent to your email")
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := a.refreshToken(w, r)
	if !ok {
		return
	}
	access, err := a.engine.Refresh(r.Context(), token)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", refreshResponse{
		AccessToken: access,
		ExpiresIn:   int64(a.engine.Config().JWT.AccessTTL.Seconds()),
	})
}

// logout clears the refresh cookie even when the Engine rejects the token,
// so a browser never keeps a dead credential.
func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	token, ok := a.refreshToken(w, r)
	if !ok {
		return
	}
	a.clearRefreshCookie(w)
	if err := a.engine.Logout(r.Context(), token); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeMessage(w, "logged out")
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	out := meResponse{UserID: claims.Subject, Email: claims.Email, Role: claims.Role}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	writeData(w, http.StatusOK, "", out)
}

func (a *API) listSessions(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	sessions, err := a.engine.ListSessions(r.Context(), claims.Subject)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", sessions)
}

func (a *API) invalidateSession(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	if err := a.engine.InvalidateSession(r.Context(), claims.Subject, chi.URLParam(r, "sessionID")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeMessage(w, "session invalidated")
}

func (a *API) invalidateAllSessions(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	if err := a.engine.InvalidateAllSessions(r.Context(), claims.Subject); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.clearRefreshCookie(w)
	writeMessage(w, "all sessions invalidated")
}

func (a *API) logoutOthers(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	var req logoutOthersRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.KeepSessionID) == "" {
		badRequest(w, "keep_session_id is required")
		return
	}
	n, err := a.engine.LogoutOtherSessions(r.Context(), claims.Subject, req.KeepSessionID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "other sessions logged out", map[string]int64{"invalidated": n})
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.Health(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, Envelope{Status: "error", Error: "unavailable", Message: "dependencies unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Status: "ok"})
}

// refreshToken reads the refresh cookie, falling back to a JSON body for
// clients that do not keep cookies.
func (a *API) refreshToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	if c, err := r.Cookie(refreshCookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	var req refreshRequest
	if r.ContentLength == 0 {
		return "", true
	}
	if !decodeJSON(w, r, &req) {
		return "", false
	}
	return req.RefreshToken, true
}

func (a *API) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/api/auth",
		MaxAge:   int(a.refreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *API) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/api/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}
