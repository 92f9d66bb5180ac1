package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	otpauth "github.com/MrEthical07/otpauth"
	"github.com/MrEthical07/otpauth/middleware"
)

var errInternal = &otpauth.Error{Kind: otpauth.KindInternal, Code: "internal_error", Message: "internal error"}

// Envelope wraps every JSON response.
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	// Error is the machine-readable code of a failed request.
	Error             string `json:"error,omitempty"`
	AttemptsRemaining *int   `json:"attempts_remaining,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Envelope{Status: "success", Message: message, Data: data})
}

func writeMessage(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, Envelope{Status: "success", Message: message})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind otpauth.Kind) int {
	switch kind {
	case otpauth.KindValidation:
		return http.StatusBadRequest
	case otpauth.KindAuthentication, otpauth.KindToken:
		return http.StatusUnauthorized
	case otpauth.KindAuthorization:
		return http.StatusForbidden
	case otpauth.KindNotFound:
		return http.StatusNotFound
	case otpauth.KindConflict:
		return http.StatusConflict
	case otpauth.KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var authErr *otpauth.Error
	if !errors.As(err, &authErr) {
		authErr = errInternal
	}

	status := StatusFor(authErr.Kind)
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	if authErr.Kind == otpauth.KindRateLimit && authErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", middleware.RetryAfterSeconds(authErr.RetryAfter))
	}

	env := Envelope{Status: "error", Error: authErr.Code, Message: authErr.Message}
	if errors.Is(err, otpauth.ErrOTPInvalid) {
		remaining := authErr.AttemptsRemaining
		env.AttemptsRemaining = &remaining
	}
	writeJSON(w, status, env)
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, Envelope{Status: "error", Error: "invalid_request", Message: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		badRequest(w, "request body must be valid JSON")
		return false
	}
	return true
}
