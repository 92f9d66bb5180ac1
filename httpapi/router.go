package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	otpauth "github.com/MrEthical07/otpauth"
	"github.com/MrEthical07/otpauth/middleware"
)

const (
	maxBodyBytes      = 1 << 16
	refreshCookieName = "refresh_token"
)

// Names passed to the rate-limit middleware. Login, OTP and registration
// routes are limited inside the Engine instead.
const (
	endpointRefresh     = "refresh"
	endpointLogout      = "logout"
	endpointVerifyEmail = "verify_email"
	endpointSessions    = "sessions"
	endpointMe          = "me"
)

// Options configures [NewRouter].
type Options struct {
	Logger *zap.Logger
	// SecureCookies marks the refresh cookie Secure. Turn it off only for
	// plain-HTTP development.
	SecureCookies bool
	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler
	// RequestTimeout bounds each request. Zero means 30s.
	RequestTimeout time.Duration
}

// API holds the handlers for the /api/auth routes.
type API struct {
	engine        *otpauth.Engine
	logger        *zap.Logger
	secureCookies bool
	refreshTTL    time.Duration
}

// NewRouter returns the full HTTP surface of the auth service.
func NewRouter(engine *otpauth.Engine, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	a := &API{
		engine:        engine,
		logger:        logger,
		secureCookies: opts.SecureCookies,
		refreshTTL:    engine.Config().JWT.RefreshTTL,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(timeout))
	r.Use(middleware.ClientContext)

	r.Get("/health", a.health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", a.register)
		r.With(middleware.RateLimit(engine, endpointVerifyEmail)).Get("/verify-email", a.verifyEmail)
		r.With(middleware.RateLimit(engine, endpointVerifyEmail)).Post("/verify-email", a.verifyEmail)
		r.Post("/resend-verification", a.resendVerification)

		r.Post("/login", a.loginStep1)
		r.Post("/verify-otp", a.loginStep2)
		r.Post("/resend-otp", a.resendOTP)

		r.With(middleware.RateLimit(engine, endpointRefresh)).Post("/refresh", a.refresh)
		r.With(middleware.RateLimit(engine, endpointLogout)).Post("/logout", a.logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(engine))

			r.With(middleware.RateLimit(engine, endpointMe)).Get("/me", a.me)
			r.Route("/sessions", func(r chi.Router) {
				r.Use(middleware.RateLimit(engine, endpointSessions))
				r.Get("/", a.listSessions)
				r.Delete("/", a.invalidateAllSessions)
				r.Delete("/{sessionID}", a.invalidateSession)
				r.Post("/logout-others", a.logoutOthers)
			})
		})
	})

	return r
}

func requestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimw.GetReqID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}
