package http

import (
	"net/http"
	"time"

	"identity/internal/httpx"
	"identity/internal/jwtsigner"
	"identity/internal/observability/middleware"
	"identity/internal/service"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the identity API over the four services.
type Handler struct {
	Auth      service.AuthService
	Sessions  service.SessionService
	TwoFactor service.TwoFactorService
	Account   service.AccountService
	Signer    *jwtsigner.Signer
	AccessTTL time.Duration
}

type RouterConfig struct {
	CORSOrigins []string
	// RateLimitPerMinute caps requests per client address; zero disables it.
	RateLimitPerMinute int
	// TrustProxy rewrites the client address from forwarding headers.
	// Leave it off unless a proxy in front overwrites them.
	TrustProxy bool
	// Gatherer backs /metrics; nil serves the default registry.
	Gatherer prometheus.Gatherer
}

func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	if cfg.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.WithRequestAndTrace)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	if cfg.RateLimitPerMinute > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimitPerMinute, time.Minute))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   originsOrAny(cfg.CORSOrigins),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID", "X-Trace-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Trace-ID"},
		AllowCredentials: len(cfg.CORSOrigins) > 0,
		MaxAge:           300,
	}))
	r.Use(httpx.LogRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/v1/auth", func(r chi.Router) {
		r.Get("/jwks", h.jwks)
		r.Post("/register", h.register)
		r.Post("/verify-email", h.verifyEmail)
		r.Post("/login", h.login)
		r.Post("/refresh", h.refresh)
		r.Post("/logout", h.logout)
		r.Post("/email/confirm", h.confirmEmailChange)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.requireAccess)

		r.Route("/v1/me", func(r chi.Router) {
			r.Get("/", h.currentUser)
			r.Patch("/", h.updateProfile)
			r.Post("/password", h.changePassword)
			r.Post("/email", h.requestEmailChange)
		})
		r.Route("/v1/devices", func(r chi.Router) {
			r.Get("/", h.listDevices)
			r.Delete("/{deviceID}", h.revokeDevice)
			r.Post("/logout-others", h.logoutOthers)
		})
		r.Route("/v1/2fa", func(r chi.Router) {
			r.Post("/setup", h.twoFactorSetup)
			r.Post("/confirm", h.twoFactorConfirm)
		})
	})

	return r
}

// originsOrAny treats an empty list as "allow any origin". Credentials are
// only sent to origins that were named.
func originsOrAny(in []string) []string {
	if len(in) == 0 {
		return []string{"*"}
	}
	return in
}
