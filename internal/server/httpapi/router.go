package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

type Options struct {
	CORSOrigins []string

	// LoginRateLimit and LoginRateBurst throttle the unauthenticated auth
	// endpoints per client address.
	LoginRateLimit float64
	LoginRateBurst int
}

// NewRouter registers every route on a chi mux.
func NewRouter(h *Handler, o Options) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   o.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	throttle := newClientLimiters(o.LoginRateLimit, o.LoginRateBurst).middleware

	r.Route("/api/auth", func(r chi.Router) {
		r.With(throttle).Post("/login", h.login)
		r.With(throttle).Post("/password-reset", h.requestReset)
		r.With(throttle).Post("/password-reset/confirm", h.confirmReset)
		r.Get("/password-reset/{token}", h.validateResetToken)
	})

	r.Route("/api/accounts", func(r chi.Router) {
		r.Use(h.authenticate)

		r.Get("/", h.listAccounts)
		r.Get("/{id}", h.getAccount)
		r.Patch("/{id}/password", h.changePassword)

		r.Group(func(r chi.Router) {
			r.Use(requireCapability(models.CapManageUsers))

			r.Post("/", h.createAccount)
			r.Get("/search", h.searchAccounts)
			r.Get("/locked", h.listLocked)
			r.Get("/failed-attempts", h.listFailedAttempts)
			r.Get("/stats", h.stats)
			r.Post("/export", h.export)
			r.Put("/{id}", h.updateAccount)
			r.Patch("/{id}/status", h.setStatus)
			r.Post("/{id}/unlock", h.unlock)
		})
	})

	return r
}
