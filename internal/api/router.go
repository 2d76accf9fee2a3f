package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/hackgods/session-scheduling/internal/auth"
	"github.com/hackgods/session-scheduling/internal/scheduling"
)

type RouterConfig struct {
	Providers    *scheduling.ProviderDirectory
	Availability *scheduling.AvailabilityRegistry
	Bookings     *scheduling.BookingScheduler
	Reviews      *scheduling.ReviewService
	Auth         Authenticator
	Logger       *zap.Logger

	HealthChecks   []HealthCheck
	RateLimitRPS   float64
	RateLimitBurst int

	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handlers{
		providers:    cfg.Providers,
		availability: cfg.Availability,
		bookings:     cfg.Bookings,
		reviews:      cfg.Reviews,
		logger:       logger,
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))

	// Health endpoints
	health := NewHealthHandler(cfg.HealthChecks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst, logger))

		// Public reads
		r.Get("/providers", h.searchProviders)
		r.Get("/providers/{id}", h.getProvider)
		r.Get("/providers/{id}/availability", h.listAvailability)
		r.Get("/providers/{id}/reviews", h.listProviderReviews)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(cfg.Auth, logger))

			// Either party
			r.Get("/bookings/{id}", h.getBooking)
			r.Put("/bookings/{id}/cancel", h.cancelBooking)

			r.Group(func(r chi.Router) {
				r.Use(RequireRole(logger, auth.RoleProvider))

				r.Post("/providers", h.createProvider)
				r.Put("/providers/me", h.updateMyProvider)
				r.Post("/availability", h.addAvailability)
				r.Delete("/availability/{id}", h.removeAvailability)
				r.Get("/bookings/provider", h.listProviderBookings)
				r.Put("/bookings/{id}/status", h.setBookingStatus)
			})

			r.Group(func(r chi.Router) {
				r.Use(RequireRole(logger, auth.RoleClient))

				r.Post("/bookings", h.createBooking)
				r.Get("/bookings/client", h.listClientBookings)
				r.Post("/reviews", h.createReview)
				r.Put("/reviews/{id}", h.updateReview)
				r.Delete("/reviews/{id}", h.deleteReview)
			})
		})
	})

	return otelhttp.NewHandler(r, "session-scheduling",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
