package handlers

import (
	"net/http"

	"github.com/clasedesurf/reservations/internal/auth"
	"github.com/clasedesurf/reservations/internal/ratelimit"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RateLimitedRoutes are throttled per client IP when a limiter is configured.
var RateLimitedRoutes = []string{
	"POST /reservations",
	"POST /discount-codes/validate",
}

type Handlers struct {
	Auth          *auth.AuthHandler
	Reservations  *ReservationHandler
	Payments      *PaymentHandler
	DiscountCodes *DiscountCodeHandler
	Classes       *ClassHandler
	// Limiter may be nil.
	Limiter *ratelimit.Limiter
}

func secured(o *huma.Operation) {
	o.Security = []map[string][]string{{"bearerAuth": {}}, {"cookieAuth": {}}}
}

func status(code int) func(o *huma.Operation) {
	return func(o *huma.Operation) {
		o.DefaultStatus = code
	}
}

func RegisterRoutes(r *chi.Mux, h Handlers) huma.API {
	huma.NewError = newError

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(h.Auth.Authenticate)
	r.Use(h.Limiter.Middleware)

	// Initialize Huma API
	config := huma.DefaultConfig("Clase de Surf Reservations API", "1.0.0")
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearerAuth": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
		"cookieAuth": {
			Type: "apiKey",
			In:   "cookie",
			Name: auth.CookieName,
		},
	}
	api := humachi.New(r, config)

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	huma.Post(api, "/discount-codes/validate", h.DiscountCodes.HandleValidate)
	huma.Get(api, "/classes/{id}/availability", h.Classes.HandleAvailability)

	// Authenticated routes
	huma.Get(api, "/me", h.Auth.HandleMe, secured)

	huma.Post(api, "/reservations", h.Reservations.HandleCreate, secured, status(http.StatusCreated))
	huma.Get(api, "/reservations", h.Reservations.HandleList, secured)
	huma.Get(api, "/reservations/{id}", h.Reservations.HandleGet, secured)
	huma.Put(api, "/reservations/{id}", h.Reservations.HandleUpdate, secured)

	huma.Get(api, "/payments/{id}", h.Payments.HandleGet, secured)
	huma.Put(api, "/payments/{id}", h.Payments.HandleUpdate, secured)

	huma.Get(api, "/discount-codes", h.DiscountCodes.HandleList, secured)
	huma.Post(api, "/discount-codes", h.DiscountCodes.HandleCreate, secured, status(http.StatusCreated))
	huma.Get(api, "/discount-codes/{id}", h.DiscountCodes.HandleGet, secured)
	huma.Put(api, "/discount-codes/{id}", h.DiscountCodes.HandleUpdate, secured)
	huma.Delete(api, "/discount-codes/{id}", h.DiscountCodes.HandleDelete, secured, status(http.StatusNoContent))

	huma.Delete(api, "/classes/{id}", h.Classes.HandleDelete, secured, status(http.StatusNoContent))

	return api
}
