/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Access log: zerolog line per request (hlog)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the back-office frontend
  5. Auth:       Bearer JWT -> tenant scope (everything but /api/health)

ROUTE GROUPS:
  /api/health              Liveness (public)
  /api/policies/*          Policies, schedules, payments, rates
  /api/payments/*          Payment transitions
  /api/commission-rules/*  Rate tables
  /api/commissions/*       Commission listing and transitions
  /api/renewals/*          Renewal workflow
  /api/admin/*             Backfill, renewal sweep, demo scenarios

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Token validation and tenant scoping
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/hlog"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, auth *Authenticator, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(hlog.NewHandler(h.Log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware)

			// Policy routes
			r.Route("/policies", func(r chi.Router) {
				r.Post("/", h.CreatePolicy)
				r.Get("/{id}", h.GetPolicy)
				r.Delete("/{id}", h.PurgePolicy)
				r.Put("/{id}/cadence", h.ChangeCadence)
				r.Put("/{id}/premium", h.UpdatePremium)
				r.Put("/{id}/status", h.SetPolicyStatus)
				r.Put("/{id}/custom-rate", h.SetCustomRate)
				r.Post("/{id}/reconcile", h.ReconcilePolicy)
				r.Get("/{id}/rate", h.ResolveRate)
				r.Get("/{id}/payments", h.ListPayments)
				r.Post("/{id}/payments", h.RecordPayment)
			})

			// Payment routes
			r.Route("/payments", func(r chi.Router) {
				r.Post("/{id}/complete", h.CompletePayment)
				r.Delete("/{id}", h.VoidPayment)
			})

			// Commission routes
			r.Route("/commission-rules", func(r chi.Router) {
				r.Get("/", h.ListRules)
				r.Post("/", h.CreateRule)
			})
			r.Route("/commissions", func(r chi.Router) {
				r.Get("/", h.ListCommissions)
				r.Post("/{id}/paid", h.MarkCommissionPaid)
				r.Post("/{id}/void", h.VoidCommission)
			})

			// Renewal routes
			r.Route("/renewals", func(r chi.Router) {
				r.Get("/{id}", h.GetRenewal)
				r.Put("/{id}", h.UpdateRenewal)
				r.Delete("/{id}", h.DeleteRenewal)
				r.Post("/{id}/process", h.ProcessRenewal)
				r.Post("/{id}/reject", h.RejectRenewal)
			})

			// Admin routes
			r.Route("/admin", func(r chi.Router) {
				r.Post("/commissions/backfill", h.BackfillCommissions)
				r.Post("/renewals/generate", h.GenerateRenewals)
				r.Get("/scenarios", h.ListScenarios)
				r.Post("/scenarios/load", h.LoadScenarioHandler)
			})
		})
	})

	return r
}
