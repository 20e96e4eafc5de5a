/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in error logs
  2. RealIP:     Client address from X-Forwarded-For / X-Real-IP
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for a frontend

ROUTE GROUPS:
  /api/policies/*   Policy administration and assignments
  /api/grants/*     Grant administration and request cancellation
  /api/requests     Approval workflow entry point
  /api/approvals/*  Approver actions
  /api/usages/*     Usage ledger
  /api/users/*      Per-user views (grants, usages, balance)
  /healthz          Liveness

SECURITY NOTE:
  No authentication middleware. The actor is read from the X-User-ID header.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// AllowedOrigins for CORS; empty allows any origin.
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", ActorHeader},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/policies", func(r chi.Router) {
			r.Get("/", h.ListPolicies)
			r.Post("/", h.CreatePolicy)
			r.Get("/{id}", h.GetPolicy)
			r.Delete("/{id}", h.DeletePolicy)
			r.Post("/{id}/assignments", h.AssignPolicy)
			r.Delete("/{id}/assignments/{user}", h.RevokeAssignment)
		})

		r.Route("/grants", func(r chi.Router) {
			r.Post("/", h.CreateGrant)
			r.Get("/{id}", h.GetGrant)
			r.Get("/{id}/approvals", h.ListGrantApprovals)
			r.Post("/{id}/revoke", h.RevokeGrant)
			r.Post("/{id}/expire", h.ExpireGrant)
			r.Post("/{id}/exhaust", h.ExhaustGrant)
			r.Post("/{id}/cancel", h.CancelRequest)
		})

		r.Post("/requests", h.RequestVacation)

		r.Route("/approvals", func(r chi.Router) {
			r.Get("/pending", h.ListPendingApprovals)
			r.Post("/{id}/approve", h.ApproveVacation)
			r.Post("/{id}/reject", h.RejectVacation)
		})

		r.Route("/usages", func(r chi.Router) {
			r.Post("/", h.UseVacation)
			r.Get("/{id}", h.GetUsage)
			r.Put("/{id}", h.UpdateUsage)
			r.Delete("/{id}", h.CancelUsage)
		})

		r.Route("/users/{id}", func(r chi.Router) {
			r.Get("/grants", h.ListUserGrants)
			r.Get("/usages", h.ListUserUsages)
			r.Get("/balance", h.GetBalance)
		})

		r.Get("/time-types", h.ListTimeTypes)
	})

	return r
}
