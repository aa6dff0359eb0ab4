/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Prometheus request counters + latency histogram
  5. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/users/*        Balances and history
  /api/expenses/*     Expense share recording and reversal
  /api/entries/*      Single-entry settlement
  /api/settlements/*  Settlement lifecycle
  /api/reminders      Debt reminders
  /api/scenarios/*    Demo scenarios
  /metrics            Prometheus scrape endpoint

SECURITY NOTE:
  No authentication middleware. The X-Acting-User header is trusted;
  only payer/payee role rules are enforced.

SEE ALSO:
  - handlers.go: Handler implementations
  - metrics.go: Prometheus collectors
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Acting-User"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// User routes
		r.Route("/users/{id}", func(r chi.Router) {
			r.Get("/balances", h.GetBalances)
			r.Get("/history", h.GetHistory)
		})

		// Expense routes
		r.Route("/expenses", func(r chi.Router) {
			r.Post("/", h.RecordExpense)
			r.Delete("/{id}", h.ReverseExpense)
		})

		// Entry routes
		r.Route("/entries", func(r chi.Router) {
			r.Post("/{id}/settle", h.SettleShare)
		})

		// Settlement routes
		r.Route("/settlements", func(r chi.Router) {
			r.Get("/", h.ListSettlements)
			r.Post("/", h.CreateSettlement)
			r.Get("/{id}", h.GetSettlement)
			r.Post("/{id}/confirm", h.transition(h.Service.Lifecycle.Confirm))
			r.Post("/{id}/complete", h.transition(h.Service.Lifecycle.Complete))
			r.Post("/{id}/cancel", h.transition(h.Service.Lifecycle.Cancel))
			r.Post("/{id}/reject", h.transitionWithReason(h.Service.Lifecycle.Reject))
			r.Post("/{id}/dispute", h.transitionWithReason(h.Service.Lifecycle.Dispute))
			r.Post("/{id}/start-processing", h.transition(h.Service.Lifecycle.StartProcessing))
			r.Post("/{id}/finish-processing", h.transition(h.Service.Lifecycle.FinishProcessing))
			r.Post("/{id}/fail-processing", h.transitionWithReason(h.Service.Lifecycle.FailProcessing))
		})

		// Reminder routes
		r.Post("/reminders", h.SendReminder)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.Handler())

	return r
}
