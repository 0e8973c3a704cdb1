/**
 * @description
 * This file sets up the HTTP router for the pool service. It defines the API endpoints,
 * associates them with their handlers, and applies middleware for authentication,
 * CORS, logging, panic recovery and timeouts.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: Router and standard middleware.
 * - github.com/go-chi/cors: CORS handling.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the secrets and origins the router needs.
type RouterConfig struct {
	JWTSecret      string
	InternalAPIKey string
	AllowedOrigins []string
}

// NewRouter creates a new Chi router and registers the pool service routes.
func NewRouter(h *Handlers, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(cfg.InternalAPIKey))
		r.Post("/pools/{id}/declare", h.DeclareResultHandler)
		r.Post("/maintenance/run", h.RunMaintenanceHandler)
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		r.Post("/tickets", h.BuyTicketHandler)
		r.Post("/withdrawals", h.RequestWithdrawHandler)
		r.Post("/wallet/top-ups", h.CreateTopUpHandler)
		r.Post("/wallet/top-ups/verify", h.VerifyTopUpHandler)

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleAdmin))
			r.Post("/withdrawals/{id}/approve", h.ApproveWithdrawHandler)
			r.Post("/withdrawals/{id}/execute", h.ExecutePayoutHandler)
			r.Post("/admin/pools", h.CreatePoolHandler)
		})
	})

	return r
}
