/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/products/*     Product catalog + stock verification
  /api/donations/*    Donation lifecycle (reconciled)
  /api/deliveries/*   Delivery lifecycle (reconciled)
  /api/families/*     Beneficiary families and members
  /api/handlers/*     Staff records

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

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Product routes
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.Get("/{id}", h.GetProduct)
			r.Put("/{id}", h.UpdateProduct)
			r.Delete("/{id}", h.DeleteProduct)
			r.Get("/{id}/verify", h.VerifyProduct)
			r.Post("/{id}/rebuild", h.RebuildProduct)
		})

		// Donation routes
		r.Route("/donations", func(r chi.Router) {
			r.Get("/", h.ListDonations)
			r.Post("/", h.CreateDonation)
			r.Get("/{id}", h.GetDonation)
			r.Put("/{id}", h.UpdateDonation)
			r.Delete("/{id}", h.DeleteDonation)
		})

		// Delivery routes
		r.Route("/deliveries", func(r chi.Router) {
			r.Get("/", h.ListDeliveries)
			r.Post("/", h.CreateDelivery)
			r.Get("/{id}", h.GetDelivery)
			r.Put("/{id}", h.UpdateDelivery)
			r.Delete("/{id}", h.DeleteDelivery)
		})

		// Family routes
		r.Route("/families", func(r chi.Router) {
			r.Get("/", h.ListFamilies)
			r.Post("/", h.CreateFamily)
			r.Get("/{id}", h.GetFamily)
			r.Put("/{id}", h.UpdateFamily)
			r.Delete("/{id}", h.DeleteFamily)
			r.Get("/{id}/members", h.ListFamilyMembers)
			r.Post("/{id}/members", h.CreateFamilyMember)
			r.Delete("/{id}/members/{memberID}", h.DeleteFamilyMember)
		})

		// Handler (staff) routes
		r.Route("/handlers", func(r chi.Router) {
			r.Get("/", h.ListHandlers)
			r.Post("/", h.CreateHandler)
			r.Put("/{id}", h.UpdateHandler)
			r.Delete("/{id}", h.DeleteHandler)
		})
	})

	return r
}
