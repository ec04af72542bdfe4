/**
 * @description
 * This file sets up the HTTP router for the listings-service. It defines the
 * API endpoints, associates them with their handlers, and applies middleware.
 * The webhook route is deliberately outside the authentication group: the
 * gateway authenticates itself with the HMAC signature, not a bearer token.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes creates and returns the router for the listings service.
func Routes(h *Handlers, jwksURL string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Gateway webhook: signature-verified, never token-authenticated.
	r.Post("/webhooks/payment", h.PaymentWebhookHandler)

	// Public browse endpoints.
	r.Get("/listings", h.BrowseListingsHandler)
	r.Get("/listings/{id}", h.GetListingHandler)

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		r.Post("/listings", h.CreateListingHandler)
		r.Get("/me/listings", h.MyListingsHandler)
		r.Put("/listings/{id}", h.UpdateListingHandler)
		r.Patch("/listings/{id}/status", h.UpdateListingStatusHandler)
		r.Delete("/listings/{id}", h.DeleteListingHandler)

		r.Get("/me/entitlement", h.MyEntitlementHandler)

		r.Post("/upgrade/payments", h.InitiateUpgradeHandler)
		r.Post("/upgrade/payments/{id}/confirm", h.ConfirmUpgradeHandler)
		r.Get("/upgrade/payments/{id}", h.UpgradeStatusHandler)

		// Admin endpoints, gated on the role claim.
		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)

			r.Get("/admin/users", h.ListUsersHandler)
			r.Put("/admin/users/{id}/quota", h.SetUserQuotaHandler)
			r.Put("/admin/users/{id}/disabled", h.SetUserDisabledHandler)
			r.Delete("/admin/users/{id}", h.DeleteUserHandler)
		})
	})

	return r
}
