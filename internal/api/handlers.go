/**
 * @description
 * This file contains the HTTP handlers for the listing and entitlement
 * endpoints. Handlers parse requests, call the application service and write
 * JSON responses; they own the mapping from service errors to HTTP status
 * codes.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rentspot/listings-service/internal/app"
	"github.com/rentspot/listings-service/internal/domain"
	"github.com/rentspot/listings-service/internal/store"
)

// Handlers holds the application service that handlers will use.
type Handlers struct {
	service       *app.Service
	webhookSecret string
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(service *app.Service, webhookSecret string) *Handlers {
	return &Handlers{service: service, webhookSecret: webhookSecret}
}

// CreateListingHandler publishes a new listing, subject to the quota guard.
func (h *Handlers) CreateListingHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req domain.CreateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	listing, err := h.service.CreateListing(r.Context(), userID, req)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrQuotaExceeded):
			log.Printf("level=info component=api endpoint=create_listing outcome=reject reason=quota_exceeded user_id=%s", userID)
			h.writeJSON(w, http.StatusForbidden, map[string]string{
				"error":   "You have reached your listing limit.",
				"upgrade": "/upgrade/payments",
			})
		case errors.Is(err, app.ErrAccountDisabled):
			h.writeError(w, http.StatusForbidden, "Your account is disabled.")
		case errors.Is(err, app.ErrInvalidListing):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("level=error component=api endpoint=create_listing msg=\"create failed\" user_id=%s err=%v", userID, err)
			h.writeError(w, http.StatusInternalServerError, "Unable to create listing")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, listing)
}

// BrowseListingsHandler is the public browse endpoint with optional filters.
func (h *Handlers) BrowseListingsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.ListingFilter{
		City:        query.Get("city"),
		ListingType: query.Get("type"),
	}
	if v := query.Get("min_price"); v != "" {
		if price, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.MinPriceMZN = price
		}
	}
	if v := query.Get("max_price"); v != "" {
		if price, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.MaxPriceMZN = price
		}
	}
	if v := query.Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			filter.Limit = limit
		}
	}
	if v := query.Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil {
			filter.Offset = offset
		}
	}

	listings, err := h.service.BrowseListings(r.Context(), filter)
	if err != nil {
		if errors.Is(err, app.ErrInvalidListing) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=browse_listings msg=\"query failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load listings")
		return
	}
	if listings == nil {
		listings = []domain.Listing{}
	}
	h.writeJSON(w, http.StatusOK, listings)
}

// GetListingHandler returns one listing by id.
func (h *Handlers) GetListingHandler(w http.ResponseWriter, r *http.Request) {
	listingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid listing id")
		return
	}

	listing, err := h.service.GetListing(r.Context(), listingID)
	if err != nil {
		if errors.Is(err, store.ErrListingNotFound) {
			h.writeError(w, http.StatusNotFound, "Listing not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_listing msg=\"lookup failed\" listing_id=%s err=%v", listingID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load listing")
		return
	}
	h.writeJSON(w, http.StatusOK, listing)
}

// MyListingsHandler returns the authenticated user's listings.
func (h *Handlers) MyListingsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	listings, err := h.service.MyListings(r.Context(), userID)
	if err != nil {
		log.Printf("level=error component=api endpoint=my_listings msg=\"query failed\" user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load listings")
		return
	}
	if listings == nil {
		listings = []domain.Listing{}
	}
	h.writeJSON(w, http.StatusOK, listings)
}

// UpdateListingHandler applies a partial update to an owned listing.
func (h *Handlers) UpdateListingHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}
	listingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid listing id")
		return
	}

	var req domain.UpdateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	listing, err := h.service.UpdateListing(r.Context(), listingID, userID, req)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrListingNotFound):
			h.writeError(w, http.StatusNotFound, "Listing not found")
		case errors.Is(err, app.ErrNotListingOwner):
			h.writeError(w, http.StatusForbidden, "You do not own this listing")
		case errors.Is(err, app.ErrInvalidListing):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("level=error component=api endpoint=update_listing msg=\"update failed\" listing_id=%s err=%v", listingID, err)
			h.writeError(w, http.StatusInternalServerError, "Unable to update listing")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, listing)
}

// UpdateListingStatusHandler moves a listing through its status enum.
func (h *Handlers) UpdateListingStatusHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}
	listingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid listing id")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.UpdateListingStatus(r.Context(), listingID, userID, req.Status); err != nil {
		switch {
		case errors.Is(err, store.ErrListingNotFound):
			h.writeError(w, http.StatusNotFound, "Listing not found")
		case errors.Is(err, app.ErrInvalidListing):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("level=error component=api endpoint=update_listing_status msg=\"update failed\" listing_id=%s err=%v", listingID, err)
			h.writeError(w, http.StatusInternalServerError, "Unable to update listing status")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

// DeleteListingHandler removes an owned listing.
func (h *Handlers) DeleteListingHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}
	listingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid listing id")
		return
	}

	if err := h.service.DeleteListing(r.Context(), listingID, userID); err != nil {
		if errors.Is(err, store.ErrListingNotFound) {
			h.writeError(w, http.StatusNotFound, "Listing not found")
			return
		}
		log.Printf("level=error component=api endpoint=delete_listing msg=\"delete failed\" listing_id=%s err=%v", listingID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to delete listing")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MyEntitlementHandler returns the authenticated user's quota and usage.
func (h *Handlers) MyEntitlementHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	summary, err := h.service.EntitlementSummary(r.Context(), userID)
	if err != nil {
		if errors.Is(err, app.ErrAccountDisabled) {
			h.writeError(w, http.StatusForbidden, "Your account is disabled.")
			return
		}
		log.Printf("level=error component=api endpoint=my_entitlement msg=\"lookup failed\" user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load entitlement")
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// writeJSON is a helper for writing JSON responses.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
