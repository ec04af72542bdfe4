package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rentspot/listings-service/internal/app"
	"github.com/rentspot/listings-service/internal/domain"
	"github.com/rentspot/listings-service/internal/store"
)

// ListUsersHandler returns every entitlement record for the admin panel.
func (h *Handlers) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	ents, err := h.service.ListUsers(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=admin_list_users msg=\"query failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load users")
		return
	}
	if ents == nil {
		ents = []domain.Entitlement{}
	}
	h.writeJSON(w, http.StatusOK, ents)
}

// SetUserQuotaHandler applies an admin quota override.
func (h *Handlers) SetUserQuotaHandler(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "id"))
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "User id is required")
		return
	}

	var req struct {
		ListingQuota int `json:"listing_quota"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.SetUserQuota(r.Context(), userID, req.ListingQuota); err != nil {
		if errors.Is(err, app.ErrInvalidListing) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=admin_set_quota msg=\"update failed\" user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to update quota")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"user_id": userID, "listing_quota": req.ListingQuota})
}

// SetUserDisabledHandler toggles a user's disabled flag.
func (h *Handlers) SetUserDisabledHandler(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "id"))
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "User id is required")
		return
	}

	var req struct {
		Disabled bool `json:"disabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.SetUserDisabled(r.Context(), userID, req.Disabled); err != nil {
		log.Printf("level=error component=api endpoint=admin_set_disabled msg=\"update failed\" user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to update user")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"user_id": userID, "disabled": req.Disabled})
}

// DeleteUserHandler hard-deletes a user's entitlement record.
func (h *Handlers) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "id"))
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "User id is required")
		return
	}

	if err := h.service.DeleteUser(r.Context(), userID); err != nil {
		if errors.Is(err, store.ErrEntitlementNotFound) {
			h.writeError(w, http.StatusNotFound, "User not found")
			return
		}
		log.Printf("level=error component=api endpoint=admin_delete_user msg=\"delete failed\" user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
