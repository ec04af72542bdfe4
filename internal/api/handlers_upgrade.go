/**
 * @description
 * This file contains the HTTP handlers for the listing-limit upgrade flow:
 * initiating a mobile-money payment, the client-side confirmation path and
 * the status poll. Every gateway or validation failure is mapped to a typed
 * response with an actionable message; nothing from the gateway propagates
 * raw.
 *
 * @dependencies
 * - encoding/json, errors, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain: For service logic and models.
 * - pkg/nhongaclient: For the gateway's typed error.
 */

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
	"github.com/rentspot/listings-service/pkg/nhongaclient"
)

// InitiateUpgradeHandler starts an upgrade payment with the gateway.
func (h *Handlers) InitiateUpgradeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req domain.InitiateUpgradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	receipt, err := h.service.InitiateUpgradePayment(r.Context(), userID, GetAuthEmail(r.Context()), req)
	if err != nil {
		var gatewayErr *nhongaclient.ErrorResponse
		switch {
		case errors.Is(err, app.ErrInvalidPhone):
			h.writeError(w, http.StatusBadRequest, "Invalid phone number. Use a valid Mozambican subscriber number (e.g. 841234567).")
		case errors.Is(err, app.ErrUnsupportedPaymentMethod):
			h.writeError(w, http.StatusBadRequest, "Payment method must be mpesa or emola.")
		case errors.Is(err, app.ErrAccountDisabled):
			h.writeError(w, http.StatusForbidden, "Your account is disabled.")
		case errors.Is(err, app.ErrRateLimited):
			h.writeError(w, http.StatusTooManyRequests, "Too many payment attempts. Please wait a minute and try again.")
		case errors.As(err, &gatewayErr):
			h.writeError(w, http.StatusBadGateway, "The payment service rejected the request. Please try again with a new payment.")
		default:
			log.Printf("level=error component=api endpoint=initiate_upgrade msg=\"initiation failed\" user_id=%s err=%v", userID, err)
			h.writeError(w, http.StatusBadGateway, "Could not reach the payment service. Please try again.")
		}
		return
	}

	h.writeJSON(w, http.StatusAccepted, receipt)
}

// ConfirmUpgradeHandler is the client-side confirmation path for a pending
// transaction. Completed payments are credited through the same idempotent
// primitive the webhook uses; a storage failure comes back as a 202 with
// manual_review set instead of a success or an error.
func (h *Handlers) ConfirmUpgradeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	transactionID := strings.TrimSpace(chi.URLParam(r, "id"))
	if transactionID == "" {
		h.writeError(w, http.StatusBadRequest, "Transaction id is required")
		return
	}

	confirmation, err := h.service.ConfirmUpgradePayment(r.Context(), userID, transactionID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=confirm_upgrade msg=\"status check failed\" user_id=%s transaction_id=%s err=%v", userID, transactionID, err)
		h.writeError(w, http.StatusBadGateway, "Could not verify the payment right now. Your limit will update automatically once the payment is confirmed.")
		return
	}

	status := http.StatusOK
	if confirmation.ManualReview || confirmation.Status == domain.PaymentStatusPending {
		status = http.StatusAccepted
	}
	h.writeJSON(w, status, confirmation)
}

// UpgradeStatusHandler is the status poll pass-through.
func (h *Handlers) UpgradeStatusHandler(w http.ResponseWriter, r *http.Request) {
	transactionID := strings.TrimSpace(chi.URLParam(r, "id"))
	if transactionID == "" {
		h.writeError(w, http.StatusBadRequest, "Transaction id is required")
		return
	}

	status, err := h.service.PaymentStatus(r.Context(), transactionID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=upgrade_status msg=\"status poll failed\" transaction_id=%s err=%v", transactionID, err)
		h.writeError(w, http.StatusBadGateway, "Could not fetch the payment status.")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": status})
}
