/**
 * @description
 * This file contains the HTTP handler for processing incoming webhooks from
 * the Nhonga payment gateway. It is the asynchronous half of payment
 * reconciliation and the only unauthenticated write path in the service, so
 * it is guarded by an HMAC signature over the raw request body.
 *
 * The handler is a small state machine: a delivery is REJECTED on signature
 * failure, IGNORED (but acknowledged) when it carries no completed payment or
 * no correlatable user, and CREDITED through the idempotent credit primitive
 * otherwise. Only a signature failure (401) or a storage failure (500) is a
 * non-2xx answer; everything else returns 200 so the gateway does not retry
 * permanently malformed payloads forever.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha256, encoding/hex: For webhook signature validation.
 * - encoding/json, io, log, net/http: Standard Go libraries.
 * - internal/domain: For the gateway's status constants.
 */

package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/rentspot/listings-service/internal/domain"
)

// signatureHeader is the header the gateway signs its deliveries with.
const signatureHeader = "vendorapay-signature"

// maxWebhookBodyBytes bounds the raw body read on the one unauthenticated
// endpoint. Gateway deliveries are a few hundred bytes.
const maxWebhookBodyBytes = 64 * 1024

// paymentWebhookEvent is the minimum shape of a gateway delivery.
type paymentWebhookEvent struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	CustomData struct {
		UserID string `json:"userId"`
	} `json:"custom_data"`
}

// PaymentWebhookHandler processes gateway payment notifications.
func (h *Handlers) PaymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	// Read the raw body once; the signature is computed over these exact
	// bytes. Re-serializing the parsed JSON before hashing would break
	// verification on any formatting difference.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		log.Printf("level=warn component=api endpoint=payment_webhook msg=\"cannot read body\" err=%v", err)
		http.Error(w, "Cannot read request body", http.StatusBadRequest)
		return
	}

	if !h.webhookSignatureValid(r.Header.Get(signatureHeader), body) {
		log.Printf("level=warn component=api endpoint=payment_webhook outcome=reject reason=bad_signature remote=%s", r.RemoteAddr)
		h.writeError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	var event paymentWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		// Signed but unparsable. Acknowledge so the gateway does not retry a
		// permanently malformed payload.
		log.Printf("level=error component=api endpoint=payment_webhook msg=\"malformed payload acknowledged\" err=%v body=%q", err, string(body))
		h.writeJSON(w, http.StatusOK, map[string]string{"message": "Webhook received"})
		return
	}

	if event.ID == "" {
		// Permanently malformed; a 500 here would make the gateway redeliver
		// the same payload forever.
		log.Printf("level=warn component=api endpoint=payment_webhook outcome=ignore reason=missing_transaction_id user_id=%s status=%s", event.CustomData.UserID, event.Status)
		h.writeJSON(w, http.StatusOK, map[string]string{"message": "Webhook received"})
		return
	}

	if event.CustomData.UserID == "" {
		log.Printf("level=warn component=api endpoint=payment_webhook outcome=ignore reason=missing_user_id transaction_id=%s", event.ID)
		h.writeJSON(w, http.StatusOK, map[string]string{"message": "Webhook received"})
		return
	}

	if event.Status != domain.PaymentStatusCompleted {
		log.Printf("level=info component=api endpoint=payment_webhook outcome=ignore reason=status_not_completed transaction_id=%s status=%s", event.ID, event.Status)
		h.writeJSON(w, http.StatusOK, map[string]string{"message": "Webhook received"})
		return
	}

	newQuota, applied, err := h.service.CreditUpgrade(r.Context(), event.ID, event.CustomData.UserID)
	if err != nil {
		// 500 invites gateway redelivery; the ledger makes the retry safe.
		log.Printf("level=error component=api endpoint=payment_webhook msg=\"credit failed\" transaction_id=%s user_id=%s err=%v", event.ID, event.CustomData.UserID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal storage error")
		return
	}

	if applied {
		log.Printf("level=info component=api endpoint=payment_webhook outcome=credited transaction_id=%s user_id=%s new_quota=%d", event.ID, event.CustomData.UserID, newQuota)
	} else {
		log.Printf("level=info component=api endpoint=payment_webhook outcome=duplicate transaction_id=%s user_id=%s", event.ID, event.CustomData.UserID)
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Webhook processed"})
}

// webhookSignatureValid checks the hex HMAC-SHA256 of the raw body against
// the supplied header. An unset secret is a deployment error and fails
// closed: the endpoint must never silently accept unsigned deliveries.
func (h *Handlers) webhookSignatureValid(supplied string, body []byte) bool {
	if h.webhookSecret == "" {
		log.Println("level=error component=api endpoint=payment_webhook msg=\"webhook secret not configured; rejecting delivery\"")
		return false
	}

	supplied = strings.TrimSpace(supplied)
	if supplied == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expected := mac.Sum(nil)

	suppliedBytes, err := hex.DecodeString(supplied)
	if err != nil {
		return false
	}
	return hmac.Equal(suppliedBytes, expected)
}
