/**
 * @description
 * This file defines the payment domain types for the listing-limit upgrade
 * flow. A payment transaction is not persisted locally beyond the credited
 * ledger entry; the gateway owns the transaction record and its status, and
 * this service references it only by the gateway-issued transaction id.
 *
 */

package domain

// Mobile-money channels accepted by the gateway.
const (
	PaymentMethodMpesa = "mpesa"
	PaymentMethodEmola = "emola"
)

// Gateway-reported transaction statuses. These are not locally-owned fields;
// they mirror what the gateway returns on its status endpoint and webhook.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// InitiateUpgradeRequest is the payload for starting an upgrade payment.
type InitiateUpgradeRequest struct {
	Method string `json:"method"`
	Phone  string `json:"phone"`
}

// UpgradeReceipt is returned to the client after the gateway accepts a
// payment request. The transaction id is the sole reference for later
// confirmation or polling.
type UpgradeReceipt struct {
	TransactionID string `json:"transaction_id"`
	AmountMZN     int64  `json:"amount_mzn"`
	Method        string `json:"method"`
	Phone         string `json:"phone"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

// UpgradeConfirmation reports the outcome of the client-side confirmation
// path for a single transaction.
type UpgradeConfirmation struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Credited      bool   `json:"credited"`
	NewQuota      int    `json:"new_quota,omitempty"`
	ManualReview  bool   `json:"manual_review,omitempty"`
	Message       string `json:"message"`
}

// ValidPaymentMethod reports whether m is a supported mobile-money channel.
func ValidPaymentMethod(m string) bool {
	return m == PaymentMethodMpesa || m == PaymentMethodEmola
}
