/**
 * @description
 * This file defines the entitlement domain model. An entitlement is the
 * authoritative record of how many listings a user may keep published and
 * whether their account is disabled. Rows are created implicitly on the first
 * write for a user (signup sync, admin action, or the first successful
 * payment reconciliation) and are only removed by an admin.
 *
 * @dependencies
 * - time: Standard Go library.
 */

package domain

import "time"

// DefaultListingQuota is the effective quota for a user with no entitlement
// record. New accounts may publish a single listing before upgrading.
const DefaultListingQuota = 1

// Entitlement is the per-user listing quota record, keyed by the identity
// provider's stable user id.
type Entitlement struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	ListingQuota int       `json:"listing_quota"`
	Disabled     bool      `json:"disabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreditedTransaction is one row of the append-only ledger used as the
// idempotency guard for payment reconciliation. A gateway transaction id may
// appear here at most once; its presence means the quota credit for that
// transaction has already been applied.
type CreditedTransaction struct {
	TransactionID string    `json:"transaction_id"`
	UserID        string    `json:"user_id"`
	QuotaDelta    int       `json:"quota_delta"`
	AppliedAt     time.Time `json:"applied_at"`
}
