/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the listings-service needs. The interface decouples the business
 * logic from the PostgreSQL implementation so that the quota guard and the
 * payment reconciler can be exercised against in-memory stubs in tests.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For listing identifiers.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/rentspot/listings-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Entitlement methods
	GetEntitlement(ctx context.Context, userID string) (*domain.Entitlement, error)
	UpsertEntitlement(ctx context.Context, ent *domain.Entitlement) error
	SetListingQuota(ctx context.Context, userID string, quota int) error
	SetDisabled(ctx context.Context, userID string, disabled bool) error
	DeleteEntitlement(ctx context.Context, userID string) error
	ListEntitlements(ctx context.Context) ([]domain.Entitlement, error)

	// ApplyQuotaCredit is the idempotency guard for payment reconciliation.
	// It atomically records the transaction id in the credited ledger and, only
	// when that record is new, raises the user's quota by delta. The applied
	// return is false when the transaction id had already been credited.
	ApplyQuotaCredit(ctx context.Context, transactionID, userID string, delta int) (newQuota int, applied bool, err error)

	// Listing methods
	CreateListing(ctx context.Context, listing *domain.Listing) error
	GetListingByID(ctx context.Context, listingID uuid.UUID) (*domain.Listing, error)
	ListListingsByOwner(ctx context.Context, ownerID string) ([]domain.Listing, error)
	ListActiveListings(ctx context.Context, filter domain.ListingFilter) ([]domain.Listing, error)
	UpdateListing(ctx context.Context, listing *domain.Listing) error
	UpdateListingStatus(ctx context.Context, listingID uuid.UUID, ownerID, status string) error
	DeleteListing(ctx context.Context, listingID uuid.UUID, ownerID string) error
	CountListingsByOwner(ctx context.Context, ownerID string) (int, error)
}
