/**
 * @description
 * This file defines the listing domain model and the request/filter types
 * used by the listing endpoints. Listings are conventional marketplace rows;
 * the only rule this service enforces around them is the per-owner quota
 * checked at creation time.
 *
 * @dependencies
 * - time: Standard Go library.
 * - github.com/google/uuid: For listing identifiers.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Listing statuses. "active" listings count toward the owner's quota display;
// the quota guard itself counts every listing the owner still has, so pausing
// a listing does not free a slot.
const (
	ListingStatusActive = "active"
	ListingStatusPaused = "paused"
	ListingStatusRented = "rented"
	ListingStatusSold   = "sold"
)

// Listing types.
const (
	ListingTypeRent = "rent"
	ListingTypeSale = "sale"
)

// Listing is a single published property.
type Listing struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	City        string    `json:"city"`
	PriceMZN    int64     `json:"price_mzn"`
	ListingType string    `json:"listing_type"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateListingRequest is the payload accepted by the create endpoint.
type CreateListingRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	City        string `json:"city"`
	PriceMZN    int64  `json:"price_mzn"`
	ListingType string `json:"listing_type"`
}

// UpdateListingRequest carries the mutable listing fields. Nil fields are
// left untouched.
type UpdateListingRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	City        *string `json:"city"`
	PriceMZN    *int64  `json:"price_mzn"`
	ListingType *string `json:"listing_type"`
}

// ListingFilter narrows the public browse endpoint. Zero values mean "no
// constraint".
type ListingFilter struct {
	City        string
	ListingType string
	MinPriceMZN int64
	MaxPriceMZN int64
	Limit       int
	Offset      int
}

// ValidListingStatus reports whether s is one of the closed status set.
func ValidListingStatus(s string) bool {
	switch s {
	case ListingStatusActive, ListingStatusPaused, ListingStatusRented, ListingStatusSold:
		return true
	}
	return false
}

// ValidListingType reports whether t is one of the closed type set.
func ValidListingType(t string) bool {
	return t == ListingTypeRent || t == ListingTypeSale
}
