/**
 * @description
 * This file contains the core business logic for the listings-service. The
 * `Service` struct orchestrates listings, entitlements and the upgrade
 * payment flow, coordinating between the database repository, the Nhonga
 * gateway client, the identity provider client and the message broker.
 *
 * Key features:
 * - Quota guard: listing creation is refused once the owner's listing count
 *   reaches their quota (default 1).
 * - Payment initiation and idempotent reconciliation of gateway outcomes.
 * - Admin operations over entitlement records.
 *
 * @dependencies
 * - context, errors, fmt, log: Standard Go libraries.
 * - github.com/google/uuid: For listing identifiers.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/nhongaclient, pkg/identityclient, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rentspot/listings-service/internal/domain"
	"github.com/rentspot/listings-service/internal/store"
	"github.com/rentspot/listings-service/pkg/identityclient"
	"github.com/rentspot/listings-service/pkg/nhongaclient"
	"github.com/rentspot/listings-service/pkg/rabbitmq"
)

var (
	ErrInvalidPhone             = errors.New("invalid mozambican subscriber number")
	ErrUnsupportedPaymentMethod = errors.New("unsupported payment method")
	ErrQuotaExceeded            = errors.New("listing quota exceeded")
	ErrAccountDisabled          = errors.New("account is disabled")
	ErrRateLimited              = errors.New("too many payment attempts")
	ErrInvalidListing           = errors.New("invalid listing payload")
	ErrNotListingOwner          = errors.New("listing does not belong to user")
)

// RateLimiter throttles payment initiation per user. A nil limiter disables
// throttling.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope string, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for listings and upgrades.
type Service struct {
	repo           store.Repository
	gatewayClient  *nhongaclient.Client
	identityClient *identityclient.Client
	eventProducer  rabbitmq.Publisher
	eventExchange  string

	upgradeFeeMZN int64
	quotaCredit   int
	defaultQuota  int

	rateLimiter       RateLimiter
	upgradesPerMinute int
}

// NewService creates a new listings service instance.
func NewService(
	repo store.Repository,
	gateway *nhongaclient.Client,
	identity *identityclient.Client,
	producer rabbitmq.Publisher,
	eventExchange string,
	upgradeFeeMZN int64,
	quotaCredit int,
	defaultQuota int,
) *Service {
	// A nil *EventProducer arriving through the interface is non-nil to ==,
	// so check the concrete pointer too before the first Publish would
	// dereference it.
	if producer == nil {
		producer = &rabbitmq.EventProducerFallback{}
	} else if ep, ok := producer.(*rabbitmq.EventProducer); ok && ep == nil {
		producer = &rabbitmq.EventProducerFallback{}
	}
	if defaultQuota <= 0 {
		defaultQuota = domain.DefaultListingQuota
	}
	return &Service{
		repo:           repo,
		gatewayClient:  gateway,
		identityClient: identity,
		eventProducer:  producer,
		eventExchange:  eventExchange,
		upgradeFeeMZN:  upgradeFeeMZN,
		quotaCredit:    quotaCredit,
		defaultQuota:   defaultQuota,
	}
}

// SetRateLimiter wires an optional distributed rate limiter for the payment
// initiation endpoint.
func (s *Service) SetRateLimiter(limiter RateLimiter, upgradesPerMinute int) {
	s.rateLimiter = limiter
	s.upgradesPerMinute = upgradesPerMinute
}

// EntitlementSummary combines a user's entitlement with their current listing
// usage for the dashboard.
type EntitlementSummary struct {
	Entitlement   domain.Entitlement `json:"entitlement"`
	ListingsUsed  int                `json:"listings_used"`
	CanCreateMore bool               `json:"can_create_more"`
}

// effectiveEntitlement loads a user's entitlement, synthesizing the default
// record when the user has never been written. Returns ErrAccountDisabled for
// disabled accounts.
func (s *Service) effectiveEntitlement(ctx context.Context, userID string) (*domain.Entitlement, error) {
	ent, err := s.repo.GetEntitlement(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrEntitlementNotFound) {
			return &domain.Entitlement{UserID: userID, ListingQuota: s.defaultQuota}, nil
		}
		return nil, fmt.Errorf("failed to load entitlement: %w", err)
	}
	if ent.Disabled {
		return nil, ErrAccountDisabled
	}
	return ent, nil
}

// EntitlementSummary returns the user's quota and usage.
func (s *Service) EntitlementSummary(ctx context.Context, userID string) (*EntitlementSummary, error) {
	ent, err := s.effectiveEntitlement(ctx, userID)
	if err != nil {
		return nil, err
	}
	used, err := s.repo.CountListingsByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count listings: %w", err)
	}
	return &EntitlementSummary{
		Entitlement:   *ent,
		ListingsUsed:  used,
		CanCreateMore: used < ent.ListingQuota,
	}, nil
}

// CanCreateListing reports whether a user still has a free listing slot.
// The check is a read followed by an insert elsewhere, so two concurrent
// creations can both pass it; the worst case is one listing over quota, which
// is an accepted soft bound rather than a hard invariant.
func (s *Service) CanCreateListing(ctx context.Context, userID string) (bool, error) {
	ent, err := s.effectiveEntitlement(ctx, userID)
	if err != nil {
		return false, err
	}
	count, err := s.repo.CountListingsByOwner(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to count listings: %w", err)
	}
	return count < ent.ListingQuota, nil
}

// CreateListing validates the payload, enforces the quota guard and inserts
// the listing.
func (s *Service) CreateListing(ctx context.Context, ownerID string, req domain.CreateListingRequest) (*domain.Listing, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidListing)
	}
	if !domain.ValidListingType(req.ListingType) {
		return nil, fmt.Errorf("%w: listing_type must be rent or sale", ErrInvalidListing)
	}
	if req.PriceMZN <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidListing)
	}

	ok, err := s.CanCreateListing(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrQuotaExceeded
	}

	listing := &domain.Listing{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		City:        strings.TrimSpace(req.City),
		PriceMZN:    req.PriceMZN,
		ListingType: req.ListingType,
		Status:      domain.ListingStatusActive,
	}
	if err := s.repo.CreateListing(ctx, listing); err != nil {
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}

	log.Printf("level=info component=service flow=listing_create msg=\"listing created\" listing_id=%s owner_id=%s", listing.ID, ownerID)
	return listing, nil
}

// GetListing returns a single listing by id.
func (s *Service) GetListing(ctx context.Context, listingID uuid.UUID) (*domain.Listing, error) {
	return s.repo.GetListingByID(ctx, listingID)
}

// BrowseListings returns active listings matching the filter.
func (s *Service) BrowseListings(ctx context.Context, filter domain.ListingFilter) ([]domain.Listing, error) {
	if filter.ListingType != "" && !domain.ValidListingType(filter.ListingType) {
		return nil, fmt.Errorf("%w: unknown listing_type filter", ErrInvalidListing)
	}
	return s.repo.ListActiveListings(ctx, filter)
}

// MyListings returns every listing owned by the user.
func (s *Service) MyListings(ctx context.Context, ownerID string) ([]domain.Listing, error) {
	return s.repo.ListListingsByOwner(ctx, ownerID)
}

// UpdateListing applies a partial update to a listing owned by the caller.
func (s *Service) UpdateListing(ctx context.Context, listingID uuid.UUID, ownerID string, req domain.UpdateListingRequest) (*domain.Listing, error) {
	listing, err := s.repo.GetListingByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.OwnerID != ownerID {
		return nil, ErrNotListingOwner
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title is required", ErrInvalidListing)
		}
		listing.Title = title
	}
	if req.Description != nil {
		listing.Description = strings.TrimSpace(*req.Description)
	}
	if req.City != nil {
		listing.City = strings.TrimSpace(*req.City)
	}
	if req.PriceMZN != nil {
		if *req.PriceMZN <= 0 {
			return nil, fmt.Errorf("%w: price must be positive", ErrInvalidListing)
		}
		listing.PriceMZN = *req.PriceMZN
	}
	if req.ListingType != nil {
		if !domain.ValidListingType(*req.ListingType) {
			return nil, fmt.Errorf("%w: listing_type must be rent or sale", ErrInvalidListing)
		}
		listing.ListingType = *req.ListingType
	}

	if err := s.repo.UpdateListing(ctx, listing); err != nil {
		return nil, fmt.Errorf("failed to update listing: %w", err)
	}
	return listing, nil
}

// UpdateListingStatus moves a listing into a new status.
func (s *Service) UpdateListingStatus(ctx context.Context, listingID uuid.UUID, ownerID, status string) error {
	if !domain.ValidListingStatus(status) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidListing, status)
	}
	return s.repo.UpdateListingStatus(ctx, listingID, ownerID, status)
}

// DeleteListing removes a listing owned by the caller.
func (s *Service) DeleteListing(ctx context.Context, listingID uuid.UUID, ownerID string) error {
	return s.repo.DeleteListing(ctx, listingID, ownerID)
}

// Admin operations. Authorization happens in the API layer via the role
// claim; these methods trust their caller.

// ListUsers returns every entitlement record for the admin panel.
func (s *Service) ListUsers(ctx context.Context) ([]domain.Entitlement, error) {
	return s.repo.ListEntitlements(ctx)
}

// SetUserQuota applies an admin quota override.
func (s *Service) SetUserQuota(ctx context.Context, userID string, quota int) error {
	if quota < 0 {
		return fmt.Errorf("%w: quota must be >= 0", ErrInvalidListing)
	}
	if err := s.repo.SetListingQuota(ctx, userID, quota); err != nil {
		return fmt.Errorf("failed to set quota: %w", err)
	}
	log.Printf("level=info component=service flow=admin msg=\"quota override applied\" user_id=%s quota=%d", userID, quota)
	return nil
}

// SetUserDisabled toggles a user's disabled flag.
func (s *Service) SetUserDisabled(ctx context.Context, userID string, disabled bool) error {
	if err := s.repo.SetDisabled(ctx, userID, disabled); err != nil {
		return fmt.Errorf("failed to set disabled flag: %w", err)
	}
	log.Printf("level=info component=service flow=admin msg=\"disabled flag updated\" user_id=%s disabled=%t", userID, disabled)
	return nil
}

// DeleteUser hard-deletes a user's entitlement record.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	return s.repo.DeleteEntitlement(ctx, userID)
}
