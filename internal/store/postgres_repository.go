/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the SQL needed for entitlements, listings and
 * the credited-transactions ledger. The ledger insert in ApplyQuotaCredit is
 * the load-bearing query of the whole service: its conditional insert is what
 * makes webhook redelivery and the client-vs-webhook race safe.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rentspot/listings-service/internal/domain"
)

var (
	ErrEntitlementNotFound = errors.New("entitlement not found")
	ErrListingNotFound     = errors.New("listing not found")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool

	// defaultListingQuota seeds the quota when a credit creates a user's
	// first entitlement row. It must match the service-layer default or an
	// operator override diverges between the two layers.
	defaultListingQuota int
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool, defaultListingQuota int) *PostgresRepository {
	if defaultListingQuota <= 0 {
		defaultListingQuota = domain.DefaultListingQuota
	}
	return &PostgresRepository{db: db, defaultListingQuota: defaultListingQuota}
}

// GetEntitlement retrieves a user's entitlement record. Callers are expected
// to treat ErrEntitlementNotFound as "default quota applies".
func (r *PostgresRepository) GetEntitlement(ctx context.Context, userID string) (*domain.Entitlement, error) {
	var ent domain.Entitlement
	query := `
		SELECT user_id, email, name, listing_quota, disabled, created_at, updated_at
		FROM entitlements
		WHERE user_id = $1
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&ent.UserID,
		&ent.Email,
		&ent.Name,
		&ent.ListingQuota,
		&ent.Disabled,
		&ent.CreatedAt,
		&ent.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrEntitlementNotFound
		}
		return nil, err
	}
	return &ent, nil
}

// UpsertEntitlement creates or refreshes an entitlement row. Quota is only
// written on insert; updates leave it alone so a sync run cannot clobber a
// credit that landed between fetch and write.
func (r *PostgresRepository) UpsertEntitlement(ctx context.Context, ent *domain.Entitlement) error {
	query := `
		INSERT INTO entitlements (user_id, email, name, listing_quota, disabled)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET email = EXCLUDED.email,
		    name = EXCLUDED.name,
		    disabled = EXCLUDED.disabled,
		    updated_at = now()
	`
	_, err := r.db.Exec(ctx, query, ent.UserID, ent.Email, ent.Name, ent.ListingQuota, ent.Disabled)
	return err
}

// SetListingQuota applies an admin quota override, creating the row if the
// user has never been written before.
func (r *PostgresRepository) SetListingQuota(ctx context.Context, userID string, quota int) error {
	query := `
		INSERT INTO entitlements (user_id, listing_quota)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET listing_quota = EXCLUDED.listing_quota,
		    updated_at = now()
	`
	_, err := r.db.Exec(ctx, query, userID, quota)
	return err
}

// SetDisabled toggles the disabled flag for a user.
func (r *PostgresRepository) SetDisabled(ctx context.Context, userID string, disabled bool) error {
	query := `
		INSERT INTO entitlements (user_id, disabled)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET disabled = EXCLUDED.disabled,
		    updated_at = now()
	`
	_, err := r.db.Exec(ctx, query, userID, disabled)
	return err
}

// DeleteEntitlement removes a user's entitlement row. Admin only.
func (r *PostgresRepository) DeleteEntitlement(ctx context.Context, userID string) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM entitlements WHERE user_id = $1", userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntitlementNotFound
	}
	return nil
}

// ListEntitlements returns every entitlement row, newest first, for the
// admin panel.
func (r *PostgresRepository) ListEntitlements(ctx context.Context) ([]domain.Entitlement, error) {
	query := `
		SELECT user_id, email, name, listing_quota, disabled, created_at, updated_at
		FROM entitlements
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ents []domain.Entitlement
	for rows.Next() {
		var ent domain.Entitlement
		if err := rows.Scan(
			&ent.UserID,
			&ent.Email,
			&ent.Name,
			&ent.ListingQuota,
			&ent.Disabled,
			&ent.CreatedAt,
			&ent.UpdatedAt,
		); err != nil {
			return nil, err
		}
		ents = append(ents, ent)
	}
	return ents, rows.Err()
}

// ApplyQuotaCredit applies at most one quota credit per gateway transaction
// id. The ledger insert and the quota bump run in one database transaction:
// the conditional insert is the atomic check-and-set, so two concurrent
// deliveries of the same transaction id cannot both reach the UPDATE. A plain
// read-then-write would lose that race.
func (r *PostgresRepository) ApplyQuotaCredit(ctx context.Context, transactionID, userID string, delta int) (int, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO credited_transactions (transaction_id, user_id, quota_delta)
		VALUES ($1, $2, $3)
		ON CONFLICT (transaction_id) DO NOTHING
	`, transactionID, userID, delta)
	if err != nil {
		return 0, false, fmt.Errorf("failed to record credited transaction: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Already credited by an earlier delivery or the concurrent path.
		var quota int
		err := tx.QueryRow(ctx, "SELECT listing_quota FROM entitlements WHERE user_id = $1", userID).Scan(&quota)
		if err != nil {
			if err == pgx.ErrNoRows {
				quota = r.defaultListingQuota
			} else {
				return 0, false, err
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return 0, false, err
		}
		return quota, false, nil
	}

	// First write for a user creates the row with the default quota before
	// the credit is added on top.
	var newQuota int
	err = tx.QueryRow(ctx, `
		INSERT INTO entitlements (user_id, listing_quota)
		VALUES ($1, $2 + $3)
		ON CONFLICT (user_id) DO UPDATE
		SET listing_quota = entitlements.listing_quota + $3,
		    updated_at = now()
		RETURNING listing_quota
	`, userID, r.defaultListingQuota, delta).Scan(&newQuota)
	if err != nil {
		return 0, false, fmt.Errorf("failed to apply quota credit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, err
	}
	return newQuota, true, nil
}

// CreateListing inserts a new listing row.
func (r *PostgresRepository) CreateListing(ctx context.Context, listing *domain.Listing) error {
	query := `
		INSERT INTO listings (id, owner_id, title, description, city, price_mzn, listing_type, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		listing.ID,
		listing.OwnerID,
		listing.Title,
		listing.Description,
		listing.City,
		listing.PriceMZN,
		listing.ListingType,
		listing.Status,
	).Scan(&listing.CreatedAt, &listing.UpdatedAt)
}

// GetListingByID retrieves a single listing.
func (r *PostgresRepository) GetListingByID(ctx context.Context, listingID uuid.UUID) (*domain.Listing, error) {
	var listing domain.Listing
	query := `
		SELECT id, owner_id, title, description, city, price_mzn, listing_type, status, created_at, updated_at
		FROM listings
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, listingID).Scan(
		&listing.ID,
		&listing.OwnerID,
		&listing.Title,
		&listing.Description,
		&listing.City,
		&listing.PriceMZN,
		&listing.ListingType,
		&listing.Status,
		&listing.CreatedAt,
		&listing.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	return &listing, nil
}

// ListListingsByOwner returns every listing owned by a user, newest first.
func (r *PostgresRepository) ListListingsByOwner(ctx context.Context, ownerID string) ([]domain.Listing, error) {
	query := `
		SELECT id, owner_id, title, description, city, price_mzn, listing_type, status, created_at, updated_at
		FROM listings
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanListings(rows)
}

// ListActiveListings returns publicly browsable listings with optional
// filters applied.
func (r *PostgresRepository) ListActiveListings(ctx context.Context, filter domain.ListingFilter) ([]domain.Listing, error) {
	query := `
		SELECT id, owner_id, title, description, city, price_mzn, listing_type, status, created_at, updated_at
		FROM listings
		WHERE status = 'active'
	`
	args := []interface{}{}
	argN := 1
	if filter.City != "" {
		query += fmt.Sprintf(" AND lower(city) = lower($%d)", argN)
		args = append(args, filter.City)
		argN++
	}
	if filter.ListingType != "" {
		query += fmt.Sprintf(" AND listing_type = $%d", argN)
		args = append(args, filter.ListingType)
		argN++
	}
	if filter.MinPriceMZN > 0 {
		query += fmt.Sprintf(" AND price_mzn >= $%d", argN)
		args = append(args, filter.MinPriceMZN)
		argN++
	}
	if filter.MaxPriceMZN > 0 {
		query += fmt.Sprintf(" AND price_mzn <= $%d", argN)
		args = append(args, filter.MaxPriceMZN)
		argN++
	}

	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d", argN)
	args = append(args, limit)
	argN++
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argN)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanListings(rows)
}

// UpdateListing rewrites the mutable fields of a listing owned by the caller.
func (r *PostgresRepository) UpdateListing(ctx context.Context, listing *domain.Listing) error {
	query := `
		UPDATE listings
		SET title = $1, description = $2, city = $3, price_mzn = $4, listing_type = $5, updated_at = now()
		WHERE id = $6 AND owner_id = $7
	`
	tag, err := r.db.Exec(ctx, query,
		listing.Title,
		listing.Description,
		listing.City,
		listing.PriceMZN,
		listing.ListingType,
		listing.ID,
		listing.OwnerID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrListingNotFound
	}
	return nil
}

// UpdateListingStatus moves a listing through its status enum.
func (r *PostgresRepository) UpdateListingStatus(ctx context.Context, listingID uuid.UUID, ownerID, status string) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE listings SET status = $1, updated_at = now() WHERE id = $2 AND owner_id = $3",
		status, listingID, ownerID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrListingNotFound
	}
	return nil
}

// DeleteListing removes a listing owned by the caller.
func (r *PostgresRepository) DeleteListing(ctx context.Context, listingID uuid.UUID, ownerID string) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM listings WHERE id = $1 AND owner_id = $2", listingID, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrListingNotFound
	}
	return nil
}

// CountListingsByOwner counts every listing a user still has, regardless of
// status. This is the number the quota guard compares against the quota.
func (r *PostgresRepository) CountListingsByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM listings WHERE owner_id = $1", ownerID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func scanListings(rows pgx.Rows) ([]domain.Listing, error) {
	var listings []domain.Listing
	for rows.Next() {
		var listing domain.Listing
		if err := rows.Scan(
			&listing.ID,
			&listing.OwnerID,
			&listing.Title,
			&listing.Description,
			&listing.City,
			&listing.PriceMZN,
			&listing.ListingType,
			&listing.Status,
			&listing.CreatedAt,
			&listing.UpdatedAt,
		); err != nil {
			return nil, err
		}
		listings = append(listings, listing)
	}
	return listings, rows.Err()
}
