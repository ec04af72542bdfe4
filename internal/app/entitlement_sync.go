package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rentspot/listings-service/internal/domain"
)

// SyncEntitlements performs one full re-fetch of the identity provider's
// account list and mirrors email, name and disabled state into local
// entitlement rows. The provider has no change feed for account metadata, so
// this runs as a scheduled job rather than a subscription. Quota values are
// never touched by the sync; the upsert writes them only for brand-new rows.
func (s *Service) SyncEntitlements(ctx context.Context) (int, error) {
	if s.identityClient == nil {
		return 0, fmt.Errorf("identity client not configured")
	}

	accounts, err := s.identityClient.ListAccounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list identity accounts: %w", err)
	}

	synced := 0
	for _, account := range accounts {
		if account.ID == "" {
			continue
		}
		ent := &domain.Entitlement{
			UserID:       account.ID,
			Email:        account.Email,
			Name:         account.Name,
			ListingQuota: s.defaultQuota,
			Disabled:     account.Disabled,
		}
		if err := s.repo.UpsertEntitlement(ctx, ent); err != nil {
			log.Printf("level=warn component=service flow=entitlement_sync msg=\"upsert failed\" user_id=%s err=%v", account.ID, err)
			continue
		}
		synced++
	}

	log.Printf("level=info component=service flow=entitlement_sync msg=\"sync complete\" fetched=%d synced=%d", len(accounts), synced)
	return synced, nil
}

// RunEntitlementSync runs SyncEntitlements on a fixed interval until the
// context is cancelled. Intended to be started as a goroutine from main.
func (s *Service) RunEntitlementSync(ctx context.Context, interval time.Duration) {
	if s.identityClient == nil {
		log.Println("level=warn component=service flow=entitlement_sync msg=\"identity client not configured; sync disabled\"")
		return
	}
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("level=info component=service flow=entitlement_sync msg=\"sync loop stopped\"")
			return
		case <-ticker.C:
			syncCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			if _, err := s.SyncEntitlements(syncCtx); err != nil {
				log.Printf("level=warn component=service flow=entitlement_sync msg=\"sync run failed\" err=%v", err)
			}
			cancel()
		}
	}
}
