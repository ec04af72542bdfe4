package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rentspot/listings-service/internal/domain"
	"github.com/rentspot/listings-service/internal/store"
	"github.com/rentspot/listings-service/pkg/identityclient"
)

func newSyncService(t *testing.T, repo store.Repository, identityURL string) *Service {
	t.Helper()
	return NewService(repo, nil, identityclient.NewClient(identityURL, "internal-key"), nil, "rentspot.events", 200, 3, 1)
}

type syncRepoStub struct {
	store.Repository

	upserted  []domain.Entitlement
	failUsers map[string]bool
}

func (s *syncRepoStub) UpsertEntitlement(ctx context.Context, ent *domain.Entitlement) error {
	if s.failUsers[ent.UserID] {
		return errors.New("write failed")
	}
	s.upserted = append(s.upserted, *ent)
	return nil
}

func newIdentityServer(t *testing.T, pages map[string][]map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/accounts" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		token := r.URL.Query().Get("page_token")
		accounts := pages[token]
		next := ""
		if token == "" && len(pages) > 1 {
			next = "page2"
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"accounts":        accounts,
			"next_page_token": next,
		})
	}))
}

func TestSyncEntitlements_MirrorsAccounts(t *testing.T) {
	server := newIdentityServer(t, map[string][]map[string]interface{}{
		"": {
			{"id": "user_1", "email": "a@example.com", "name": "Ana", "disabled": false},
			{"id": "user_2", "email": "b@example.com", "name": "Berto", "disabled": true},
			{"id": "", "email": "ghost@example.com"},
		},
	})
	defer server.Close()

	repo := &syncRepoStub{}
	svc := newSyncService(t, repo, server.URL)

	synced, err := svc.SyncEntitlements(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if synced != 2 {
		t.Fatalf("expected 2 synced accounts, got %d", synced)
	}
	if len(repo.upserted) != 2 {
		t.Fatalf("expected 2 upserts, got %d", len(repo.upserted))
	}
	if repo.upserted[0].UserID != "user_1" || repo.upserted[0].Disabled {
		t.Fatalf("unexpected first upsert: %+v", repo.upserted[0])
	}
	if !repo.upserted[1].Disabled {
		t.Fatal("expected disabled flag to be mirrored")
	}
	if repo.upserted[0].ListingQuota != 1 {
		t.Fatalf("expected default quota on upsert payload, got %d", repo.upserted[0].ListingQuota)
	}
}

func TestSyncEntitlements_ContinuesPastFailedUpsert(t *testing.T) {
	server := newIdentityServer(t, map[string][]map[string]interface{}{
		"": {
			{"id": "user_1", "email": "a@example.com"},
			{"id": "user_2", "email": "b@example.com"},
		},
	})
	defer server.Close()

	repo := &syncRepoStub{failUsers: map[string]bool{"user_1": true}}
	svc := newSyncService(t, repo, server.URL)

	synced, err := svc.SyncEntitlements(context.Background())
	if err != nil {
		t.Fatalf("expected partial sync to succeed, got %v", err)
	}
	if synced != 1 {
		t.Fatalf("expected 1 synced account, got %d", synced)
	}
}

func TestSyncEntitlements_WithoutClient(t *testing.T) {
	svc := NewService(&syncRepoStub{}, nil, nil, nil, "rentspot.events", 200, 3, 1)
	if _, err := svc.SyncEntitlements(context.Background()); err == nil {
		t.Fatal("expected an error without an identity client")
	}
}
