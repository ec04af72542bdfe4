package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rentspot/listings-service/internal/domain"
	"github.com/rentspot/listings-service/internal/store"
	"github.com/rentspot/listings-service/pkg/nhongaclient"
	"github.com/rentspot/listings-service/pkg/rabbitmq"
)

type paymentRepoStub struct {
	store.Repository

	entitlement *domain.Entitlement

	creditCalls   int
	creditedTxIDs map[string]bool
	quota         int
	creditErr     error
}

func (s *paymentRepoStub) GetEntitlement(ctx context.Context, userID string) (*domain.Entitlement, error) {
	if s.entitlement == nil {
		return nil, store.ErrEntitlementNotFound
	}
	return s.entitlement, nil
}

func (s *paymentRepoStub) ApplyQuotaCredit(ctx context.Context, transactionID, userID string, delta int) (int, bool, error) {
	s.creditCalls++
	if s.creditErr != nil {
		return 0, false, s.creditErr
	}
	if s.creditedTxIDs == nil {
		s.creditedTxIDs = make(map[string]bool)
	}
	if s.creditedTxIDs[transactionID] {
		return s.quota, false, nil
	}
	s.creditedTxIDs[transactionID] = true
	s.quota += delta
	return s.quota, true, nil
}

type publisherStub struct {
	creditedEvents []rabbitmq.EntitlementCreditedEvent
	publishErr     error
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return p.publishErr
}

func (p *publisherStub) PublishEntitlementCredited(ctx context.Context, exchange string, event rabbitmq.EntitlementCreditedEvent) error {
	if p.publishErr != nil {
		return p.publishErr
	}
	p.creditedEvents = append(p.creditedEvents, event)
	return nil
}

func (p *publisherStub) Close() {}

type rateLimiterStub struct {
	count int
	err   error
}

func (l *rateLimiterStub) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return l.count, 30, l.err
}

func TestNormalizeSubscriberNumber(t *testing.T) {
	tests := []struct {
		name    string
		phone   string
		want    string
		wantErr bool
	}{
		{name: "plain vodacom number", phone: "841234567", want: "841234567"},
		{name: "movitel number", phone: "861234567", want: "861234567"},
		{name: "country code prefix", phone: "+258841234567", want: "841234567"},
		{name: "double zero prefix", phone: "00258851234567", want: "851234567"},
		{name: "spaces stripped", phone: " 84 123 4567 ", want: "841234567"},
		{name: "unknown network prefix", phone: "821234567", wantErr: true},
		{name: "too short", phone: "8412345", wantErr: true},
		{name: "too long", phone: "8412345678", wantErr: true},
		{name: "letters", phone: "84abc4567", wantErr: true},
		{name: "empty", phone: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeSubscriberNumber(tt.phone)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPhone) {
					t.Fatalf("expected ErrInvalidPhone, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

// The gateway client is nil on purpose: a validation failure that still
// reached the gateway would panic the test.
func TestInitiateUpgradePayment_InvalidPhoneSkipsGateway(t *testing.T) {
	svc := NewService(&paymentRepoStub{}, nil, nil, &publisherStub{}, "rentspot.events", 200, 3, 1)

	_, err := svc.InitiateUpgradePayment(context.Background(), "user_1", "u@example.com", domain.InitiateUpgradeRequest{
		Method: domain.PaymentMethodMpesa,
		Phone:  "991234567",
	})
	if !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("expected ErrInvalidPhone, got %v", err)
	}
}

func TestInitiateUpgradePayment_UnsupportedMethodSkipsGateway(t *testing.T) {
	svc := NewService(&paymentRepoStub{}, nil, nil, &publisherStub{}, "rentspot.events", 200, 3, 1)

	_, err := svc.InitiateUpgradePayment(context.Background(), "user_1", "u@example.com", domain.InitiateUpgradeRequest{
		Method: "visa",
		Phone:  "841234567",
	})
	if !errors.Is(err, ErrUnsupportedPaymentMethod) {
		t.Fatalf("expected ErrUnsupportedPaymentMethod, got %v", err)
	}
}

func TestInitiateUpgradePayment_DisabledAccount(t *testing.T) {
	repo := &paymentRepoStub{entitlement: &domain.Entitlement{UserID: "user_1", ListingQuota: 1, Disabled: true}}
	svc := NewService(repo, nil, nil, &publisherStub{}, "rentspot.events", 200, 3, 1)

	_, err := svc.InitiateUpgradePayment(context.Background(), "user_1", "u@example.com", domain.InitiateUpgradeRequest{
		Method: domain.PaymentMethodMpesa,
		Phone:  "841234567",
	})
	if !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestInitiateUpgradePayment_RateLimited(t *testing.T) {
	svc := NewService(&paymentRepoStub{}, nil, nil, &publisherStub{}, "rentspot.events", 200, 3, 1)
	svc.SetRateLimiter(&rateLimiterStub{count: 6}, 5)

	_, err := svc.InitiateUpgradePayment(context.Background(), "user_1", "u@example.com", domain.InitiateUpgradeRequest{
		Method: domain.PaymentMethodEmola,
		Phone:  "871234567",
	})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestInitiateUpgradePayment_LimiterOutageDoesNotBlock(t *testing.T) {
	var gotPayload nhongaclient.MobilePaymentRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "id": "txn_limiter"})
	}))
	defer server.Close()

	svc := NewService(&paymentRepoStub{}, nhongaclient.NewClient(server.URL, "test-key"), nil, &publisherStub{}, "rentspot.events", 200, 3, 1)
	svc.SetRateLimiter(&rateLimiterStub{err: errors.New("redis down")}, 5)

	receipt, err := svc.InitiateUpgradePayment(context.Background(), "user_1", "u@example.com", domain.InitiateUpgradeRequest{
		Method: domain.PaymentMethodMpesa,
		Phone:  "841234567",
	})
	if err != nil {
		t.Fatalf("expected payment to proceed past a limiter outage, got %v", err)
	}
	if receipt.TransactionID != "txn_limiter" {
		t.Fatalf("unexpected transaction id %q", receipt.TransactionID)
	}
}

func TestInitiateUpgradePayment_Success(t *testing.T) {
	var gotAPIKey string
	var gotPayload nhongaclient.MobilePaymentRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/payment/mobile" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAPIKey = r.Header.Get("apiKey")
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "id": "txn_123"})
	}))
	defer server.Close()

	svc := NewService(&paymentRepoStub{}, nhongaclient.NewClient(server.URL, "test-key"), nil, &publisherStub{}, "rentspot.events", 200, 3, 1)

	receipt, err := svc.InitiateUpgradePayment(context.Background(), "user_1", "u@example.com", domain.InitiateUpgradeRequest{
		Method: domain.PaymentMethodMpesa,
		Phone:  "+258841234567",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotAPIKey != "test-key" {
		t.Errorf("expected apiKey header, got %q", gotAPIKey)
	}
	if gotPayload.Amount != 200 {
		t.Errorf("expected fee of 200 MZN, got %d", gotPayload.Amount)
	}
	if gotPayload.Phone != "841234567" {
		t.Errorf("expected normalized phone, got %q", gotPayload.Phone)
	}
	if gotPayload.CustomData.UserID != "user_1" {
		t.Errorf("expected user correlation in custom_data, got %q", gotPayload.CustomData.UserID)
	}
	if receipt.TransactionID != "txn_123" {
		t.Errorf("expected gateway transaction id, got %q", receipt.TransactionID)
	}
	if receipt.Status != domain.PaymentStatusPending {
		t.Errorf("expected pending receipt, got %q", receipt.Status)
	}
}

func TestInitiateUpgradePayment_GatewayRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": "invalid api key"})
	}))
	defer server.Close()

	svc := NewService(&paymentRepoStub{}, nhongaclient.NewClient(server.URL, "wrong-key"), nil, &publisherStub{}, "rentspot.events", 200, 3, 1)

	_, err := svc.InitiateUpgradePayment(context.Background(), "user_1", "u@example.com", domain.InitiateUpgradeRequest{
		Method: domain.PaymentMethodMpesa,
		Phone:  "841234567",
	})
	var gatewayErr *nhongaclient.ErrorResponse
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("expected gateway ErrorResponse, got %v", err)
	}
}

func TestCreditUpgrade_IdempotentAcrossRedeliveries(t *testing.T) {
	repo := &paymentRepoStub{quota: 1}
	producer := &publisherStub{}
	svc := NewService(repo, nil, nil, producer, "rentspot.events", 200, 3, 1)

	quota, applied, err := svc.CreditUpgrade(context.Background(), "txn_1", "user_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !applied || quota != 4 {
		t.Fatalf("expected first delivery to credit to 4, got applied=%t quota=%d", applied, quota)
	}

	// Redelivery of the same transaction id must change nothing.
	quota, applied, err = svc.CreditUpgrade(context.Background(), "txn_1", "user_1")
	if err != nil {
		t.Fatalf("unexpected error on redelivery: %v", err)
	}
	if applied {
		t.Fatal("expected duplicate delivery to be a no-op")
	}
	if quota != 4 {
		t.Fatalf("expected quota to remain 4, got %d", quota)
	}

	if len(producer.creditedEvents) != 1 {
		t.Fatalf("expected exactly one credited event, got %d", len(producer.creditedEvents))
	}
	event := producer.creditedEvents[0]
	if event.TransactionID != "txn_1" || event.UserID != "user_1" || event.QuotaDelta != 3 || event.NewQuota != 4 {
		t.Fatalf("unexpected event payload: %+v", event)
	}
}

func TestCreditUpgrade_DistinctTransactionsStack(t *testing.T) {
	repo := &paymentRepoStub{quota: 1}
	svc := NewService(repo, nil, nil, &publisherStub{}, "rentspot.events", 200, 3, 1)

	if _, _, err := svc.CreditUpgrade(context.Background(), "txn_a", "user_1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	quota, applied, err := svc.CreditUpgrade(context.Background(), "txn_b", "user_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !applied || quota != 7 {
		t.Fatalf("expected second purchase to stack to 7, got applied=%t quota=%d", applied, quota)
	}
}

func TestCreditUpgrade_SurvivesNilConcreteProducer(t *testing.T) {
	// A broker-down bootstrap can hand over a nil *EventProducer inside the
	// Publisher interface; the credit path must fall back instead of
	// dereferencing it.
	repo := &paymentRepoStub{quota: 1}
	svc := NewService(repo, nil, nil, (*rabbitmq.EventProducer)(nil), "rentspot.events", 200, 3, 1)

	quota, applied, err := svc.CreditUpgrade(context.Background(), "txn_1", "user_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !applied || quota != 4 {
		t.Fatalf("expected credit applied, got applied=%t quota=%d", applied, quota)
	}
}

func TestCreditUpgrade_PublishFailureDoesNotFailCredit(t *testing.T) {
	repo := &paymentRepoStub{quota: 1}
	svc := NewService(repo, nil, nil, &publisherStub{publishErr: errors.New("broker down")}, "rentspot.events", 200, 3, 1)

	quota, applied, err := svc.CreditUpgrade(context.Background(), "txn_1", "user_1")
	if err != nil {
		t.Fatalf("expected credit to survive a publish failure, got %v", err)
	}
	if !applied || quota != 4 {
		t.Fatalf("expected credit applied, got applied=%t quota=%d", applied, quota)
	}
}

func TestCreditUpgrade_RejectsMissingIdentifiers(t *testing.T) {
	repo := &paymentRepoStub{}
	svc := NewService(repo, nil, nil, &publisherStub{}, "rentspot.events", 200, 3, 1)

	if _, _, err := svc.CreditUpgrade(context.Background(), "", "user_1"); err == nil {
		t.Fatal("expected error for empty transaction id")
	}
	if _, _, err := svc.CreditUpgrade(context.Background(), "txn_1", ""); err == nil {
		t.Fatal("expected error for empty user id")
	}
	if repo.creditCalls != 0 {
		t.Fatalf("expected no repository calls, got %d", repo.creditCalls)
	}
}

func newStatusGateway(t *testing.T, status string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/payment/status" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "status": status})
	}))
}

func TestConfirmUpgradePayment_CompletedCredits(t *testing.T) {
	server := newStatusGateway(t, domain.PaymentStatusCompleted)
	defer server.Close()

	repo := &paymentRepoStub{quota: 1}
	svc := NewService(repo, nhongaclient.NewClient(server.URL, "test-key"), nil, &publisherStub{}, "rentspot.events", 200, 3, 1)

	confirmation, err := svc.ConfirmUpgradePayment(context.Background(), "user_1", "txn_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !confirmation.Credited || confirmation.NewQuota != 4 {
		t.Fatalf("expected credit to 4, got %+v", confirmation)
	}
	if confirmation.ManualReview {
		t.Fatal("did not expect manual review on a clean credit")
	}
}

func TestConfirmUpgradePayment_AlreadyCredited(t *testing.T) {
	server := newStatusGateway(t, domain.PaymentStatusCompleted)
	defer server.Close()

	repo := &paymentRepoStub{quota: 1, creditedTxIDs: map[string]bool{"txn_1": true}}
	svc := NewService(repo, nhongaclient.NewClient(server.URL, "test-key"), nil, &publisherStub{}, "rentspot.events", 200, 3, 1)

	confirmation, err := svc.ConfirmUpgradePayment(context.Background(), "user_1", "txn_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if confirmation.Credited {
		t.Fatal("expected already-credited transaction to report credited=false")
	}
	if confirmation.NewQuota != 1 {
		t.Fatalf("expected quota unchanged at 1, got %d", confirmation.NewQuota)
	}
}

func TestConfirmUpgradePayment_StorageFailureFlagsManualReview(t *testing.T) {
	server := newStatusGateway(t, domain.PaymentStatusCompleted)
	defer server.Close()

	repo := &paymentRepoStub{creditErr: errors.New("connection refused")}
	svc := NewService(repo, nhongaclient.NewClient(server.URL, "test-key"), nil, &publisherStub{}, "rentspot.events", 200, 3, 1)

	confirmation, err := svc.ConfirmUpgradePayment(context.Background(), "user_1", "txn_1")
	if err != nil {
		t.Fatalf("expected manual-review state instead of an error, got %v", err)
	}
	if !confirmation.ManualReview {
		t.Fatal("expected manual review flag after a storage failure")
	}
	if confirmation.Credited {
		t.Fatal("a failed write must not report a credit")
	}
}

func TestConfirmUpgradePayment_FailedAndPending(t *testing.T) {
	for _, status := range []string{domain.PaymentStatusFailed, domain.PaymentStatusPending} {
		t.Run(status, func(t *testing.T) {
			server := newStatusGateway(t, status)
			defer server.Close()

			repo := &paymentRepoStub{}
			svc := NewService(repo, nhongaclient.NewClient(server.URL, "test-key"), nil, &publisherStub{}, "rentspot.events", 200, 3, 1)

			confirmation, err := svc.ConfirmUpgradePayment(context.Background(), "user_1", "txn_1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if confirmation.Status != status {
				t.Fatalf("expected status %q, got %q", status, confirmation.Status)
			}
			if confirmation.Credited {
				t.Fatal("non-completed statuses must not credit")
			}
			if repo.creditCalls != 0 {
				t.Fatalf("expected no credit attempts, got %d", repo.creditCalls)
			}
		})
	}
}
