package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/rentspot/listings-service/internal/domain"
	"github.com/rentspot/listings-service/pkg/nhongaclient"
	"github.com/rentspot/listings-service/pkg/rabbitmq"
)

const upgradeRateLimitScope = "upgrade_initiate"

// Mozambican mobile subscriber numbers: a two-digit network prefix (84/85 for
// Vodacom and Movitel ranges used by M-Pesa, 86/87 for e-Mola) followed by
// seven digits.
var subscriberNumberPattern = regexp.MustCompile(`^(84|85|86|87)\d{7}$`)

// NormalizeSubscriberNumber strips whitespace and an optional country prefix
// from a payer phone number and validates the result against the subscriber
// number shape. Validation happens before any network call.
func NormalizeSubscriberNumber(phone string) (string, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(phone), " ", "")
	cleaned = strings.TrimPrefix(cleaned, "+258")
	cleaned = strings.TrimPrefix(cleaned, "00258")
	if !subscriberNumberPattern.MatchString(cleaned) {
		return "", ErrInvalidPhone
	}
	return cleaned, nil
}

// InitiateUpgradePayment validates the request and asks the gateway to charge
// the upgrade fee to the payer's mobile-money wallet. On success the
// gateway-issued transaction id is returned to the caller; the service keeps
// no pending-transaction state of its own.
func (s *Service) InitiateUpgradePayment(ctx context.Context, userID, email string, req domain.InitiateUpgradeRequest) (*domain.UpgradeReceipt, error) {
	if !domain.ValidPaymentMethod(req.Method) {
		return nil, ErrUnsupportedPaymentMethod
	}
	phone, err := NormalizeSubscriberNumber(req.Phone)
	if err != nil {
		return nil, err
	}

	// Disabled accounts cannot buy quota.
	if _, err := s.effectiveEntitlement(ctx, userID); err != nil {
		return nil, err
	}

	if s.rateLimiter != nil && s.upgradesPerMinute > 0 {
		count, retryAfter, limitErr := s.rateLimiter.ConsumeRateLimit(ctx, upgradeRateLimitScope, userID, s.upgradesPerMinute, time.Minute)
		if limitErr != nil {
			// Limiter outage should not block payments.
			log.Printf("level=warn component=service flow=upgrade_initiate msg=\"rate limiter unavailable\" user_id=%s err=%v", userID, limitErr)
		} else if count > s.upgradesPerMinute {
			log.Printf("level=warn component=service flow=upgrade_initiate outcome=reject reason=rate_limited user_id=%s retry_after_s=%d", userID, retryAfter)
			return nil, ErrRateLimited
		}
	}

	payload := nhongaclient.MobilePaymentRequest{
		Method:    req.Method,
		Amount:    s.upgradeFeeMZN,
		Context:   fmt.Sprintf("Listing limit upgrade for user: %s", email),
		UserEmail: email,
		Phone:     phone,
	}
	payload.CustomData.UserID = userID

	transactionID, err := s.gatewayClient.CreateMobilePayment(ctx, payload)
	if err != nil {
		log.Printf("level=warn component=service flow=upgrade_initiate outcome=reject reason=gateway_error user_id=%s err=%v", userID, err)
		return nil, fmt.Errorf("payment initiation failed: %w", err)
	}

	log.Printf("level=info component=service flow=upgrade_initiate msg=\"payment initiated\" user_id=%s transaction_id=%s method=%s", userID, transactionID, req.Method)
	return &domain.UpgradeReceipt{
		TransactionID: transactionID,
		AmountMZN:     s.upgradeFeeMZN,
		Method:        req.Method,
		Phone:         phone,
		Status:        domain.PaymentStatusPending,
		Message:       "Payment request sent. Please confirm on your phone.",
	}, nil
}

// CreditUpgrade is the single idempotent credit entry point. Both the webhook
// path and the client-confirmation path funnel through it, so a transaction
// id can raise the quota at most once no matter how many times or from which
// side it is reported. Returns the quota after the call and whether this call
// was the one that applied the credit.
func (s *Service) CreditUpgrade(ctx context.Context, transactionID, userID string) (int, bool, error) {
	if strings.TrimSpace(transactionID) == "" {
		return 0, false, errors.New("transaction id is required")
	}
	if strings.TrimSpace(userID) == "" {
		return 0, false, errors.New("user id is required")
	}

	newQuota, applied, err := s.repo.ApplyQuotaCredit(ctx, transactionID, userID, s.quotaCredit)
	if err != nil {
		return 0, false, fmt.Errorf("failed to apply quota credit: %w", err)
	}

	if !applied {
		log.Printf("level=info component=service flow=reconcile msg=\"credit already applied\" transaction_id=%s user_id=%s quota=%d", transactionID, userID, newQuota)
		return newQuota, false, nil
	}

	log.Printf("level=info component=service flow=reconcile msg=\"quota credited\" transaction_id=%s user_id=%s new_quota=%d", transactionID, userID, newQuota)
	if err := s.eventProducer.PublishEntitlementCredited(ctx, s.eventExchange, rabbitmq.EntitlementCreditedEvent{
		UserID:        userID,
		TransactionID: transactionID,
		QuotaDelta:    s.quotaCredit,
		NewQuota:      newQuota,
		Timestamp:     time.Now().UTC(),
	}); err != nil {
		// The credit is durable; event delivery is best effort.
		log.Printf("level=warn component=service flow=reconcile msg=\"credited event publish failed\" transaction_id=%s err=%v", transactionID, err)
	}
	return newQuota, true, nil
}

// ConfirmUpgradePayment is the client-side confirmation path. It polls the
// gateway for the transaction's status and, when the gateway reports
// completion, applies the same idempotent credit the webhook would. A storage
// failure is reported as a manual-review state rather than success or
// failure: the payment may be fine while our write is not.
//
// The gateway's status response carries no payer identity, so this path
// cannot verify that the transaction belongs to the caller; a caller who
// obtains another user's transaction id can claim its credit, and the ledger
// then blocks the webhook from crediting the payer. Transaction ids are only
// ever disclosed to the initiating user, which is the boundary this relies
// on.
func (s *Service) ConfirmUpgradePayment(ctx context.Context, userID, transactionID string) (*domain.UpgradeConfirmation, error) {
	status, err := s.gatewayClient.GetPaymentStatus(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("payment status check failed: %w", err)
	}

	switch status {
	case domain.PaymentStatusCompleted:
		newQuota, credited, creditErr := s.CreditUpgrade(ctx, transactionID, userID)
		if creditErr != nil {
			log.Printf("level=error component=service flow=upgrade_confirm msg=\"credit failed after completed status; flagging for manual review\" transaction_id=%s user_id=%s err=%v", transactionID, userID, creditErr)
			return &domain.UpgradeConfirmation{
				TransactionID: transactionID,
				Status:        status,
				ManualReview:  true,
				Message:       "Payment received but the upgrade could not be recorded. Our team will apply it manually.",
			}, nil
		}
		msg := "Your listing limit has been increased."
		if !credited {
			msg = "This payment was already applied to your listing limit."
		}
		return &domain.UpgradeConfirmation{
			TransactionID: transactionID,
			Status:        status,
			Credited:      credited,
			NewQuota:      newQuota,
			Message:       msg,
		}, nil
	case domain.PaymentStatusFailed:
		return &domain.UpgradeConfirmation{
			TransactionID: transactionID,
			Status:        status,
			Message:       "The payment failed. You can start a new payment to try again.",
		}, nil
	default:
		// pending or anything the gateway adds later: reconciliation via the
		// webhook remains the source of eventual truth.
		return &domain.UpgradeConfirmation{
			TransactionID: transactionID,
			Status:        domain.PaymentStatusPending,
			Message:       "Waiting for payment confirmation. Your limit will update automatically.",
		}, nil
	}
}

// PaymentStatus is the status-poll pass-through for the client.
func (s *Service) PaymentStatus(ctx context.Context, transactionID string) (string, error) {
	return s.gatewayClient.GetPaymentStatus(ctx, transactionID)
}
