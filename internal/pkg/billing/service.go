package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MortenHolst/MemberPortal/app/models"
	"github.com/MortenHolst/MemberPortal/internal/pkg/entitlements"
	"gorm.io/gorm"
)

// Service reconciles gateway events into the entitlement store and the
// payments ledger, and builds checkout sessions. Every event handler is
// idempotent; duplicate and out-of-order delivery is the expected steady
// state, not an error.
type Service struct {
	repo    Repository
	gateway Gateway
}

// NewService creates a billing service from an injected repository and
// gateway.
func NewService(repo Repository, gateway Gateway) *Service {
	return &Service{repo: repo, gateway: gateway}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, gateway Gateway) *Service {
	return NewService(NewRepository(db), gateway)
}

// RecordWebhookEvent persists webhook payloads idempotently. Events without
// a provider event id are deduplicated on a payload hash.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.WebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.WebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional
// error for the operator queue.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

// ListUnprocessedEvents returns the operator queue: events that were
// acknowledged but could not be applied.
func (s *Service) ListUnprocessedEvents(ctx context.Context, limit int) ([]models.WebhookEvent, error) {
	_ = ctx
	return s.repo.ListUnprocessedWebhookEvents(limit)
}

// IsReconcilableEvent reports whether an event type drives state changes.
func IsReconcilableEvent(eventType string) bool {
	switch eventType {
	case EventCheckoutCompleted,
		EventPaymentSucceeded,
		EventPaymentFailed,
		EventChargeRefunded,
		EventSubscriptionCreated,
		EventSubscriptionUpdated,
		EventSubscriptionDeleted:
		return true
	default:
		return false
	}
}

// ProcessEvent dispatches a parsed envelope to the matching transition.
func (s *Service) ProcessEvent(ctx context.Context, env *EventEnvelope) error {
	switch env.Type {
	case EventCheckoutCompleted:
		ev, err := ParseCheckoutCompleted(env.Object)
		if err != nil {
			return err
		}
		return s.ApplyCheckoutCompleted(ctx, ev)
	case EventPaymentSucceeded:
		return s.applyPaymentStatus(ctx, env.Object, models.PaymentStatusCompleted)
	case EventPaymentFailed:
		return s.applyPaymentStatus(ctx, env.Object, models.PaymentStatusFailed)
	case EventChargeRefunded:
		return s.applyPaymentStatus(ctx, env.Object, models.PaymentStatusRefunded)
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		ev, err := ParseSubscriptionEvent(env.Object)
		if err != nil {
			return err
		}
		return s.ApplySubscriptionState(ctx, ev)
	case EventSubscriptionDeleted:
		ev, err := ParseSubscriptionEvent(env.Object)
		if err != nil {
			return err
		}
		return s.ApplySubscriptionCancelled(ctx, ev)
	default:
		return nil
	}
}

// ApplyCheckoutCompleted is the terminal purchase confirmation. The payment
// insert keyed by the gateway correlation id is the idempotency boundary: a
// redelivered event finds the existing row and skips every further side
// effect, so one payment can never grant two entitlements or burn a gift
// code use twice.
func (s *Service) ApplyCheckoutCompleted(ctx context.Context, ev *CheckoutCompletedEvent) error {
	_ = ctx

	user, err := s.repo.GetOrCreateUserByEmail(ev.Email, ev.PurchaserName)
	if err != nil {
		return fmt.Errorf("resolve purchaser account: %w", err)
	}

	product, err := s.repo.GetProductByCode(ev.PackageCode)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownProduct, ev.PackageCode)
		}
		return err
	}

	expiresAt, err := accessExpiry(time.Now(), ev.BillingCycle)
	if err != nil {
		return err
	}

	currency := ev.Currency
	if currency == "" {
		currency = product.Currency
	}
	amount := FinalPrice(ev.OriginalAmount, ev.DiscountAmount)
	status := models.PaymentStatusPending
	if amount == 0 {
		// Fully waived purchases never see a payment_intent event.
		status = models.PaymentStatusCompleted
	}
	var giftCodeID *uint
	if ev.GiftCodeID != 0 {
		id := ev.GiftCodeID
		giftCodeID = &id
	}

	applied := false
	err = s.repo.Transaction(func(tx Repository) error {
		payment := &models.Payment{
			UserID:                user.ID,
			ProductID:             product.ID,
			CorrelationID:         ev.CorrelationID(),
			SessionID:             ev.SessionID,
			GatewayCustomerID:     ev.CustomerID,
			GatewaySubscriptionID: ev.SubscriptionID,
			Amount:                amount,
			Currency:              currency,
			Status:                status,
			Method:                ev.PaymentMethod,
			GiftCodeID:            giftCodeID,
			OriginalAmount:        ev.OriginalAmount,
			DiscountAmount:        ev.DiscountAmount,
			BillingCycle:          ev.BillingCycle,
		}
		created, err := tx.CreatePaymentIfNotExists(payment)
		if err != nil {
			return err
		}
		if !created {
			return nil
		}
		applied = true

		if err := tx.UpsertEntitlementMaxExpiry(user.ID, product.ID, product.Code, true, expiresAt); err != nil {
			return err
		}
		if ev.GiftCodeID != 0 {
			if _, err := tx.ConsumeGiftCode(ev.GiftCodeID, user.ID, payment.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if applied {
		entitlements.InvalidateAccess(user.ID, product.Code)
	}
	return nil
}

func (s *Service) applyPaymentStatus(ctx context.Context, object []byte, target string) error {
	ev, err := ParsePaymentStatusEvent(object)
	if err != nil {
		return err
	}
	return s.ApplyPaymentStatus(ctx, ev.PaymentID, target)
}

// ApplyPaymentStatus advances a ledger row forward. A duplicate of the
// current terminal state is a no-op; a backward move is rejected.
func (s *Service) ApplyPaymentStatus(ctx context.Context, correlationID, target string) error {
	_ = ctx

	payment, err := s.repo.GetPaymentByCorrelationID(correlationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownPayment, correlationID)
		}
		return err
	}
	if payment.Status == target {
		return nil
	}

	var allowedFrom []string
	switch target {
	case models.PaymentStatusCompleted, models.PaymentStatusFailed:
		allowedFrom = []string{models.PaymentStatusPending}
	case models.PaymentStatusRefunded:
		allowedFrom = []string{models.PaymentStatusCompleted}
	default:
		return fmt.Errorf("%w: unknown target status %q", ErrInvalidTransition, target)
	}

	ok, err := s.repo.AdvancePaymentStatus(correlationID, target, allowedFrom...)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s cannot move from %s to %s", ErrInvalidTransition, correlationID, payment.Status, target)
	}
	return nil
}

// ApplySubscriptionState handles renewals and plan changes: the latest
// payment for the gateway customer resolves (account, product), then the
// entitlement follows the subscription's status and period end. Expiry only
// grows, so a late replay of an older period end cannot shorten access.
func (s *Service) ApplySubscriptionState(ctx context.Context, ev *SubscriptionEvent) error {
	_ = ctx

	payment, product, err := s.resolveSubscriptionTarget(ev.CustomerID)
	if err != nil {
		return err
	}

	active := isEntitlingStatus(ev.Status)
	if ev.CurrentPeriodEnd != nil {
		err = s.repo.UpsertEntitlementMaxExpiry(payment.UserID, payment.ProductID, product.Code, active, *ev.CurrentPeriodEnd)
	} else {
		err = s.repo.SetEntitlementActive(payment.UserID, payment.ProductID, active)
	}
	if err != nil {
		return err
	}
	entitlements.InvalidateAccess(payment.UserID, product.Code)
	return nil
}

// ApplySubscriptionCancelled deactivates the entitlement but keeps
// expires_at untouched for audit.
func (s *Service) ApplySubscriptionCancelled(ctx context.Context, ev *SubscriptionEvent) error {
	_ = ctx

	payment, product, err := s.resolveSubscriptionTarget(ev.CustomerID)
	if err != nil {
		return err
	}
	if err := s.repo.SetEntitlementActive(payment.UserID, payment.ProductID, false); err != nil {
		return err
	}
	entitlements.InvalidateAccess(payment.UserID, product.Code)
	return nil
}

func (s *Service) resolveSubscriptionTarget(gatewayCustomerID string) (*models.Payment, *models.Product, error) {
	if gatewayCustomerID == "" {
		return nil, nil, fmt.Errorf("%w: empty customer id", ErrMalformedEvent)
	}
	payment, err := s.repo.GetLatestPaymentByCustomer(gatewayCustomerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrUnknownCustomer, gatewayCustomerID)
		}
		return nil, nil, err
	}
	product, err := s.repo.GetProductByID(payment.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: id %d", ErrUnknownProduct, payment.ProductID)
		}
		return nil, nil, err
	}
	return payment, product, nil
}

// accessExpiry computes the access window granted by one purchase.
func accessExpiry(now time.Time, cycle string) (time.Time, error) {
	switch cycle {
	case models.BillingCycleMonthly:
		return now.AddDate(0, 1, 0), nil
	case models.BillingCycleYearly:
		return now.AddDate(1, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedEvent, cycle)
	}
}

func isEntitlingStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active", "trialing", "past_due":
		return true
	default:
		return false
	}
}
