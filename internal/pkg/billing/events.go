package billing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Gateway event types the reconciler understands. Everything else is
// acknowledged and ignored.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventPaymentSucceeded    = "payment_intent.succeeded"
	EventPaymentFailed       = "payment_intent.payment_failed"
	EventChargeRefunded      = "charge.refunded"
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// EventEnvelope is the outer shape of a gateway notification.
type EventEnvelope struct {
	ID     string
	Type   string
	Object json.RawMessage
}

// ParseEventEnvelope unwraps the signed notification body down to the event
// object. Unknown types still parse; the dispatcher decides what to ignore.
func ParseEventEnvelope(payload []byte) (*EventEnvelope, error) {
	var raw struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if strings.TrimSpace(raw.Type) == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrMalformedEvent)
	}
	return &EventEnvelope{
		ID:     strings.TrimSpace(raw.ID),
		Type:   strings.TrimSpace(raw.Type),
		Object: raw.Data.Object,
	}, nil
}

// CheckoutCompletedEvent is the normalized terminal purchase confirmation.
type CheckoutCompletedEvent struct {
	SessionID      string
	PaymentID      string
	SubscriptionID string
	CustomerID     string
	Email          string
	Currency       string
	PaymentMethod  string
	PackageCode    string
	BillingCycle   string
	GiftCodeID     uint
	OriginalAmount int64
	DiscountAmount int64
	PurchaserName  string
}

// CorrelationID picks the stable idempotency key for this purchase. Fully
// discounted sessions carry no payment intent, so the subscription and
// finally the session id stand in.
func (e *CheckoutCompletedEvent) CorrelationID() string {
	if e.PaymentID != "" {
		return e.PaymentID
	}
	if e.SubscriptionID != "" {
		return e.SubscriptionID
	}
	return e.SessionID
}

// ParseCheckoutCompleted extracts the session object plus the reconciliation
// metadata the session builder attached.
func ParseCheckoutCompleted(object json.RawMessage) (*CheckoutCompletedEvent, error) {
	var raw struct {
		ID              string `json:"id"`
		PaymentIntent   string `json:"payment_intent"`
		Subscription    string `json:"subscription"`
		Customer        string `json:"customer"`
		Currency        string `json:"currency"`
		CustomerDetails struct {
			Email string `json:"email"`
		} `json:"customer_details"`
		CustomerEmail      string            `json:"customer_email"`
		PaymentMethodTypes []string          `json:"payment_method_types"`
		Metadata           map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(object, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if raw.ID == "" {
		return nil, fmt.Errorf("%w: checkout session missing id", ErrMalformedEvent)
	}

	email := strings.TrimSpace(raw.CustomerDetails.Email)
	if email == "" {
		email = strings.TrimSpace(raw.CustomerEmail)
	}
	if email == "" {
		return nil, fmt.Errorf("%w: checkout session missing purchaser email", ErrMalformedEvent)
	}

	ev := &CheckoutCompletedEvent{
		SessionID:      raw.ID,
		PaymentID:      strings.TrimSpace(raw.PaymentIntent),
		SubscriptionID: strings.TrimSpace(raw.Subscription),
		CustomerID:     strings.TrimSpace(raw.Customer),
		Email:          strings.ToLower(email),
		Currency:       strings.ToUpper(strings.TrimSpace(raw.Currency)),
		PackageCode:    strings.TrimSpace(raw.Metadata[MetaPackageCode]),
		BillingCycle:   strings.TrimSpace(raw.Metadata[MetaBillingCycle]),
		PurchaserName:  strings.TrimSpace(raw.Metadata[MetaPurchaserName]),
	}
	if len(raw.PaymentMethodTypes) > 0 {
		ev.PaymentMethod = raw.PaymentMethodTypes[0]
	}
	if ev.PackageCode == "" {
		return nil, fmt.Errorf("%w: checkout session missing package code metadata", ErrMalformedEvent)
	}

	if v := raw.Metadata[MetaGiftCodeID]; v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: bad gift_code_id %q", ErrMalformedEvent, v)
		}
		ev.GiftCodeID = uint(id)
	}
	var err error
	if ev.OriginalAmount, err = metaAmount(raw.Metadata, MetaOriginalAmount); err != nil {
		return nil, err
	}
	if ev.DiscountAmount, err = metaAmount(raw.Metadata, MetaDiscountAmount); err != nil {
		return nil, err
	}
	return ev, nil
}

func metaAmount(meta map[string]string, key string) (int64, error) {
	v := strings.TrimSpace(meta[key])
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad %s %q", ErrMalformedEvent, key, v)
	}
	return n, nil
}

// PaymentStatusEvent identifies a ledger row by its correlation id.
type PaymentStatusEvent struct {
	PaymentID string
}

// ParsePaymentStatusEvent reads payment_intent.* and charge.refunded
// objects; for charges the parent payment intent is the correlation id.
func ParsePaymentStatusEvent(object json.RawMessage) (*PaymentStatusEvent, error) {
	var raw struct {
		ID            string `json:"id"`
		Object        string `json:"object"`
		PaymentIntent string `json:"payment_intent"`
	}
	if err := json.Unmarshal(object, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	id := strings.TrimSpace(raw.ID)
	if raw.Object == "charge" && strings.TrimSpace(raw.PaymentIntent) != "" {
		id = strings.TrimSpace(raw.PaymentIntent)
	}
	if id == "" {
		return nil, fmt.Errorf("%w: payment event missing id", ErrMalformedEvent)
	}
	return &PaymentStatusEvent{PaymentID: id}, nil
}

// SubscriptionEvent is the normalized renewal/cancellation notification.
type SubscriptionEvent struct {
	SubscriptionID   string
	CustomerID       string
	Status           string
	CurrentPeriodEnd *time.Time
}

// ParseSubscriptionEvent reads customer.subscription.* objects.
func ParseSubscriptionEvent(object json.RawMessage) (*SubscriptionEvent, error) {
	var raw struct {
		ID               string `json:"id"`
		Customer         string `json:"customer"`
		Status           string `json:"status"`
		CurrentPeriodEnd int64  `json:"current_period_end"`
	}
	if err := json.Unmarshal(object, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if strings.TrimSpace(raw.ID) == "" || strings.TrimSpace(raw.Customer) == "" {
		return nil, fmt.Errorf("%w: subscription event missing ids", ErrMalformedEvent)
	}

	ev := &SubscriptionEvent{
		SubscriptionID: strings.TrimSpace(raw.ID),
		CustomerID:     strings.TrimSpace(raw.Customer),
		Status:         strings.ToLower(strings.TrimSpace(raw.Status)),
	}
	if raw.CurrentPeriodEnd > 0 {
		t := time.Unix(raw.CurrentPeriodEnd, 0).UTC()
		ev.CurrentPeriodEnd = &t
	}
	return ev, nil
}
