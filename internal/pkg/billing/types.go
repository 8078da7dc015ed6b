package billing

import "context"

// Session metadata keys attached to every checkout session so webhook
// reconciliation needs no second lookup.
const (
	MetaPackageCode    = "package_code"
	MetaBillingCycle   = "billing_cycle"
	MetaGiftCodeID     = "gift_code_id"
	MetaOriginalAmount = "original_amount"
	MetaDiscountAmount = "discount_amount"
	MetaPurchaserName  = "purchaser_name"
	MetaRelation       = "relation"
)

// CheckoutInput is the normalized input for building a hosted checkout
// session.
type CheckoutInput struct {
	PackageCode   string `json:"package_type" validate:"required,min=2,max=100"`
	BillingCycle  string `json:"billing_cycle" validate:"required,oneof=monthly yearly"`
	Email         string `json:"email" validate:"required,email"`
	GiftCode      string `json:"gift_code_id" validate:"max=100"`
	PurchaserName string `json:"name" validate:"max=150"`
	Relation      string `json:"relation" validate:"max=150"`
}

// CheckoutResult carries the hosted session the purchaser is redirected to.
type CheckoutResult struct {
	SessionID      string `json:"session_id"`
	URL            string `json:"url"`
	Amount         int64  `json:"amount"`
	OriginalAmount int64  `json:"original_amount"`
	DiscountAmount int64  `json:"discount_amount"`
	Currency       string `json:"currency"`
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
}

// CheckoutSessionRequest is what the gateway needs to host a checkout page.
type CheckoutSessionRequest struct {
	PriceID           string
	CustomerEmail     string
	CouponID          string
	ClientReferenceID string
	Metadata          map[string]string
	SuccessURL        string
	CancelURL         string
}

// CheckoutSession is the gateway's hosted session handle.
type CheckoutSession struct {
	ID  string
	URL string
}

// Gateway is the payment provider surface the engine depends on. Every
// Ensure* call is find-or-create on a deterministic key, so re-running any
// caller is safe.
type Gateway interface {
	EnsureProduct(ctx context.Context, code, name string) (string, error)
	EnsureRecurringPrice(ctx context.Context, gatewayProductID, currency string, amount int64, interval string) (string, error)
	EnsureCoupon(ctx context.Context, couponID, name string, percentOff float64) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error)
}
