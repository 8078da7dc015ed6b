package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MortenHolst/MemberPortal/internal/pkg/env"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

// StripeGateway implements Gateway against the Stripe API. All lookups are
// by deterministic keys (product code in metadata, interval+amount on
// prices, fixed coupon ids) so no call ever trusts a client-supplied
// identifier and every call is safe to repeat.
type StripeGateway struct {
	api        *client.API
	successURL string
	cancelURL  string
}

// NewStripeGatewayFromEnv builds the production gateway client.
func NewStripeGatewayFromEnv() *StripeGateway {
	api := &client.API{}
	api.Init(strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")), nil)

	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	return &StripeGateway{
		api:        api,
		successURL: base + "/membership/confirmation?session_id={CHECKOUT_SESSION_ID}",
		cancelURL:  base + "/membership",
	}
}

func (g *StripeGateway) EnsureProduct(ctx context.Context, code, name string) (string, error) {
	searchParams := &stripe.ProductSearchParams{
		SearchParams: stripe.SearchParams{
			Query: fmt.Sprintf("active:'true' AND metadata['%s']:'%s'", MetaPackageCode, code),
		},
	}
	searchParams.Context = ctx
	iter := g.api.Products.Search(searchParams)
	for iter.Next() {
		return iter.Product().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("search gateway products: %w", err)
	}

	params := &stripe.ProductParams{
		Name: stripe.String(name),
	}
	params.Context = ctx
	params.AddMetadata(MetaPackageCode, code)
	created, err := g.api.Products.New(params)
	if err != nil {
		return "", fmt.Errorf("create gateway product: %w", err)
	}
	return created.ID, nil
}

func (g *StripeGateway) EnsureRecurringPrice(ctx context.Context, gatewayProductID, currency string, amount int64, interval string) (string, error) {
	unitAmount := toMinorUnits(amount)
	cur := strings.ToLower(currency)

	listParams := &stripe.PriceListParams{
		Product: stripe.String(gatewayProductID),
		Active:  stripe.Bool(true),
	}
	listParams.Context = ctx
	iter := g.api.Prices.List(listParams)
	for iter.Next() {
		price := iter.Price()
		if price.Recurring == nil {
			continue
		}
		if string(price.Recurring.Interval) == interval && price.UnitAmount == unitAmount && string(price.Currency) == cur {
			return price.ID, nil
		}
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("list gateway prices: %w", err)
	}

	params := &stripe.PriceParams{
		Product:    stripe.String(gatewayProductID),
		Currency:   stripe.String(cur),
		UnitAmount: stripe.Int64(unitAmount),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(interval),
		},
	}
	params.Context = ctx
	created, err := g.api.Prices.New(params)
	if err != nil {
		return "", fmt.Errorf("create gateway price: %w", err)
	}
	return created.ID, nil
}

func (g *StripeGateway) EnsureCoupon(ctx context.Context, couponID, name string, percentOff float64) (string, error) {
	getParams := &stripe.CouponParams{}
	getParams.Context = ctx
	existing, err := g.api.Coupons.Get(couponID, getParams)
	if err == nil {
		return existing.ID, nil
	}
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) || stripeErr.HTTPStatusCode != 404 {
		return "", fmt.Errorf("get gateway coupon: %w", err)
	}

	params := &stripe.CouponParams{
		Name:       stripe.String(name),
		PercentOff: stripe.Float64(percentOff),
		Duration:   stripe.String(string(stripe.CouponDurationOnce)),
	}
	params.Context = ctx
	// The coupon id is client-chosen so re-runs find it again.
	params.AddExtra("id", couponID)
	created, err := g.api.Coupons.New(params)
	if err != nil {
		return "", fmt.Errorf("create gateway coupon: %w", err)
	}
	return created.ID, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	successURL := req.SuccessURL
	if successURL == "" {
		successURL = g.successURL
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = g.cancelURL
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		CustomerEmail:     stripe.String(req.CustomerEmail),
		ClientReferenceID: stripe.String(req.ClientReferenceID),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
	}
	params.Context = ctx
	if req.CouponID != "" {
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{
			{Coupon: stripe.String(req.CouponID)},
		}
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	session, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, err
	}
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// toMinorUnits converts catalog prices (whole currency units) to the
// gateway's minor units. All supported currencies are two-decimal.
func toMinorUnits(amount int64) int64 {
	return amount * 100
}
