package billing

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/MortenHolst/MemberPortal/app/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var couponSlugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// BuildCheckoutSession prices a purchase, validates an optional gift code
// and requests a hosted session from the gateway. It fails fast on user
// errors and never touches the entitlement store: completion is learned
// exclusively from the webhook processor.
func (s *Service) BuildCheckoutSession(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	product, err := s.repo.GetActiveProductByCode(strings.TrimSpace(in.PackageCode))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProductUnavailable, in.PackageCode)
		}
		return nil, err
	}

	cycle := strings.ToLower(strings.TrimSpace(in.BillingCycle))
	basePrice, ok := product.PriceFor(cycle)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCycle, in.BillingCycle)
	}

	var giftCode *models.GiftCode
	var discount int64
	if code := strings.TrimSpace(in.GiftCode); code != "" {
		giftCode, err = s.repo.GetGiftCodeByCode(code)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrCodeNotFound
			}
			return nil, err
		}
		if err := ValidateGiftCode(giftCode, product.Code, time.Now()); err != nil {
			return nil, err
		}
		discount = GiftDiscount(giftCode, basePrice)
	}
	finalPrice := FinalPrice(basePrice, discount)

	priceID := product.GatewayPriceFor(cycle)
	if priceID == "" {
		return nil, fmt.Errorf("%w: product %s has no %s price id", ErrCatalogNotSynchronized, product.Code, cycle)
	}

	couponID := ""
	if discount > 0 {
		pct := PercentEquivalent(basePrice, discount)
		couponID, err = s.gateway.EnsureCoupon(ctx, couponIDFor(giftCode.Code, pct), "Gift code "+giftCode.Code, pct)
		if err != nil {
			return nil, fmt.Errorf("ensure gateway coupon: %w", err)
		}
	}

	metadata := map[string]string{
		MetaPackageCode:    product.Code,
		MetaBillingCycle:   cycle,
		MetaOriginalAmount: strconv.FormatInt(basePrice, 10),
		MetaDiscountAmount: strconv.FormatInt(discount, 10),
	}
	if giftCode != nil {
		metadata[MetaGiftCodeID] = strconv.FormatUint(uint64(giftCode.ID), 10)
	}
	if name := strings.TrimSpace(in.PurchaserName); name != "" {
		metadata[MetaPurchaserName] = name
	}
	if rel := strings.TrimSpace(in.Relation); rel != "" {
		metadata[MetaRelation] = rel
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, CheckoutSessionRequest{
		PriceID:           priceID,
		CustomerEmail:     strings.ToLower(strings.TrimSpace(in.Email)),
		CouponID:          couponID,
		ClientReferenceID: uuid.NewString(),
		Metadata:          metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	return &CheckoutResult{
		SessionID:      session.ID,
		URL:            session.URL,
		Amount:         finalPrice,
		OriginalAmount: basePrice,
		DiscountAmount: discount,
		Currency:       product.Currency,
	}, nil
}

// ConfirmationResult is the poll-friendly answer for the post-checkout
// landing page.
type ConfirmationResult struct {
	Status   string `json:"status"`
	Amount   int64  `json:"amount,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// CheckoutConfirmation reports what the ledger knows about a session. An
// unknown or still-pending session answers "processing": the confirming
// webhook may simply not have arrived yet, so the page keeps polling
// instead of showing an error.
func (s *Service) CheckoutConfirmation(ctx context.Context, sessionID string) (*ConfirmationResult, error) {
	_ = ctx

	payment, err := s.repo.GetPaymentBySessionID(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &ConfirmationResult{Status: "processing"}, nil
		}
		return nil, err
	}
	if payment.Status == models.PaymentStatusPending {
		return &ConfirmationResult{Status: "processing"}, nil
	}
	return &ConfirmationResult{
		Status:   payment.Status,
		Amount:   payment.Amount,
		Currency: payment.Currency,
	}, nil
}

// couponIDFor derives a stable gateway coupon id from a gift code, so
// repeated checkouts with the same code reuse one coupon object. The
// percentage is part of the key because fixed-amount codes map to different
// percentages per product.
func couponIDFor(code string, percentOff float64) string {
	slug := couponSlugPattern.ReplaceAllString(strings.ToLower(code), "-")
	return fmt.Sprintf("gift-%s-%d", strings.Trim(slug, "-"), int(percentOff*100))
}
