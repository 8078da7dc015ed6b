package billing

import (
	"math"
	"time"

	"github.com/MortenHolst/MemberPortal/app/models"
)

// ValidateGiftCode checks a code against a purchase without side effects.
// Checks short-circuit in a fixed order so the caller always sees the most
// specific rejection. Consumption happens only after the purchase completes;
// an abandoned checkout never burns a use.
func ValidateGiftCode(gc *models.GiftCode, productCode string, now time.Time) error {
	if gc == nil || !gc.IsActive {
		return ErrCodeNotFound
	}
	if now.Before(gc.ValidFrom) {
		return ErrCodeNotYetValid
	}
	if gc.ValidTo != nil && now.After(*gc.ValidTo) {
		return ErrCodeExpired
	}
	if gc.UsedCount >= gc.UsageLimit {
		return ErrCodeExhausted
	}
	if gc.Kind == models.GiftCodeKindFreeAccess && gc.ProductCode != "" && gc.ProductCode != productCode {
		return ErrCodeWrongProduct
	}
	return nil
}

// GiftDiscount computes the discount a code grants on a base price. The
// result never exceeds the base price.
func GiftDiscount(gc *models.GiftCode, basePrice int64) int64 {
	if gc == nil || basePrice <= 0 {
		return 0
	}
	switch gc.Kind {
	case models.GiftCodeKindPercentage:
		d := int64(math.Round(float64(basePrice) * gc.PercentOff / 100))
		if d > basePrice {
			return basePrice
		}
		return d
	case models.GiftCodeKindFixedAmount:
		if gc.AmountOff > basePrice {
			return basePrice
		}
		return gc.AmountOff
	case models.GiftCodeKindFreeAccess:
		return basePrice
	default:
		return 0
	}
}

// FinalPrice applies a discount, floored at zero.
func FinalPrice(basePrice, discount int64) int64 {
	final := basePrice - discount
	if final < 0 {
		return 0
	}
	return final
}

// PercentEquivalent expresses a discount as a percentage of the base price,
// rounded to two decimals. A full discount is exactly 100 so the gateway
// coupon becomes a full waiver instead of a negative price.
func PercentEquivalent(basePrice, discount int64) float64 {
	if basePrice <= 0 {
		return 0
	}
	if discount >= basePrice {
		return 100
	}
	pct := float64(discount) / float64(basePrice) * 100
	return math.Round(pct*100) / 100
}
