package models

import "time"

const (
	BillingCycleMonthly = "monthly"
	BillingCycleYearly  = "yearly"
)

// Product is a purchasable membership package. Prices are stored in whole
// currency units; the gateway adapter converts to minor units on its side.
// The gateway_* columns stay empty until the catalog synchronizer has pushed
// the product into the payment gateway.
type Product struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	Code                  string    `gorm:"type:varchar(100);not null;uniqueIndex" json:"code" validate:"required,min=2,max=100"`
	Name                  string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,max=150"`
	PriceMonthly          int64     `gorm:"not null;default:0" json:"price_monthly" validate:"gte=0"`
	PriceYearly           int64     `gorm:"not null;default:0" json:"price_yearly" validate:"gte=0"`
	Currency              string    `gorm:"type:varchar(3);not null;default:'DKK'" json:"currency" validate:"len=3"`
	IsActive              bool      `gorm:"default:true;index" json:"is_active"`
	GatewayProductID      string    `gorm:"type:varchar(191);default:''" json:"gateway_product_id"`
	GatewayPriceMonthlyID string    `gorm:"type:varchar(191);default:''" json:"gateway_price_monthly_id"`
	GatewayPriceYearlyID  string    `gorm:"type:varchar(191);default:''" json:"gateway_price_yearly_id"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PriceFor returns the list price for a billing cycle.
func (p *Product) PriceFor(cycle string) (int64, bool) {
	switch cycle {
	case BillingCycleMonthly:
		return p.PriceMonthly, true
	case BillingCycleYearly:
		return p.PriceYearly, true
	default:
		return 0, false
	}
}

// GatewayPriceFor returns the synchronized gateway price id for a billing
// cycle, empty if the catalog has not been synced yet.
func (p *Product) GatewayPriceFor(cycle string) string {
	switch cycle {
	case BillingCycleMonthly:
		return p.GatewayPriceMonthlyID
	case BillingCycleYearly:
		return p.GatewayPriceYearlyID
	default:
		return ""
	}
}
