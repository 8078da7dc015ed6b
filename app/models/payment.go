package models

import "time"

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// Payment is one row per gateway payment correlation id. CorrelationID is the
// idempotency key for the whole reconciliation path: a second insert with the
// same id is a harmless conflict, never a duplicate row. Status only moves
// forward (pending -> completed/failed, completed -> refunded).
type Payment struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	UserID                uint      `gorm:"not null;index" json:"user_id"`
	ProductID             uint      `gorm:"not null;index" json:"product_id"`
	CorrelationID         string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"correlation_id"`
	SessionID             string    `gorm:"type:varchar(191);not null;index" json:"session_id"`
	GatewayCustomerID     string    `gorm:"type:varchar(191);default:'';index" json:"gateway_customer_id"`
	GatewaySubscriptionID string    `gorm:"type:varchar(191);default:'';index" json:"gateway_subscription_id"`
	Amount                int64     `gorm:"not null;default:0" json:"amount"`
	Currency              string    `gorm:"type:varchar(3);not null;default:'DKK'" json:"currency"`
	Status                string    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Method                string    `gorm:"type:varchar(50);default:''" json:"method"`
	GiftCodeID            *uint     `gorm:"index" json:"gift_code_id,omitempty"`
	OriginalAmount        int64     `gorm:"not null;default:0" json:"original_amount"`
	DiscountAmount        int64     `gorm:"not null;default:0" json:"discount_amount"`
	BillingCycle          string    `gorm:"type:varchar(10);not null;default:'yearly'" json:"billing_cycle"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
