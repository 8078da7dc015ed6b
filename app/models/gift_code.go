package models

import "time"

const (
	GiftCodeKindPercentage  = "percentage"
	GiftCodeKindFixedAmount = "fixed_amount"
	GiftCodeKindFreeAccess  = "free_access"
)

// GiftCode is a discount or free-access code with a usage cap and a validity
// window. UsedCount only ever increases and must never exceed UsageLimit;
// the increment is guarded by a conditional UPDATE, not application checks.
type GiftCode struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Code        string     `gorm:"type:varchar(100);not null;uniqueIndex" json:"code" validate:"required,min=2,max=100"`
	Kind        string     `gorm:"type:varchar(20);not null" json:"kind" validate:"oneof=percentage fixed_amount free_access"`
	PercentOff  float64    `gorm:"not null;default:0" json:"percent_off" validate:"gte=0,lte=100"`
	AmountOff   int64      `gorm:"not null;default:0" json:"amount_off" validate:"gte=0"`
	ProductCode string     `gorm:"type:varchar(100);default:''" json:"product_code"`
	ValidFrom   time.Time  `gorm:"not null" json:"valid_from"`
	ValidTo     *time.Time `gorm:"type:timestamp;default:null" json:"valid_to,omitempty"`
	UsageLimit  int        `gorm:"not null;default:1" json:"usage_limit" validate:"gte=1"`
	UsedCount   int        `gorm:"not null;default:0" json:"used_count"`
	IsActive    bool       `gorm:"default:true;index" json:"is_active"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// GiftCodeUsage records one successful redemption. PaymentID is unique so a
// redelivered checkout event collapses into a conflict instead of a second
// redemption row.
type GiftCodeUsage struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	GiftCodeID uint      `gorm:"not null;index" json:"gift_code_id"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	PaymentID  uint      `gorm:"not null;uniqueIndex" json:"payment_id"`
	UsedAt     time.Time `gorm:"autoCreateTime" json:"used_at"`
}
