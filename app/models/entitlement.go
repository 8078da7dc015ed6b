package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entitlement is the authoritative (account, product) access window. At most
// one row exists per pair; rows are never deleted so access history stays
// auditable. Everything that gates access reads this table, never the
// payments ledger or the gateway.
type Entitlement struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index:ux_entitlements_user_product,unique,priority:1" json:"user_id"`
	ProductID   uint      `gorm:"not null;index:ux_entitlements_user_product,unique,priority:2" json:"product_id"`
	PackageCode string    `gorm:"type:varchar(100);not null;index" json:"package_code"`
	IsActive    bool      `gorm:"default:false;index" json:"is_active"`
	StartedAt   time.Time `gorm:"not null" json:"started_at"`
	ExpiresAt   time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// UpsertEntitlementMaxExpiry creates or refreshes the entitlement row for
// (user, product). On conflict the expiry only ever grows: a concurrent grant
// that already extended access further must not be shortened by a late or
// replayed event. The unqualified expires_at in the CASE refers to the
// existing row on both MySQL and SQLite upserts.
func UpsertEntitlementMaxExpiry(db *gorm.DB, userID, productID uint, packageCode string, active bool, expiresAt time.Time) error {
	ent := Entitlement{
		UserID:      userID,
		ProductID:   productID,
		PackageCode: packageCode,
		IsActive:    active,
		StartedAt:   time.Now(),
		ExpiresAt:   expiresAt,
	}

	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
			{Name: "product_id"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"package_code": packageCode,
			"is_active":    active,
			"expires_at":   gorm.Expr("CASE WHEN expires_at > ? THEN expires_at ELSE ? END", expiresAt, expiresAt),
			"updated_at":   time.Now(),
		}),
	}).Create(&ent).Error
}

// SetEntitlementActive flips the active flag without touching expires_at, so
// a cancellation keeps the recorded access window for audit.
func SetEntitlementActive(db *gorm.DB, userID, productID uint, active bool) error {
	return db.Model(&Entitlement{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Updates(map[string]interface{}{"is_active": active, "updated_at": time.Now()}).Error
}

// GetEntitlement returns the row for (user, product) regardless of state.
func GetEntitlement(db *gorm.DB, userID, productID uint) (*Entitlement, error) {
	var ent Entitlement
	if err := db.Where("user_id = ? AND product_id = ?", userID, productID).First(&ent).Error; err != nil {
		return nil, err
	}
	return &ent, nil
}
