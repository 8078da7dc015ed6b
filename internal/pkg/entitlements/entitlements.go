package entitlements

import (
	"errors"
	"fmt"
	"time"

	"github.com/MortenHolst/MemberPortal/app/models"
	"github.com/MortenHolst/MemberPortal/internal/pkg/cache"
	"gorm.io/gorm"
)

// How long a positive/negative access answer may be served from cache
// before falling back to the database.
const accessCacheTTL = 5 * time.Minute

// Store is the single source of truth for "who currently has access to
// what". Every access-gated surface consults it; nothing reads the payments
// ledger or the gateway for gating decisions.
type Store struct {
	db *gorm.DB
}

// NewStore creates an entitlement store backed by GORM.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// GetActiveEntitlement returns the live row for (account, product), or nil
// when the account has no unexpired active entitlement.
func (s *Store) GetActiveEntitlement(userID, productID uint) (*models.Entitlement, error) {
	var ent models.Entitlement
	err := s.db.
		Where("user_id = ? AND product_id = ? AND is_active = ? AND expires_at > ?", userID, productID, true, time.Now()).
		First(&ent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ent, nil
}

// ListActiveEntitlements returns all live entitlements for an account.
func (s *Store) ListActiveEntitlements(userID uint) ([]models.Entitlement, error) {
	var ents []models.Entitlement
	err := s.db.
		Where("user_id = ? AND is_active = ? AND expires_at > ?", userID, true, time.Now()).
		Order("package_code").
		Find(&ents).Error
	return ents, err
}

// HasActiveAccess answers the read contract consumed by the access-gated
// surfaces. Answers are cached; cache errors degrade to a DB read.
func (s *Store) HasActiveAccess(userID uint, productCode string) (bool, error) {
	key := accessCacheKey(userID, productCode)
	if cached, err := cache.Get(key); err == nil {
		return cached == "1", nil
	}

	var count int64
	err := s.db.Model(&models.Entitlement{}).
		Where("user_id = ? AND package_code = ? AND is_active = ? AND expires_at > ?", userID, productCode, true, time.Now()).
		Count(&count).Error
	if err != nil {
		return false, err
	}

	val := "0"
	if count > 0 {
		val = "1"
	}
	_ = cache.Set(key, val, accessCacheTTL)
	return count > 0, nil
}

// UpsertMaxExpiry writes an access grant with grow-only expiry semantics
// and drops the cached answer.
func (s *Store) UpsertMaxExpiry(userID, productID uint, packageCode string, active bool, expiresAt time.Time) error {
	if err := models.UpsertEntitlementMaxExpiry(s.db, userID, productID, packageCode, active, expiresAt); err != nil {
		return err
	}
	InvalidateAccess(userID, packageCode)
	return nil
}

// Deactivate flips the active flag, preserving expires_at for audit.
func (s *Store) Deactivate(userID, productID uint, packageCode string) error {
	if err := models.SetEntitlementActive(s.db, userID, productID, false); err != nil {
		return err
	}
	InvalidateAccess(userID, packageCode)
	return nil
}

// InvalidateAccess drops the cached access answer after a reconciliation
// write. Best effort: a failed delete only means a stale answer until the
// TTL runs out.
func InvalidateAccess(userID uint, productCode string) {
	_ = cache.Delete(accessCacheKey(userID, productCode))
}

func accessCacheKey(userID uint, productCode string) string {
	return fmt.Sprintf("entitlement:access:%d:%s", userID, productCode)
}
