package billing

import (
	"errors"
	"time"

	"github.com/MortenHolst/MemberPortal/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the DB operations used by the billing service. Every
// write that the webhook path can reach is an atomic, idempotent statement
// keyed by a stable external identifier; no in-process locks.
type Repository interface {
	Transaction(fn func(Repository) error) error

	GetActiveProductByCode(code string) (*models.Product, error)
	GetProductByCode(code string) (*models.Product, error)
	GetProductByID(id uint) (*models.Product, error)
	ListActiveProducts() ([]models.Product, error)
	SaveProduct(p *models.Product) error

	GetGiftCodeByCode(code string) (*models.GiftCode, error)
	GetGiftCodeByID(id uint) (*models.GiftCode, error)
	ConsumeGiftCode(giftCodeID, userID, paymentID uint) (bool, error)

	GetOrCreateUserByEmail(email, name string) (*models.User, error)

	CreatePaymentIfNotExists(p *models.Payment) (bool, error)
	GetPaymentByCorrelationID(correlationID string) (*models.Payment, error)
	GetPaymentBySessionID(sessionID string) (*models.Payment, error)
	AdvancePaymentStatus(correlationID, newStatus string, allowedFrom ...string) (bool, error)
	GetLatestPaymentByCustomer(gatewayCustomerID string) (*models.Payment, error)

	UpsertEntitlementMaxExpiry(userID, productID uint, packageCode string, active bool, expiresAt time.Time) error
	SetEntitlementActive(userID, productID uint, active bool) error

	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
	ListUnprocessedWebhookEvents(limit int) ([]models.WebhookEvent, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(fn func(Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) GetActiveProductByCode(code string) (*models.Product, error) {
	var p models.Product
	err := r.db.Where("code = ? AND is_active = ?", code, true).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetProductByCode(code string) (*models.Product, error) {
	var p models.Product
	if err := r.db.Where("code = ?", code).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetProductByID(id uint) (*models.Product, error) {
	var p models.Product
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) ListActiveProducts() ([]models.Product, error) {
	var products []models.Product
	err := r.db.Where("is_active = ?", true).Order("code").Find(&products).Error
	return products, err
}

func (r *gormRepository) SaveProduct(p *models.Product) error {
	return r.db.Save(p).Error
}

func (r *gormRepository) GetGiftCodeByCode(code string) (*models.GiftCode, error) {
	var gc models.GiftCode
	if err := r.db.Where("code = ?", code).First(&gc).Error; err != nil {
		return nil, err
	}
	return &gc, nil
}

func (r *gormRepository) GetGiftCodeByID(id uint) (*models.GiftCode, error) {
	var gc models.GiftCode
	if err := r.db.First(&gc, id).Error; err != nil {
		return nil, err
	}
	return &gc, nil
}

// ConsumeGiftCode records one redemption for a payment. The usage insert
// conflicts on payment_id for a redelivered event, and the counter increment
// is conditional on remaining headroom so used_count can never pass
// usage_limit, no matter how many workers race. Returns false when the
// payment already consumed the code.
func (r *gormRepository) ConsumeGiftCode(giftCodeID, userID, paymentID uint) (bool, error) {
	usage := models.GiftCodeUsage{
		GiftCodeID: giftCodeID,
		UserID:     userID,
		PaymentID:  paymentID,
	}
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_id"}},
		DoNothing: true,
	}).Create(&usage)
	if tx.Error != nil {
		return false, tx.Error
	}
	if tx.RowsAffected == 0 {
		return false, nil
	}

	res := r.db.Model(&models.GiftCode{}).
		Where("id = ? AND used_count < usage_limit", giftCodeID).
		Update("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		// Rolls back the usage row when called inside a transaction.
		return false, ErrCodeExhausted
	}
	return true, nil
}

func (r *gormRepository) GetOrCreateUserByEmail(email, name string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	shadow, err := models.NewShadowUser(email, name)
	if err != nil {
		return nil, err
	}
	if createErr := r.db.Create(shadow).Error; createErr != nil {
		// A concurrent event may have created the account first.
		if refetchErr := r.db.Where("email = ?", email).First(&user).Error; refetchErr == nil {
			return &user, nil
		}
		return nil, createErr
	}
	return shadow, nil
}

// CreatePaymentIfNotExists inserts the ledger row keyed by the gateway
// correlation id. A conflict means the event was already applied; the caller
// must then skip every further side effect.
func (r *gormRepository) CreatePaymentIfNotExists(p *models.Payment) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "correlation_id"}},
		DoNothing: true,
	}).Create(p)
	if tx.Error != nil {
		return false, tx.Error
	}

	created := tx.RowsAffected > 0
	// Ensure ID is populated after a conflict.
	if err := r.db.Where("correlation_id = ?", p.CorrelationID).First(p).Error; err != nil {
		return false, err
	}
	return created, nil
}

func (r *gormRepository) GetPaymentByCorrelationID(correlationID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.Where("correlation_id = ?", correlationID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetPaymentBySessionID(sessionID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.Where("session_id = ?", sessionID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// AdvancePaymentStatus moves a payment forward, conditional on its current
// status being one of allowedFrom. Zero rows affected means the transition
// was a duplicate or would move backward; the caller decides which.
func (r *gormRepository) AdvancePaymentStatus(correlationID, newStatus string, allowedFrom ...string) (bool, error) {
	res := r.db.Model(&models.Payment{}).
		Where("correlation_id = ? AND status IN ?", correlationID, allowedFrom).
		Updates(map[string]interface{}{"status": newStatus, "updated_at": time.Now()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) GetLatestPaymentByCustomer(gatewayCustomerID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("gateway_customer_id = ?", gatewayCustomerID).
		Order("id DESC").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) UpsertEntitlementMaxExpiry(userID, productID uint, packageCode string, active bool, expiresAt time.Time) error {
	return models.UpsertEntitlementMaxExpiry(r.db, userID, productID, packageCode, active, expiresAt)
}

func (r *gormRepository) SetEntitlementActive(userID, productID uint, active bool) error {
	return models.SetEntitlementActive(r.db, userID, productID, active)
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) ListUnprocessedWebhookEvents(limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	q := r.db.Where("processed_at IS NULL OR processing_error <> ''").Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&events).Error
	return events, err
}
