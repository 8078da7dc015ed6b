package billing

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/MortenHolst/MemberPortal/app/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.GiftCode{},
		&models.GiftCodeUsage{},
		&models.Payment{},
		&models.Entitlement{},
		&models.WebhookEvent{},
	))
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, code string, monthly, yearly int64, synced bool) *models.Product {
	t.Helper()

	p := &models.Product{
		Code:         code,
		Name:         code + " membership",
		PriceMonthly: monthly,
		PriceYearly:  yearly,
		Currency:     "DKK",
		IsActive:     true,
	}
	if synced {
		p.GatewayProductID = "prod_" + code
		if monthly > 0 {
			p.GatewayPriceMonthlyID = "price_" + code + "_monthly"
		}
		if yearly > 0 {
			p.GatewayPriceYearlyID = "price_" + code + "_yearly"
		}
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func seedGiftCode(t *testing.T, db *gorm.DB, gc *models.GiftCode) *models.GiftCode {
	t.Helper()

	if gc.ValidFrom.IsZero() {
		gc.ValidFrom = time.Now().Add(-time.Hour)
	}
	if gc.UsageLimit == 0 {
		gc.UsageLimit = 1
	}
	gc.IsActive = true
	require.NoError(t, db.Create(gc).Error)
	return gc
}

// fakeGateway is an in-memory Gateway with find-or-create semantics
// matching the real adapter, plus call counters for idempotency assertions.
type fakeGateway struct {
	products       map[string]string
	prices         map[string]string
	coupons        map[string]float64
	sessions       []CheckoutSessionRequest
	productCreates int
	priceCreates   int
	couponCreates  int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		products: map[string]string{},
		prices:   map[string]string{},
		coupons:  map[string]float64{},
	}
}

func (g *fakeGateway) EnsureProduct(_ context.Context, code, _ string) (string, error) {
	if id, ok := g.products[code]; ok {
		return id, nil
	}
	id := "prod_fake_" + code
	g.products[code] = id
	g.productCreates++
	return id, nil
}

func (g *fakeGateway) EnsureRecurringPrice(_ context.Context, gatewayProductID, currency string, amount int64, interval string) (string, error) {
	key := fmt.Sprintf("%s|%s|%d|%s", gatewayProductID, currency, amount, interval)
	if id, ok := g.prices[key]; ok {
		return id, nil
	}
	id := fmt.Sprintf("price_fake_%d", len(g.prices)+1)
	g.prices[key] = id
	g.priceCreates++
	return id, nil
}

func (g *fakeGateway) EnsureCoupon(_ context.Context, couponID, _ string, percentOff float64) (string, error) {
	if _, ok := g.coupons[couponID]; !ok {
		g.coupons[couponID] = percentOff
		g.couponCreates++
	}
	return couponID, nil
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	g.sessions = append(g.sessions, req)
	id := fmt.Sprintf("cs_fake_%d", len(g.sessions))
	return &CheckoutSession{ID: id, URL: "https://gateway.test/pay/" + id}, nil
}
