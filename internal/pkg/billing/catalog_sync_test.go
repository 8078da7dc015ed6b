package billing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MortenHolst/MemberPortal/app/models"
)

func TestSyncCatalog(t *testing.T) {
	db := newTestDB(t)
	gateway := newFakeGateway()
	svc := NewServiceFromDB(db, gateway)
	seedProduct(t, db, "single", 30, 328, false)
	seedProduct(t, db, "family", 0, 500, false)

	results, err := svc.SyncCatalog(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	var single models.Product
	require.NoError(t, db.Where("code = ?", "single").First(&single).Error)
	assert.NotEmpty(t, single.GatewayProductID)
	assert.NotEmpty(t, single.GatewayPriceMonthlyID)
	assert.NotEmpty(t, single.GatewayPriceYearlyID)

	// A product without a monthly price gets no monthly gateway price.
	var family models.Product
	require.NoError(t, db.Where("code = ?", "family").First(&family).Error)
	assert.NotEmpty(t, family.GatewayProductID)
	assert.Empty(t, family.GatewayPriceMonthlyID)
	assert.NotEmpty(t, family.GatewayPriceYearlyID)

	assert.Equal(t, 2, gateway.productCreates)
	assert.Equal(t, 3, gateway.priceCreates)
}

func TestSyncCatalogIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	gateway := newFakeGateway()
	svc := NewServiceFromDB(db, gateway)
	seedProduct(t, db, "single", 30, 328, false)

	_, err := svc.SyncCatalog(context.Background())
	require.NoError(t, err)

	var before models.Product
	require.NoError(t, db.Where("code = ?", "single").First(&before).Error)

	_, err = svc.SyncCatalog(context.Background())
	require.NoError(t, err)

	var after models.Product
	require.NoError(t, db.Where("code = ?", "single").First(&after).Error)

	assert.Equal(t, before.GatewayProductID, after.GatewayProductID)
	assert.Equal(t, before.GatewayPriceMonthlyID, after.GatewayPriceMonthlyID)
	assert.Equal(t, before.GatewayPriceYearlyID, after.GatewayPriceYearlyID)
	assert.Equal(t, 1, gateway.productCreates)
	assert.Equal(t, 2, gateway.priceCreates)
}

func TestSyncCatalogSkipsInactiveProducts(t *testing.T) {
	db := newTestDB(t)
	gateway := newFakeGateway()
	svc := NewServiceFromDB(db, gateway)
	p := seedProduct(t, db, "legacy", 30, 328, false)
	require.NoError(t, db.Model(p).Update("is_active", false).Error)

	results, err := svc.SyncCatalog(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, gateway.productCreates)
}
