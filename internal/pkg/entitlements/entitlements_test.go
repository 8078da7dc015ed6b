package entitlements

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
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
	require.NoError(t, db.AutoMigrate(&models.Entitlement{}))
	return db
}

func TestUpsertMaxExpiryGrowsOnly(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)

	near := time.Now().AddDate(0, 1, 0).Truncate(time.Second)
	far := time.Now().AddDate(1, 0, 0).Truncate(time.Second)

	require.NoError(t, store.UpsertMaxExpiry(1, 10, "single", true, near))
	require.NoError(t, store.UpsertMaxExpiry(1, 10, "single", true, far))
	// Replaying the shorter grant must not shorten access.
	require.NoError(t, store.UpsertMaxExpiry(1, 10, "single", true, near))

	ent, err := store.GetActiveEntitlement(1, 10)
	require.NoError(t, err)
	require.NotNil(t, ent)
	assert.WithinDuration(t, far, ent.ExpiresAt, time.Second)

	var count int64
	require.NoError(t, db.Model(&models.Entitlement{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestHasActiveAccess(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	InvalidateAccess(1, "single")
	InvalidateAccess(1, "family")

	ok, err := store.HasActiveAccess(1, "single")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.UpsertMaxExpiry(1, 10, "single", true, time.Now().AddDate(1, 0, 0)))
	InvalidateAccess(1, "single")

	ok, err = store.HasActiveAccess(1, "single")
	require.NoError(t, err)
	assert.True(t, ok)

	// A different product grants nothing.
	ok, err = store.HasActiveAccess(1, "family")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasActiveAccessExpiredOrInactive(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)

	// Expired but still active-flagged.
	require.NoError(t, db.Create(&models.Entitlement{
		UserID: 1, ProductID: 10, PackageCode: "single", IsActive: true,
		StartedAt: time.Now().AddDate(-1, 0, 0), ExpiresAt: time.Now().Add(-time.Hour),
	}).Error)
	// Unexpired but deactivated.
	require.NoError(t, db.Create(&models.Entitlement{
		UserID: 2, ProductID: 10, PackageCode: "single", IsActive: false,
		StartedAt: time.Now(), ExpiresAt: time.Now().AddDate(1, 0, 0),
	}).Error)
	InvalidateAccess(1, "single")
	InvalidateAccess(2, "single")

	ok, err := store.HasActiveAccess(1, "single")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.HasActiveAccess(2, "single")
	require.NoError(t, err)
	assert.False(t, ok)

	ent, err := store.GetActiveEntitlement(1, 10)
	require.NoError(t, err)
	assert.Nil(t, ent)
}

func TestDeactivatePreservesExpiry(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)

	expires := time.Now().AddDate(1, 0, 0).Truncate(time.Second)
	require.NoError(t, store.UpsertMaxExpiry(1, 10, "single", true, expires))
	require.NoError(t, store.Deactivate(1, 10, "single"))

	var ent models.Entitlement
	require.NoError(t, db.Where("user_id = ? AND product_id = ?", 1, 10).First(&ent).Error)
	assert.False(t, ent.IsActive)
	assert.WithinDuration(t, expires, ent.ExpiresAt, time.Second)
}

func TestListActiveEntitlements(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)

	require.NoError(t, store.UpsertMaxExpiry(1, 10, "single", true, time.Now().AddDate(1, 0, 0)))
	require.NoError(t, store.UpsertMaxExpiry(1, 11, "family", true, time.Now().AddDate(0, 1, 0)))
	require.NoError(t, store.UpsertMaxExpiry(2, 10, "single", true, time.Now().AddDate(1, 0, 0)))
	require.NoError(t, store.Deactivate(1, 11, "family"))

	ents, err := store.ListActiveEntitlements(1)
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, "single", ents[0].PackageCode)
}
