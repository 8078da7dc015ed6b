package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/MortenHolst/MemberPortal/app/models"
	"github.com/MortenHolst/MemberPortal/internal/pkg/database"
)

func setupCheckoutTest(t *testing.T) *fiber.App {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Product{},
		&models.GiftCode{},
		&models.Payment{},
	))
	database.SetDB(db)

	require.NoError(t, db.Create(&models.Product{
		Code: "single", Name: "single membership",
		PriceMonthly: 30, PriceYearly: 328, Currency: "DKK", IsActive: true,
		GatewayProductID:      "prod_single",
		GatewayPriceMonthlyID: "price_single_monthly",
		GatewayPriceYearlyID:  "price_single_yearly",
	}).Error)

	app := fiber.New()
	app.Post("/api/v1/checkout", HandleCreateCheckout)
	app.Get("/api/v1/checkout/confirmation", HandleCheckoutConfirmation)
	return app
}

func postCheckout(t *testing.T, app *fiber.App, body map[string]string) (int, map[string]any) {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/api/v1/checkout", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	return resp.StatusCode, parsed
}

func TestCheckoutValidationErrors(t *testing.T) {
	app := setupCheckoutTest(t)

	status, _ := postCheckout(t, app, map[string]string{
		"billing_cycle": "yearly",
		"email":         "buyer@example.com",
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)

	status, _ = postCheckout(t, app, map[string]string{
		"package_type":  "single",
		"billing_cycle": "weekly",
		"email":         "buyer@example.com",
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)

	status, _ = postCheckout(t, app, map[string]string{
		"package_type":  "single",
		"billing_cycle": "yearly",
		"email":         "not-an-email",
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
}

func TestCheckoutGiftCodeErrorsUseStableCodes(t *testing.T) {
	app := setupCheckoutTest(t)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, database.GetDB().Create(&models.GiftCode{
		Code: "OLD", Kind: models.GiftCodeKindPercentage, PercentOff: 20,
		ValidFrom: past.Add(-time.Hour), ValidTo: &past, UsageLimit: 1, IsActive: true,
	}).Error)

	status, body := postCheckout(t, app, map[string]string{
		"package_type":  "single",
		"billing_cycle": "yearly",
		"email":         "buyer@example.com",
		"gift_code_id":  "NOPE",
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "code_not_found", body["error"])

	status, body = postCheckout(t, app, map[string]string{
		"package_type":  "single",
		"billing_cycle": "yearly",
		"email":         "buyer@example.com",
		"gift_code_id":  "OLD",
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "code_expired", body["error"])

	status, body = postCheckout(t, app, map[string]string{
		"package_type":  "ghost",
		"billing_cycle": "yearly",
		"email":         "buyer@example.com",
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "product_unavailable", body["error"])
}

func TestCheckoutConfirmationEndpoint(t *testing.T) {
	app := setupCheckoutTest(t)

	req := httptest.NewRequest("GET", "/api/v1/checkout/confirmation?session_id=cs_missing", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "processing", body["status"])

	req = httptest.NewRequest("GET", "/api/v1/checkout/confirmation", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
