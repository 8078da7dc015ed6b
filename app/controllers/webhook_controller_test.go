package controllers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
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

const testWebhookSecret = "whsec_test"

func setupWebhookTest(t *testing.T) *fiber.App {
	t.Helper()
	t.Setenv("GATEWAY_WEBHOOK_SECRET", testWebhookSecret)

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
	database.SetDB(db)

	require.NoError(t, db.Create(&models.Product{
		Code: "single", Name: "single membership",
		PriceMonthly: 30, PriceYearly: 328, Currency: "DKK", IsActive: true,
		GatewayProductID:      "prod_single",
		GatewayPriceMonthlyID: "price_single_monthly",
		GatewayPriceYearlyID:  "price_single_yearly",
	}).Error)

	app := fiber.New()
	app.Post("/api/v1/webhooks/gateway", HandleGatewayWebhook)
	return app
}

func signWebhookPayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func postWebhook(t *testing.T, app *fiber.App, payload []byte, signature string) int {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/webhooks/gateway", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp.StatusCode
}

func checkoutCompletedPayload(eventID, paymentIntent string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_1",
			"payment_intent": %q,
			"customer": "cus_1",
			"currency": "dkk",
			"customer_details": {"email": "buyer@example.com"},
			"metadata": {
				"package_code": "single",
				"billing_cycle": "yearly",
				"original_amount": "328",
				"discount_amount": "0"
			}
		}}
	}`, eventID, paymentIntent))
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	app := setupWebhookTest(t)
	payload := checkoutCompletedPayload("evt_1", "pi_1")

	status := postWebhook(t, app, payload, "t=1,v1=deadbeef")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status = postWebhook(t, app, payload, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	// A rejected delivery leaves zero side effects.
	var eventCount, paymentCount int64
	require.NoError(t, database.GetDB().Model(&models.WebhookEvent{}).Count(&eventCount).Error)
	require.NoError(t, database.GetDB().Model(&models.Payment{}).Count(&paymentCount).Error)
	assert.Zero(t, eventCount)
	assert.Zero(t, paymentCount)
}

func TestWebhookAppliesCheckoutCompleted(t *testing.T) {
	app := setupWebhookTest(t)
	payload := checkoutCompletedPayload("evt_1", "pi_1")

	status := postWebhook(t, app, payload, signWebhookPayload(payload, testWebhookSecret))
	assert.Equal(t, fiber.StatusOK, status)

	db := database.GetDB()
	var payment models.Payment
	require.NoError(t, db.Where("correlation_id = ?", "pi_1").First(&payment).Error)
	assert.Equal(t, int64(328), payment.Amount)

	var event models.WebhookEvent
	require.NoError(t, db.Where("provider_event_id = ?", "evt_1").First(&event).Error)
	assert.NotNil(t, event.ProcessedAt)
	assert.Empty(t, event.ProcessingError)
}

func TestWebhookDuplicateDeliveryIsAcknowledged(t *testing.T) {
	app := setupWebhookTest(t)
	payload := checkoutCompletedPayload("evt_1", "pi_1")

	require.Equal(t, fiber.StatusOK, postWebhook(t, app, payload, signWebhookPayload(payload, testWebhookSecret)))
	require.Equal(t, fiber.StatusOK, postWebhook(t, app, payload, signWebhookPayload(payload, testWebhookSecret)))

	db := database.GetDB()
	var eventCount, paymentCount int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&eventCount).Error)
	require.NoError(t, db.Model(&models.Payment{}).Count(&paymentCount).Error)
	assert.Equal(t, int64(1), eventCount)
	assert.Equal(t, int64(1), paymentCount)
}

func TestWebhookIgnoresUnknownEventTypes(t *testing.T) {
	app := setupWebhookTest(t)
	payload := []byte(`{"id":"evt_2","type":"invoice.finalized","data":{"object":{}}}`)

	status := postWebhook(t, app, payload, signWebhookPayload(payload, testWebhookSecret))
	assert.Equal(t, fiber.StatusOK, status)

	var event models.WebhookEvent
	require.NoError(t, database.GetDB().Where("provider_event_id = ?", "evt_2").First(&event).Error)
	assert.NotNil(t, event.ProcessedAt)
}

func TestWebhookRejectsMalformedEnvelope(t *testing.T) {
	app := setupWebhookTest(t)
	payload := []byte(`{"id":"evt_x"}`)

	status := postWebhook(t, app, payload, signWebhookPayload(payload, testWebhookSecret))
	assert.Equal(t, fiber.StatusBadRequest, status)

	// The delivery is still persisted and flagged for the operator.
	var event models.WebhookEvent
	require.NoError(t, database.GetDB().Where("provider = ?", models.GatewayProviderStripe).First(&event).Error)
	assert.NotEmpty(t, event.ProcessingError)
}

func TestWebhookFlagsUnprocessableEvents(t *testing.T) {
	app := setupWebhookTest(t)
	// Valid envelope, but the product does not exist.
	payload := []byte(`{
		"id": "evt_3",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_9",
			"payment_intent": "pi_9",
			"customer_details": {"email": "buyer@example.com"},
			"metadata": {"package_code": "ghost", "billing_cycle": "yearly"}
		}}
	}`)

	status := postWebhook(t, app, payload, signWebhookPayload(payload, testWebhookSecret))
	// Acknowledged so the gateway stops retrying; flagged for the operator.
	assert.Equal(t, fiber.StatusOK, status)

	var event models.WebhookEvent
	require.NoError(t, database.GetDB().Where("provider_event_id = ?", "evt_3").First(&event).Error)
	assert.NotEmpty(t, event.ProcessingError)
}
