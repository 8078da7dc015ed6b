package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/MortenHolst/MemberPortal/app/models"
	"github.com/MortenHolst/MemberPortal/internal/pkg/billing"
	"github.com/MortenHolst/MemberPortal/internal/pkg/database"
	"github.com/MortenHolst/MemberPortal/internal/pkg/env"
	"github.com/MortenHolst/MemberPortal/internal/pkg/metrics"
)

// HandleGatewayWebhook receives payment gateway notifications. The contract
// with the gateway is at-least-once, unordered delivery: bad signatures and
// unparseable envelopes are rejected with 4xx (a bad signature with zero
// side effects); everything else is acknowledged with 200 so the gateway
// stops retrying, and events that cannot be applied land in the operator
// queue instead.
func HandleGatewayWebhook(c *fiber.Ctx) error {
	start := time.Now()
	rawBody := append([]byte(nil), c.BodyRaw()...)
	secret := env.GetEnv("GATEWAY_WEBHOOK_SECRET", "")

	if !billing.VerifyWebhookSignature(rawBody, c.Get("Stripe-Signature"), secret, time.Now(), billing.DefaultSignatureTolerance) {
		metrics.RecordWebhookEvent("unknown", "rejected", time.Since(start).Seconds())
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	envelope, parseErr := billing.ParseEventEnvelope(rawBody)
	eventID, eventType := "", ""
	if envelope != nil {
		eventID = envelope.ID
		eventType = envelope.Type
	}

	svc := billing.NewServiceFromDB(database.GetDB(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	created, stored, err := svc.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        models.GatewayProviderStripe,
		ProviderEventID: eventID,
		EventType:       eventType,
		PayloadJSON:     string(rawBody),
	})
	if err != nil {
		// Not persisted means not acknowledged; the gateway will retry.
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		metrics.RecordWebhookEvent(eventType, "duplicate", time.Since(start).Seconds())
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	if parseErr != nil {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, parseErr)
		metrics.RecordWebhookEvent("unknown", "failed", time.Since(start).Seconds())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	if !billing.IsReconcilableEvent(envelope.Type) {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, nil)
		metrics.RecordWebhookEvent(eventType, "ignored", time.Since(start).Seconds())
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	procErr := svc.ProcessEvent(ctx, envelope)
	_ = svc.MarkWebhookProcessed(ctx, stored.ID, procErr)
	if procErr != nil {
		metrics.RecordWebhookEvent(eventType, "failed", time.Since(start).Seconds())
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "flagged": true})
	}

	metrics.RecordWebhookEvent(eventType, "applied", time.Since(start).Seconds())
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
