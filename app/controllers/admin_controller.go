package controllers

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/MortenHolst/MemberPortal/internal/pkg/billing"
	"github.com/MortenHolst/MemberPortal/internal/pkg/database"
)

// HandleCatalogSync pushes the product catalog into the gateway. Safe to
// run at any time; find-or-create semantics make repeats no-ops.
func HandleCatalogSync(c *fiber.Ctx) error {
	svc := billing.NewServiceFromDB(database.GetDB(), billing.NewStripeGatewayFromEnv())
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	results, err := svc.SyncCatalog(ctx)
	if err != nil {
		log.Printf("catalog sync failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":  "catalog_sync_failed",
			"synced": results,
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "synced": results})
}

// HandleListWebhookEvents returns the operator queue: acknowledged events
// that still need a human.
func HandleListWebhookEvents(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "50"))

	svc := billing.NewServiceFromDB(database.GetDB(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	events, err := svc.ListUnprocessedEvents(ctx, limit)
	if err != nil {
		log.Printf("webhook event list failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"events": events})
}
