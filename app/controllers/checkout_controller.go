package controllers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/MortenHolst/MemberPortal/internal/pkg/billing"
	"github.com/MortenHolst/MemberPortal/internal/pkg/database"
	"github.com/MortenHolst/MemberPortal/internal/pkg/metrics"
)

var validate = validator.New()

// HandleCreateCheckout builds a hosted checkout session for a membership
// purchase. Validation and gift code problems come back as 422 with a
// stable error code; configuration problems are the operator's, not the
// purchaser's, and answer 500.
func HandleCreateCheckout(c *fiber.Ctx) error {
	var input billing.CheckoutInput
	if err := c.BodyParser(&input); err != nil {
		metrics.RecordCheckoutSession("invalid_input")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Malformed request body"})
	}
	if err := validate.Struct(input); err != nil {
		metrics.RecordCheckoutSession("invalid_input")
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	}

	svc := billing.NewServiceFromDB(database.GetDB(), billing.NewStripeGatewayFromEnv())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	result, err := svc.BuildCheckoutSession(ctx, input)
	if err != nil {
		if billing.IsUserError(err) {
			metrics.RecordCheckoutSession("rejected")
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error":   billing.ErrorCode(err),
				"message": err.Error(),
			})
		}
		if errors.Is(err, billing.ErrCatalogNotSynchronized) {
			log.Printf("checkout blocked, catalog not synchronized: %v", err)
			metrics.RecordCheckoutSession("catalog_not_synchronized")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": billing.ErrorCode(err)})
		}
		log.Printf("checkout session build failed: %v", err)
		metrics.RecordCheckoutSession("error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
	}

	metrics.RecordCheckoutSession("created")
	return c.Status(fiber.StatusCreated).JSON(result)
}

// HandleCheckoutConfirmation answers the post-checkout landing page poll.
func HandleCheckoutConfirmation(c *fiber.Ctx) error {
	sessionID := strings.TrimSpace(c.Query("session_id"))
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "session_id is required"})
	}

	svc := billing.NewServiceFromDB(database.GetDB(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := svc.CheckoutConfirmation(ctx, sessionID)
	if err != nil {
		log.Printf("checkout confirmation lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
	}
	return c.Status(fiber.StatusOK).JSON(result)
}
