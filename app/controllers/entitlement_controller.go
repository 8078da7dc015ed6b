package controllers

import (
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/MortenHolst/MemberPortal/internal/pkg/database"
	"github.com/MortenHolst/MemberPortal/internal/pkg/entitlements"
)

// HandleAccessCheck answers whether an account currently has access to a
// product. This is the read contract every access-gated surface uses.
func HandleAccessCheck(c *fiber.Ctx) error {
	accountID, err := parseAccountID(c.Query("account_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "account_id must be a positive integer"})
	}
	productCode := strings.TrimSpace(c.Query("product_code"))
	if productCode == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "product_code is required"})
	}

	store := entitlements.NewStore(database.GetDB())
	hasAccess, err := store.HasActiveAccess(accountID, productCode)
	if err != nil {
		log.Printf("access check failed for account %d: %v", accountID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"account_id":   accountID,
		"product_code": productCode,
		"has_access":   hasAccess,
	})
}

// HandleListEntitlements lists an account's live entitlements.
func HandleListEntitlements(c *fiber.Ctx) error {
	accountID, err := parseAccountID(c.Params("account_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "account_id must be a positive integer"})
	}

	store := entitlements.NewStore(database.GetDB())
	ents, err := store.ListActiveEntitlements(accountID)
	if err != nil {
		log.Printf("entitlement list failed for account %d: %v", accountID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"account_id":   accountID,
		"entitlements": ents,
	})
}

func parseAccountID(raw string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil || id == 0 {
		return 0, strconv.ErrSyntax
	}
	return uint(id), nil
}
