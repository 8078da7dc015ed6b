package middleware

import (
	"crypto/hmac"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/MortenHolst/MemberPortal/internal/pkg/env"
)

// AdminKeyMiddleware guards operator endpoints with a shared API key from
// ADMIN_API_KEY. With no key configured the admin surface stays closed.
func AdminKeyMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		expected := strings.TrimSpace(env.GetEnv("ADMIN_API_KEY", ""))
		if expected == "" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Admin API is not configured"})
		}

		got := extractAPIKeyFromHeader(c)
		if got == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}
		if !hmac.Equal([]byte(got), []byte(expected)) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
		}

		return c.Next()
	}
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
