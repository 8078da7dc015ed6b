package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/MortenHolst/MemberPortal/app/controllers"
	"github.com/MortenHolst/MemberPortal/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		// The gateway retries aggressively; never rate-limit it away.
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/api/v1/webhooks/gateway"
		},
	}))

	v1 := api.Group("/v1")

	v1.Post("/checkout", controllers.HandleCreateCheckout)
	v1.Get("/checkout/confirmation", controllers.HandleCheckoutConfirmation)

	v1.Post("/webhooks/gateway", controllers.HandleGatewayWebhook)

	v1.Get("/access", controllers.HandleAccessCheck)
	v1.Get("/entitlements/:account_id", controllers.HandleListEntitlements)

	admin := v1.Group("/admin", middleware.AdminKeyMiddleware())
	admin.Post("/catalog/sync", controllers.HandleCatalogSync)
	admin.Get("/webhook-events", controllers.HandleListWebhookEvents)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
