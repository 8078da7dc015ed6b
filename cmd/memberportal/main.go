package main

import (
	"fmt"
	"log"
	"os"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MortenHolst/MemberPortal/internal/pkg/cache"
	"github.com/MortenHolst/MemberPortal/internal/pkg/database"
	"github.com/MortenHolst/MemberPortal/internal/pkg/env"
	"github.com/MortenHolst/MemberPortal/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	app := fiber.New(fiber.Config{
		AppName: "MemberPortal",
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// SWAGGER / OPENAPI
	if specPath := findOpenAPISpec(); specPath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: specPath,
			Path:     "v1",
		}))
	}

	// ROUTER
	router.InstallRouter(app)

	return app
}

// findOpenAPISpec locates the spec whether the binary runs from the project
// root or from cmd/memberportal.
func findOpenAPISpec() string {
	candidates := []string{
		"./public/docs/v1/openapi.yml",
		"../../public/docs/v1/openapi.yml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
