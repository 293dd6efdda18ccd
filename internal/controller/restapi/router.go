package restapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"

	"github.com/andreyxaxa/Event-Analytics/config"
	v1 "github.com/andreyxaxa/Event-Analytics/internal/controller/restapi/v1"
	"github.com/andreyxaxa/Event-Analytics/internal/usecase"
	"github.com/andreyxaxa/Event-Analytics/pkg/logger"
)

// @title Event Analytics
// @version 1.0.0
// @host localhost:8080
// @BasePath /v1
func NewRouter(app *fiber.App, cfg *config.Config, an usecase.AnalyticsUseCase, pl usecase.PipelineUseCase, l logger.Interface) {
	// Swagger
	if cfg.Swagger.Enabled {
		app.Get("/swagger/*", swagger.HandlerDefault)
	}

	// Routers
	apiV1Group := app.Group("/v1")
	{
		v1.NewAnalyticsRoutes(apiV1Group, an, pl, l)
	}
}
