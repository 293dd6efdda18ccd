package v1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/andreyxaxa/Event-Analytics/internal/usecase"
	"github.com/andreyxaxa/Event-Analytics/pkg/logger"
)

func NewAnalyticsRoutes(apiV1Group fiber.Router, an usecase.AnalyticsUseCase, pl usecase.PipelineUseCase, l logger.Interface) {
	r := &V1{an: an, pl: pl, logger: l}

	{
		// метрики
		apiV1Group.Get("/event-counts", r.listEventCounts)
		apiV1Group.Get("/funnel-metrics", r.listFunnelMetrics)
		apiV1Group.Get("/revenue-metrics", r.listRevenueMetrics)
		apiV1Group.Get("/daily-metrics", r.listDailyMetrics)
		apiV1Group.Get("/summary", r.getSummary)

		// события
		apiV1Group.Get("/events", r.listEvents)
		apiV1Group.Get("/events/:event_id/trace", r.traceEvent)
		apiV1Group.Post("/test-events", r.createTestEvent)

		// dead-letter
		apiV1Group.Get("/failed-events", r.listFailedEvents)
		apiV1Group.Post("/failed-events/:id/replay", r.replayFailedEvent)
	}
}
