package v1

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/andreyxaxa/Event-Analytics/internal/controller/restapi/v1/response"
	"github.com/andreyxaxa/Event-Analytics/internal/dto"
	"github.com/andreyxaxa/Event-Analytics/internal/entity"
	"github.com/andreyxaxa/Event-Analytics/pkg/types/errs"
)

const recentEventsLimit = 50

// @Summary 	List recent events
// @Description 50 most recent outbox rows with derived pipeline status
// @Tags 		events
// @Produce 	json
// @Success 	200 {array}  entity.OutboxEventStatus
// @Failure 	500 {object} response.Error "Internal"
// @Router 		/v1/events [get]
func (r *V1) listEvents(ctx *fiber.Ctx) error {
	events, err := r.an.ListRecentEvents(ctx.UserContext(), recentEventsLimit)
	if err != nil {
		r.logger.Error(err, "restapi - v1 - listEvents")

		return errorResponse(ctx, http.StatusInternalServerError, "database problems")
	}

	return ctx.JSON(events)
}

// @Summary 	Trace event
// @Description Follows one event_id across outbox, ledger, dead-letter and counts
// @Tags 		events
// @Produce 	json
// @Param 		event_id path string true "Event ID"
// @Success 	200 {object} dto.EventTrace
// @Failure 	404 {object} response.Error "Event not found"
// @Failure 	500 {object} response.Error "Internal"
// @Router 		/v1/events/{event_id}/trace [get]
func (r *V1) traceEvent(ctx *fiber.Ctx) error {
	eventID := ctx.Params("event_id")
	if eventID == "" {
		return errorResponse(ctx, http.StatusBadRequest, "event_id is required")
	}

	trace, err := r.an.TraceEvent(ctx.UserContext(), eventID)
	if err != nil {
		if errors.Is(err, errs.ErrRecordNotFound) {
			return errorResponse(ctx, http.StatusNotFound, "event not found")
		}
		r.logger.Error(err, "restapi - v1 - traceEvent")

		return errorResponse(ctx, http.StatusInternalServerError, "database problems")
	}

	return ctx.JSON(trace)
}

// @Summary 	Create test event
// @Description Inserts a synthetic lead event into the outbox
// @Tags 		events
// @Accept 		json
// @Produce 	json
// @Param 		request body dto.TestEvent false "Test event fields"
// @Success 	201 {object} response.TestEvent
// @Failure 	400 {object} response.Error "Malformed body"
// @Failure 	500 {object} response.Error "Internal"
// @Router 		/v1/test-events [post]
func (r *V1) createTestEvent(ctx *fiber.Ctx) error {
	var req dto.TestEvent
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return errorResponse(ctx, http.StatusBadRequest, "malformed body")
		}
	}

	if req.AggregateType != "" && !entity.AggregateType(req.AggregateType).Known() {
		return errorResponse(ctx, http.StatusBadRequest, "unknown aggregate_type")
	}

	event, err := r.an.CreateTestEvent(ctx.UserContext(), req)
	if err != nil {
		r.logger.Error(err, "restapi - v1 - createTestEvent")

		return errorResponse(ctx, http.StatusInternalServerError, "database problems")
	}

	resp := response.TestEvent{
		ID:            event.ID.String(),
		EventID:       event.EventID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType.String(),
		AggregateID:   event.AggregateID.String(),
		Payload:       event.Payload,
		CreatedAt:     event.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}

	return ctx.Status(http.StatusCreated).JSON(resp)
}
