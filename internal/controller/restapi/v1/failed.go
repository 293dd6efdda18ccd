package v1

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/andreyxaxa/Event-Analytics/internal/controller/restapi/v1/response"
	"github.com/andreyxaxa/Event-Analytics/pkg/types/errs"
)

// @Summary 	List failed events
// @Description Unresolved dead-letter rows, most recent first
// @Tags 		dead-letter
// @Produce 	json
// @Param 		limit query int false "Max rows (default 30)"
// @Success 	200 {array}  entity.FailedEvent
// @Failure 	500 {object} response.Error "Internal"
// @Router 		/v1/failed-events [get]
func (r *V1) listFailedEvents(ctx *fiber.Ctx) error {
	events, err := r.an.ListFailedEvents(ctx.UserContext(), limitParam(ctx))
	if err != nil {
		r.logger.Error(err, "restapi - v1 - listFailedEvents")

		return errorResponse(ctx, http.StatusInternalServerError, "database problems")
	}

	return ctx.JSON(events)
}

// @Summary 	Replay failed event
// @Description Re-injects a dead-lettered event and resolves the failure row
// @Tags 		dead-letter
// @Produce 	json
// @Param 		id path string true "Failed event ID(uuid)"
// @Success 	200 {object} response.Replay
// @Failure 	400 {object} response.Error "Invalid ID"
// @Failure 	404 {object} response.Error "Failed event not found"
// @Failure 	500 {object} response.Error "Internal"
// @Router 		/v1/failed-events/{id}/replay [post]
func (r *V1) replayFailedEvent(ctx *fiber.Ctx) error {
	idStr := ctx.Params("id")

	id, err := uuid.Parse(idStr)
	if err != nil {
		return errorResponse(ctx, http.StatusBadRequest, "invalid id")
	}

	resolvedBy := ctx.Query("resolved_by")

	outcome, err := r.pl.Replay(ctx.UserContext(), id, resolvedBy)
	if err != nil {
		if errors.Is(err, errs.ErrRecordNotFound) {
			return errorResponse(ctx, http.StatusNotFound, "failed event not found")
		}
		r.logger.Error(err, "restapi - v1 - replayFailedEvent")

		return errorResponse(ctx, http.StatusInternalServerError, "replay problems")
	}

	return ctx.JSON(response.Replay{
		FailedEventID: id.String(),
		Outcome:       string(outcome),
	})
}
