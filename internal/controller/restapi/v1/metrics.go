package v1

import (
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/andreyxaxa/Event-Analytics/internal/controller/restapi/v1/response"
	"github.com/andreyxaxa/Event-Analytics/internal/entity"
)

const (
	defaultLimit = 30
	maxLimit     = 100
)

const dateLayout = "2006-01-02"

func limitParam(ctx *fiber.Ctx) int {
	limit := ctx.QueryInt("limit", defaultLimit)
	if limit < 1 || limit > maxLimit {
		return defaultLimit
	}

	return limit
}

// @Summary 	List event counts
// @Description Daily event totals per (date, event_type, aggregate_type)
// @Tags 		metrics
// @Produce 	json
// @Param 		limit query int false "Max rows (default 30)"
// @Success 	200 {array}  entity.EventCount
// @Failure 	500 {object} response.Error "Internal"
// @Router 		/v1/event-counts [get]
func (r *V1) listEventCounts(ctx *fiber.Ctx) error {
	counts, err := r.an.ListEventCounts(ctx.UserContext(), limitParam(ctx))
	if err != nil {
		r.logger.Error(err, "restapi - v1 - listEventCounts")

		return errorResponse(ctx, http.StatusInternalServerError, "database problems")
	}

	return ctx.JSON(counts)
}

// @Summary 	List lead funnel metrics
// @Description Daily funnel counters with computed conversion rate
// @Tags 		metrics
// @Produce 	json
// @Param 		limit query int false "Max rows (default 30)"
// @Success 	200 {array}  response.FunnelMetric
// @Failure 	500 {object} response.Error "Internal"
// @Router 		/v1/funnel-metrics [get]
func (r *V1) listFunnelMetrics(ctx *fiber.Ctx) error {
	metrics, err := r.an.ListFunnelMetrics(ctx.UserContext(), limitParam(ctx))
	if err != nil {
		r.logger.Error(err, "restapi - v1 - listFunnelMetrics")

		return errorResponse(ctx, http.StatusInternalServerError, "database problems")
	}

	resp := make([]response.FunnelMetric, 0, len(metrics))
	for _, m := range metrics {
		resp = append(resp, response.FunnelMetric{
			Date:                m.Date.Format(dateLayout),
			NewLeads:            m.NewLeads,
			ContactedLeads:      m.ContactedLeads,
			QualifiedLeads:      m.QualifiedLeads,
			WonLeads:            m.WonLeads,
			LostLeads:           m.LostLeads,
			TotalEstimatedValue: m.TotalEstimatedValue.String(),
			WonValue:            m.WonValue.String(),
			LostValue:           m.LostValue.String(),
			ConversionRate:      conversionRate(m),
		})
	}

	return ctx.JSON(resp)
}

// conversionRate - доля won среди всех лидов дня, проценты, 2 знака
func conversionRate(m entity.LeadFunnelMetric) string {
	total := m.NewLeads + m.ContactedLeads + m.QualifiedLeads + m.WonLeads + m.LostLeads
	if total == 0 {
		return "0.00"
	}

	return fmt.Sprintf("%.2f", float64(m.WonLeads)/float64(total)*100)
}

// @Summary 	List revenue metrics
// @Description Monthly contracted revenue per account
// @Tags 		metrics
// @Produce 	json
// @Param 		limit query int false "Max rows (default 30)"
// @Success 	200 {array}  response.RevenueMetric
// @Failure 	500 {object} response.Error "Internal"
// @Router 		/v1/revenue-metrics [get]
func (r *V1) listRevenueMetrics(ctx *fiber.Ctx) error {
	metrics, err := r.an.ListRevenueMetrics(ctx.UserContext(), limitParam(ctx))
	if err != nil {
		r.logger.Error(err, "restapi - v1 - listRevenueMetrics")

		return errorResponse(ctx, http.StatusInternalServerError, "database problems")
	}

	resp := make([]response.RevenueMetric, 0, len(metrics))
	for _, m := range metrics {
		resp = append(resp, response.RevenueMetric{
			Month:           m.Month.Format(dateLayout),
			AccountID:       m.AccountID.String(),
			ContractedValue: m.ContractedValue.String(),
			ProjectsCount:   m.ProjectsCount,
		})
	}

	return ctx.JSON(resp)
}

// @Summary 	List daily account metrics
// @Description Per-account daily activity rollups
// @Tags 		metrics
// @Produce 	json
// @Param 		limit query int false "Max rows (default 30)"
// @Success 	200 {array}  entity.DailyAccountMetric
// @Failure 	500 {object} response.Error "Internal"
// @Router 		/v1/daily-metrics [get]
func (r *V1) listDailyMetrics(ctx *fiber.Ctx) error {
	metrics, err := r.an.ListDailyAccountMetrics(ctx.UserContext(), limitParam(ctx))
	if err != nil {
		r.logger.Error(err, "restapi - v1 - listDailyMetrics")

		return errorResponse(ctx, http.StatusInternalServerError, "database problems")
	}

	return ctx.JSON(metrics)
}

// @Summary 	Pipeline summary
// @Description Totals, per-type breakdown, 7-day trend and health
// @Tags 		metrics
// @Produce 	json
// @Success 	200 {object} dto.Summary
// @Failure 	500 {object} response.Error "Internal"
// @Router 		/v1/summary [get]
func (r *V1) getSummary(ctx *fiber.Ctx) error {
	summary, err := r.an.Summary(ctx.UserContext())
	if err != nil {
		r.logger.Error(err, "restapi - v1 - getSummary")

		return errorResponse(ctx, http.StatusInternalServerError, "database problems")
	}

	return ctx.JSON(summary)
}
