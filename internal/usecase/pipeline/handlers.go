package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/andreyxaxa/Event-Analytics/internal/dto"
	"github.com/andreyxaxa/Event-Analytics/internal/entity"
)

// applyHandler выбирает обработчик по типу агрегата внутри транзакции
// обработки. Для неизвестного типа обработчика нет - событие только
// учитывается в счетчиках.
func (uc *PipelineUseCase) applyHandler(ctx context.Context, task dto.Event) error {
	switch entity.AggregateType(task.AggregateType) {
	case entity.AggregateLeads:
		return uc.handleLeadEvent(ctx, task)
	case entity.AggregateProjects:
		return uc.handleProjectEvent(ctx, task)
	case entity.AggregateAccounts:
		uc.logger.Debug("account event %s received, no rollup configured", task.EventID)

		return nil
	case entity.AggregateActivities:
		uc.logger.Debug("activity event %s received, no rollup configured", task.EventID)

		return nil
	default:
		uc.logger.Debug("no handler for aggregate type %q, event %s counted only",
			task.AggregateType, task.EventID)

		return nil
	}
}

// handleLeadEvent вносит изменение лида в дневную строку воронки.
// Воронку двигают только insert/update события, delete учитывается
// выше и здесь игнорируется.
func (uc *PipelineUseCase) handleLeadEvent(ctx context.Context, task dto.Event) error {
	payload, err := task.PayloadMap()
	if err != nil {
		return fmt.Errorf("task.PayloadMap: %w", err)
	}

	if !isInsertOrUpdate(task.EventType) {
		return nil
	}

	status := payloadString(payload, "lead_status")
	if status == "" {
		status = "new"
	}

	value := payloadDecimal(payload, "estimated_value")

	delta := entity.LeadFunnelDelta{TotalEstimatedValue: value}

	switch status {
	case "new":
		delta.NewLeads = 1
	case "contacted":
		delta.ContactedLeads = 1
	case "qualified":
		delta.QualifiedLeads = 1
	case "won":
		delta.WonLeads = 1
		delta.WonValue = value
	case "lost":
		delta.LostLeads = 1
		delta.LostValue = value
	default:
		uc.logger.Warn("unknown lead_status %q in event %s, value tracked only", status, task.EventID)
	}

	if delta.IsZero() {
		return nil
	}

	err = uc.metricsRepo.ApplyFunnelDelta(ctx, dateOf(time.Now()), delta)
	if err != nil {
		return fmt.Errorf("uc.metricsRepo.ApplyFunnelDelta: %w", err)
	}

	return nil
}

// handleProjectEvent добавляет стоимость контракта в месячную строку
// выручки аккаунта. События без account_id или с нулевым contract_value
// пропускаются.
func (uc *PipelineUseCase) handleProjectEvent(ctx context.Context, task dto.Event) error {
	payload, err := task.PayloadMap()
	if err != nil {
		return fmt.Errorf("task.PayloadMap: %w", err)
	}

	accountID, err := uuid.Parse(payloadString(payload, "account_id"))
	if err != nil {
		return nil
	}

	value := payloadDecimal(payload, "contract_value")
	if value.IsZero() {
		return nil
	}

	err = uc.metricsRepo.AddRevenue(ctx, monthOf(time.Now()), accountID, value)
	if err != nil {
		return fmt.Errorf("uc.metricsRepo.AddRevenue: %w", err)
	}

	return nil
}

func isInsertOrUpdate(eventType string) bool {
	upper := strings.ToUpper(eventType)

	return strings.Contains(upper, "INSERT") || strings.Contains(upper, "UPDATE")
}

func payloadString(payload map[string]interface{}, key string) string {
	s, _ := payload[key].(string)

	return s
}

// payloadDecimal принимает значение как JSON-строку или число,
// все остальное читается как ноль.
func payloadDecimal(payload map[string]interface{}, key string) decimal.Decimal {
	switch v := payload[key].(type) {
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero
		}

		return d
	case float64:
		return decimal.NewFromFloat(v)
	default:
		return decimal.Zero
	}
}

func monthOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
