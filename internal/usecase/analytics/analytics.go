package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/andreyxaxa/Event-Analytics/internal/dto"
	"github.com/andreyxaxa/Event-Analytics/internal/entity"
	"github.com/andreyxaxa/Event-Analytics/internal/repo"
	"github.com/andreyxaxa/Event-Analytics/pkg/logger"
	"github.com/andreyxaxa/Event-Analytics/pkg/types/errs"
)

const dailyTrendDays = 7

// AnalyticsUseCase отдает read-only запросы дашборда и хелперы
// developer-консоли. Метрики не меняет, кроме backfill - он
// пересчитывает event_counts из самого аутбокса.
type AnalyticsUseCase struct {
	outboxRepo    repo.OutboxRepo
	processedRepo repo.ProcessedEventRepo
	failedRepo    repo.FailedEventRepo
	metricsRepo   repo.MetricsRepo
	logger        logger.Interface
}

func New(
	outboxRepo repo.OutboxRepo,
	processedRepo repo.ProcessedEventRepo,
	failedRepo repo.FailedEventRepo,
	metricsRepo repo.MetricsRepo,
	l logger.Interface,
) *AnalyticsUseCase {
	return &AnalyticsUseCase{
		outboxRepo:    outboxRepo,
		processedRepo: processedRepo,
		failedRepo:    failedRepo,
		metricsRepo:   metricsRepo,
		logger:        l,
	}
}

func (uc *AnalyticsUseCase) ListEventCounts(ctx context.Context, limit int) ([]entity.EventCount, error) {
	counts, err := uc.metricsRepo.ListEventCounts(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("AnalyticsUseCase - ListEventCounts - uc.metricsRepo.ListEventCounts: %w", err)
	}

	return counts, nil
}

func (uc *AnalyticsUseCase) ListFunnelMetrics(ctx context.Context, limit int) ([]entity.LeadFunnelMetric, error) {
	metrics, err := uc.metricsRepo.ListFunnelMetrics(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("AnalyticsUseCase - ListFunnelMetrics - uc.metricsRepo.ListFunnelMetrics: %w", err)
	}

	return metrics, nil
}

func (uc *AnalyticsUseCase) ListRevenueMetrics(ctx context.Context, limit int) ([]entity.RevenueMetric, error) {
	metrics, err := uc.metricsRepo.ListRevenueMetrics(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("AnalyticsUseCase - ListRevenueMetrics - uc.metricsRepo.ListRevenueMetrics: %w", err)
	}

	return metrics, nil
}

func (uc *AnalyticsUseCase) ListDailyAccountMetrics(ctx context.Context, limit int) ([]entity.DailyAccountMetric, error) {
	metrics, err := uc.metricsRepo.ListDailyAccountMetrics(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("AnalyticsUseCase - ListDailyAccountMetrics - uc.metricsRepo.ListDailyAccountMetrics: %w", err)
	}

	return metrics, nil
}

func (uc *AnalyticsUseCase) ListRecentEvents(ctx context.Context, limit int) ([]*entity.OutboxEventStatus, error) {
	events, err := uc.outboxRepo.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("AnalyticsUseCase - ListRecentEvents - uc.outboxRepo.ListRecent: %w", err)
	}

	return events, nil
}

func (uc *AnalyticsUseCase) ListFailedEvents(ctx context.Context, limit int) ([]*entity.FailedEvent, error) {
	events, err := uc.failedRepo.ListUnresolved(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("AnalyticsUseCase - ListFailedEvents - uc.failedRepo.ListUnresolved: %w", err)
	}

	return events, nil
}

// TraceEvent собирает все известное про event_id по аутбоксу, журналу
// обработки, dead-letter хранилищу и счетчикам. Отсутствующий этап -
// nil поле, не ошибка; not found только если события нет нигде.
func (uc *AnalyticsUseCase) TraceEvent(ctx context.Context, eventID string) (*dto.EventTrace, error) {
	trace := &dto.EventTrace{EventID: eventID}

	outbox, err := uc.outboxRepo.GetByEventID(ctx, eventID)
	if err != nil && !errors.Is(err, errs.ErrRecordNotFound) {
		return nil, fmt.Errorf("AnalyticsUseCase - TraceEvent - uc.outboxRepo.GetByEventID: %w", err)
	}
	trace.Outbox = outbox

	processed, err := uc.processedRepo.GetByEventID(ctx, eventID)
	if err != nil && !errors.Is(err, errs.ErrRecordNotFound) {
		return nil, fmt.Errorf("AnalyticsUseCase - TraceEvent - uc.processedRepo.GetByEventID: %w", err)
	}
	trace.Processed = processed

	failed, err := uc.failedRepo.GetUnresolvedByEventID(ctx, eventID)
	if err != nil && !errors.Is(err, errs.ErrRecordNotFound) {
		return nil, fmt.Errorf("AnalyticsUseCase - TraceEvent - uc.failedRepo.GetUnresolvedByEventID: %w", err)
	}
	trace.Failed = failed

	if trace.Outbox == nil && trace.Processed == nil && trace.Failed == nil {
		return nil, errs.ErrRecordNotFound
	}

	if trace.Outbox != nil {
		counts, err := uc.metricsRepo.FindEventCounts(ctx,
			dateOf(trace.Outbox.CreatedAt), trace.Outbox.EventType, trace.Outbox.AggregateType)
		if err != nil {
			return nil, fmt.Errorf("AnalyticsUseCase - TraceEvent - uc.metricsRepo.FindEventCounts: %w", err)
		}
		trace.Analytics = counts
	}

	return trace, nil
}

// Summary собирает шапку дашборда: тоталы за все время и за сегодня,
// разбивку по типам, короткий дневной тренд и здоровье пайплайна.
func (uc *AnalyticsUseCase) Summary(ctx context.Context) (*dto.Summary, error) {
	allTime, err := uc.metricsRepo.TotalEventCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("AnalyticsUseCase - Summary - uc.metricsRepo.TotalEventCount: %w", err)
	}

	today := dateOf(time.Now())

	todayTotal, err := uc.metricsRepo.TotalEventCountOn(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("AnalyticsUseCase - Summary - uc.metricsRepo.TotalEventCountOn: %w", err)
	}

	pending, processed, err := uc.outboxRepo.CountByProcessed(ctx)
	if err != nil {
		return nil, fmt.Errorf("AnalyticsUseCase - Summary - uc.outboxRepo.CountByProcessed: %w", err)
	}

	failed, err := uc.failedRepo.CountUnresolved(ctx)
	if err != nil {
		return nil, fmt.Errorf("AnalyticsUseCase - Summary - uc.failedRepo.CountUnresolved: %w", err)
	}

	byType, err := uc.metricsRepo.TotalsByEventType(ctx)
	if err != nil {
		return nil, fmt.Errorf("AnalyticsUseCase - Summary - uc.metricsRepo.TotalsByEventType: %w", err)
	}

	trend, err := uc.metricsRepo.DailyTotalsSince(ctx, today.AddDate(0, 0, -dailyTrendDays))
	if err != nil {
		return nil, fmt.Errorf("AnalyticsUseCase - Summary - uc.metricsRepo.DailyTotalsSince: %w", err)
	}

	return &dto.Summary{
		Totals: dto.SummaryTotals{
			AllTime:   allTime,
			Today:     todayTotal,
			Pending:   pending,
			Processed: processed,
			Failed:    failed,
		},
		ByType:     byType,
		DailyTrend: trend,
		Health: dto.SummaryHealth{
			SuccessRate: successRate(processed, failed),
			Processing:  pending,
			Failed:      failed,
		},
	}, nil
}

// CreateTestEvent вставляет синтетическое событие в аутбокс для
// developer-консоли. Пайплайн подхватит его на следующем опросе как
// обычную запись.
func (uc *AnalyticsUseCase) CreateTestEvent(ctx context.Context, req dto.TestEvent) (*entity.OutboxEvent, error) {
	if req.EventType == "" {
		req.EventType = "INSERT_LEADS"
	}
	if req.AggregateType == "" {
		req.AggregateType = entity.AggregateLeads.String()
	}
	if req.CompanyName == "" {
		req.CompanyName = "Test Company"
	}
	if req.LeadStatus == "" {
		req.LeadStatus = "new"
	}
	if req.EstimatedValue == "" {
		req.EstimatedValue = "0"
	}

	aggregateID := uuid.New()

	payload, err := json.Marshal(map[string]interface{}{
		"id":              aggregateID.String(),
		"company_name":    req.CompanyName,
		"lead_status":     req.LeadStatus,
		"estimated_value": req.EstimatedValue,
		"test_event":      true,
		"created_via":     "developer_console",
	})
	if err != nil {
		return nil, fmt.Errorf("AnalyticsUseCase - CreateTestEvent - json.Marshal: %w", err)
	}

	event := &entity.OutboxEvent{
		ID:            uuid.New(),
		EventID:       uuid.New().String(),
		EventType:     req.EventType,
		AggregateType: entity.AggregateType(req.AggregateType),
		AggregateID:   aggregateID,
		Payload:       payload,
		CreatedAt:     time.Now(),
	}

	err = uc.outboxRepo.Create(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("AnalyticsUseCase - CreateTestEvent - uc.outboxRepo.Create: %w", err)
	}

	uc.logger.Info("test event created: %s (%s)", event.EventID, event.EventType)

	return event, nil
}

// BackfillEventCounts пересчитывает event_counts из аутбокса,
// перезаписывая каждую строку (date, type, aggregate) точным числом.
// Безопасен в любой момент; отчет сверяет пересчитанный тотал с числом
// строк в аутбоксе.
func (uc *AnalyticsUseCase) BackfillEventCounts(ctx context.Context) (*dto.BackfillReport, error) {
	groups, err := uc.outboxRepo.GroupedCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("AnalyticsUseCase - BackfillEventCounts - uc.outboxRepo.GroupedCounts: %w", err)
	}

	tracked := 0
	for _, group := range groups {
		err = uc.metricsRepo.SetEventCount(ctx, group)
		if err != nil {
			return nil, fmt.Errorf("AnalyticsUseCase - BackfillEventCounts - uc.metricsRepo.SetEventCount: %w", err)
		}
		tracked += group.Count
	}

	pending, processed, err := uc.outboxRepo.CountByProcessed(ctx)
	if err != nil {
		return nil, fmt.Errorf("AnalyticsUseCase - BackfillEventCounts - uc.outboxRepo.CountByProcessed: %w", err)
	}
	inOutbox := int(pending + processed)

	uc.logger.Info("backfill complete: %d combinations, %d events tracked, %d in outbox",
		len(groups), tracked, inOutbox)

	return &dto.BackfillReport{
		Combinations:  len(groups),
		EventsTracked: tracked,
		EventsInbox:   inOutbox,
		Match:         tracked == inOutbox,
	}, nil
}

// successRate = processed / (processed + failed) в процентах,
// два знака после запятой.
func successRate(processed, failed int64) float64 {
	total := processed + failed
	if total == 0 {
		return 100.0
	}

	return math.Round(float64(processed)/float64(total)*10000) / 100
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
