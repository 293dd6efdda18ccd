package persistent

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/andreyxaxa/Event-Analytics/internal/dto"
	"github.com/andreyxaxa/Event-Analytics/internal/entity"
	"github.com/andreyxaxa/Event-Analytics/pkg/postgres"
)

const (
	// Tables
	eventCountsTable         = "event_counts"
	leadFunnelMetricsTable   = "lead_funnel_metrics"
	revenueMetricsTable      = "revenue_metrics"
	dailyAccountMetricsTable = "daily_account_metrics"
)

// MetricsRepo пишет в таблицы агрегатов аддитивными ON CONFLICT
// upsert-ами: строка создается при первом использовании, дальше каждое
// событие добавляет свою дельту. Все записи идут внутри транзакции
// обработчика.
type MetricsRepo struct {
	*postgres.Postgres
}

func NewMetricsRepo(pg *postgres.Postgres) *MetricsRepo {
	return &MetricsRepo{pg}
}

func (r *MetricsRepo) IncrementEventCount(ctx context.Context, date time.Time, eventType string, aggregateType entity.AggregateType) error {
	sql, args, err := r.Builder.
		Insert(eventCountsTable).
		Columns("date", "event_type", "aggregate_type", "count").
		Values(date, eventType, aggregateType, 1).
		Suffix("ON CONFLICT (date, event_type, aggregate_type) DO UPDATE SET count = event_counts.count + 1").
		ToSql()
	if err != nil {
		return fmt.Errorf("MetricsRepo - IncrementEventCount - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	_, err = executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("MetricsRepo - IncrementEventCount - executor.Exec: %w", err)
	}

	return nil
}

// SetEventCount перезаписывает счетчик абсолютным значением;
// используется только backfill-ом.
func (r *MetricsRepo) SetEventCount(ctx context.Context, count entity.EventCount) error {
	sql, args, err := r.Builder.
		Insert(eventCountsTable).
		Columns("date", "event_type", "aggregate_type", "count").
		Values(count.Date, count.EventType, count.AggregateType, count.Count).
		Suffix("ON CONFLICT (date, event_type, aggregate_type) DO UPDATE SET count = EXCLUDED.count").
		ToSql()
	if err != nil {
		return fmt.Errorf("MetricsRepo - SetEventCount - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	_, err = executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("MetricsRepo - SetEventCount - executor.Exec: %w", err)
	}

	return nil
}

func (r *MetricsRepo) ApplyFunnelDelta(ctx context.Context, date time.Time, delta entity.LeadFunnelDelta) error {
	sql, args, err := r.Builder.
		Insert(leadFunnelMetricsTable).
		Columns(
			"date",
			"new_leads", "contacted_leads", "qualified_leads", "won_leads", "lost_leads",
			"total_estimated_value", "won_value", "lost_value",
		).
		Values(
			date,
			delta.NewLeads, delta.ContactedLeads, delta.QualifiedLeads, delta.WonLeads, delta.LostLeads,
			delta.TotalEstimatedValue, delta.WonValue, delta.LostValue,
		).
		Suffix(`ON CONFLICT (date) DO UPDATE SET
			new_leads = lead_funnel_metrics.new_leads + EXCLUDED.new_leads,
			contacted_leads = lead_funnel_metrics.contacted_leads + EXCLUDED.contacted_leads,
			qualified_leads = lead_funnel_metrics.qualified_leads + EXCLUDED.qualified_leads,
			won_leads = lead_funnel_metrics.won_leads + EXCLUDED.won_leads,
			lost_leads = lead_funnel_metrics.lost_leads + EXCLUDED.lost_leads,
			total_estimated_value = lead_funnel_metrics.total_estimated_value + EXCLUDED.total_estimated_value,
			won_value = lead_funnel_metrics.won_value + EXCLUDED.won_value,
			lost_value = lead_funnel_metrics.lost_value + EXCLUDED.lost_value`).
		ToSql()
	if err != nil {
		return fmt.Errorf("MetricsRepo - ApplyFunnelDelta - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	_, err = executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("MetricsRepo - ApplyFunnelDelta - executor.Exec: %w", err)
	}

	return nil
}

func (r *MetricsRepo) AddRevenue(ctx context.Context, month time.Time, accountID uuid.UUID, contractValue decimal.Decimal) error {
	sql, args, err := r.Builder.
		Insert(revenueMetricsTable).
		Columns("month", "account_id", "contracted_value", "projects_count").
		Values(month, accountID, contractValue, 1).
		Suffix(`ON CONFLICT (month, account_id) DO UPDATE SET
			contracted_value = revenue_metrics.contracted_value + EXCLUDED.contracted_value,
			projects_count = revenue_metrics.projects_count + 1`).
		ToSql()
	if err != nil {
		return fmt.Errorf("MetricsRepo - AddRevenue - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	_, err = executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("MetricsRepo - AddRevenue - executor.Exec: %w", err)
	}

	return nil
}

func (r *MetricsRepo) ListEventCounts(ctx context.Context, limit int) ([]entity.EventCount, error) {
	sql, args, err := r.Builder.
		Select("date", "event_type", "aggregate_type", "count").
		From(eventCountsTable).
		OrderBy("date DESC", "event_type ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("MetricsRepo - ListEventCounts - r.Builder.ToSql: %w", err)
	}

	return scanEventCounts(ctx, r, "ListEventCounts", sql, args)
}

func (r *MetricsRepo) FindEventCounts(ctx context.Context, date time.Time, eventType string, aggregateType entity.AggregateType) ([]entity.EventCount, error) {
	sql, args, err := r.Builder.
		Select("date", "event_type", "aggregate_type", "count").
		From(eventCountsTable).
		Where(squirrel.And{
			squirrel.Eq{"date": date},
			squirrel.Eq{"event_type": eventType},
			squirrel.Eq{"aggregate_type": aggregateType},
		}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("MetricsRepo - FindEventCounts - r.Builder.ToSql: %w", err)
	}

	return scanEventCounts(ctx, r, "FindEventCounts", sql, args)
}

func scanEventCounts(ctx context.Context, r *MetricsRepo, method, sql string, args []any) ([]entity.EventCount, error) {
	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("MetricsRepo - %s - executor.Query: %w", method, err)
	}
	defer rows.Close()

	var counts []entity.EventCount
	for rows.Next() {
		var count entity.EventCount
		err = rows.Scan(&count.Date, &count.EventType, &count.AggregateType, &count.Count)
		if err != nil {
			return nil, fmt.Errorf("MetricsRepo - %s - rows.Scan: %w", method, err)
		}
		counts = append(counts, count)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("MetricsRepo - %s - rows.Err: %w", method, err)
	}

	return counts, nil
}

func (r *MetricsRepo) ListFunnelMetrics(ctx context.Context, limit int) ([]entity.LeadFunnelMetric, error) {
	sql, args, err := r.Builder.
		Select(
			"date",
			"new_leads", "contacted_leads", "qualified_leads", "won_leads", "lost_leads",
			"total_estimated_value", "won_value", "lost_value",
		).
		From(leadFunnelMetricsTable).
		OrderBy("date DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("MetricsRepo - ListFunnelMetrics - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("MetricsRepo - ListFunnelMetrics - executor.Query: %w", err)
	}
	defer rows.Close()

	var metrics []entity.LeadFunnelMetric
	for rows.Next() {
		var m entity.LeadFunnelMetric
		err = rows.Scan(
			&m.Date,
			&m.NewLeads, &m.ContactedLeads, &m.QualifiedLeads, &m.WonLeads, &m.LostLeads,
			&m.TotalEstimatedValue, &m.WonValue, &m.LostValue,
		)
		if err != nil {
			return nil, fmt.Errorf("MetricsRepo - ListFunnelMetrics - rows.Scan: %w", err)
		}
		metrics = append(metrics, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("MetricsRepo - ListFunnelMetrics - rows.Err: %w", err)
	}

	return metrics, nil
}

func (r *MetricsRepo) ListRevenueMetrics(ctx context.Context, limit int) ([]entity.RevenueMetric, error) {
	sql, args, err := r.Builder.
		Select("month", "account_id", "contracted_value", "projects_count").
		From(revenueMetricsTable).
		OrderBy("month DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("MetricsRepo - ListRevenueMetrics - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("MetricsRepo - ListRevenueMetrics - executor.Query: %w", err)
	}
	defer rows.Close()

	var metrics []entity.RevenueMetric
	for rows.Next() {
		var m entity.RevenueMetric
		err = rows.Scan(&m.Month, &m.AccountID, &m.ContractedValue, &m.ProjectsCount)
		if err != nil {
			return nil, fmt.Errorf("MetricsRepo - ListRevenueMetrics - rows.Scan: %w", err)
		}
		metrics = append(metrics, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("MetricsRepo - ListRevenueMetrics - rows.Err: %w", err)
	}

	return metrics, nil
}

func (r *MetricsRepo) ListDailyAccountMetrics(ctx context.Context, limit int) ([]entity.DailyAccountMetric, error) {
	sql, args, err := r.Builder.
		Select(
			"date", "account_id", "account_name",
			"total_activities", "calls_count", "emails_count", "meetings_count",
			"active_projects", "total_contract_value",
		).
		From(dailyAccountMetricsTable).
		OrderBy("date DESC", "account_name ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("MetricsRepo - ListDailyAccountMetrics - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("MetricsRepo - ListDailyAccountMetrics - executor.Query: %w", err)
	}
	defer rows.Close()

	var metrics []entity.DailyAccountMetric
	for rows.Next() {
		var m entity.DailyAccountMetric
		err = rows.Scan(
			&m.Date, &m.AccountID, &m.AccountName,
			&m.TotalActivities, &m.CallsCount, &m.EmailsCount, &m.MeetingsCount,
			&m.ActiveProjects, &m.TotalContractValue,
		)
		if err != nil {
			return nil, fmt.Errorf("MetricsRepo - ListDailyAccountMetrics - rows.Scan: %w", err)
		}
		metrics = append(metrics, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("MetricsRepo - ListDailyAccountMetrics - rows.Err: %w", err)
	}

	return metrics, nil
}

func (r *MetricsRepo) TotalEventCount(ctx context.Context) (int, error) {
	sql, args, err := r.Builder.
		Select("COALESCE(SUM(count), 0)").
		From(eventCountsTable).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("MetricsRepo - TotalEventCount - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	var total int
	err = executor.QueryRow(ctx, sql, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("MetricsRepo - TotalEventCount - executor.QueryRow: %w", err)
	}

	return total, nil
}

func (r *MetricsRepo) TotalEventCountOn(ctx context.Context, date time.Time) (int, error) {
	sql, args, err := r.Builder.
		Select("COALESCE(SUM(count), 0)").
		From(eventCountsTable).
		Where(squirrel.Eq{"date": date}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("MetricsRepo - TotalEventCountOn - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	var total int
	err = executor.QueryRow(ctx, sql, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("MetricsRepo - TotalEventCountOn - executor.QueryRow: %w", err)
	}

	return total, nil
}

func (r *MetricsRepo) TotalsByEventType(ctx context.Context) ([]dto.TypeTotal, error) {
	sql, args, err := r.Builder.
		Select("event_type", "SUM(count) AS total").
		From(eventCountsTable).
		GroupBy("event_type").
		OrderBy("total DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("MetricsRepo - TotalsByEventType - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("MetricsRepo - TotalsByEventType - executor.Query: %w", err)
	}
	defer rows.Close()

	var totals []dto.TypeTotal
	for rows.Next() {
		var t dto.TypeTotal
		if err := rows.Scan(&t.EventType, &t.Total); err != nil {
			return nil, fmt.Errorf("MetricsRepo - TotalsByEventType - rows.Scan: %w", err)
		}
		totals = append(totals, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("MetricsRepo - TotalsByEventType - rows.Err: %w", err)
	}

	return totals, nil
}

func (r *MetricsRepo) DailyTotalsSince(ctx context.Context, date time.Time) ([]dto.DailyTotal, error) {
	sql, args, err := r.Builder.
		Select("date", "SUM(count) AS total").
		From(eventCountsTable).
		Where(squirrel.GtOrEq{"date": date}).
		GroupBy("date").
		OrderBy("date ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("MetricsRepo - DailyTotalsSince - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("MetricsRepo - DailyTotalsSince - executor.Query: %w", err)
	}
	defer rows.Close()

	var totals []dto.DailyTotal
	for rows.Next() {
		var t dto.DailyTotal
		if err := rows.Scan(&t.Date, &t.Total); err != nil {
			return nil, fmt.Errorf("MetricsRepo - DailyTotalsSince - rows.Scan: %w", err)
		}
		totals = append(totals, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("MetricsRepo - DailyTotalsSince - rows.Err: %w", err)
	}

	return totals, nil
}
