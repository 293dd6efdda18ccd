package persistent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/andreyxaxa/Event-Analytics/internal/entity"
	"github.com/andreyxaxa/Event-Analytics/pkg/postgres"
	"github.com/andreyxaxa/Event-Analytics/pkg/types/errs"
)

const (
	// Table
	outboxTable = "event_outbox"

	// Columns
	outboxIDColumn            = "id"
	outboxEventIDColumn       = "event_id"
	outboxEventTypeColumn     = "event_type"
	outboxAggregateTypeColumn = "aggregate_type"
	outboxAggregateIDColumn   = "aggregate_id"
	outboxPayloadColumn       = "payload"
	outboxCreatedAtColumn     = "created_at"
	outboxProcessedAtColumn   = "processed_at"
	outboxPublishedAtColumn   = "published_at"
	outboxRetryCountColumn    = "retry_count"
	outboxLastErrorColumn     = "last_error"
)

type EventOutboxRepo struct {
	*postgres.Postgres
}

func NewEventOutboxRepo(pg *postgres.Postgres) *EventOutboxRepo {
	return &EventOutboxRepo{pg}
}

func (r *EventOutboxRepo) Create(ctx context.Context, event *entity.OutboxEvent) error {
	sql, args, err := r.Builder.
		Insert(outboxTable).
		Columns(
			outboxIDColumn,
			outboxEventIDColumn,
			outboxEventTypeColumn,
			outboxAggregateTypeColumn,
			outboxAggregateIDColumn,
			outboxPayloadColumn,
			outboxCreatedAtColumn,
			outboxRetryCountColumn,
		).
		Values(
			event.ID,
			event.EventID,
			event.EventType,
			event.AggregateType,
			event.AggregateID,
			event.Payload,
			event.CreatedAt,
			event.RetryCount,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("EventOutboxRepo - Create - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	_, err = executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("EventOutboxRepo - Create - executor.Exec: %w", err)
	}

	return nil
}

// ClaimPending обязан выполняться в транзакции: блокировка FOR UPDATE
// SKIP LOCKED держится только до коммита. Первыми идут строки с меньшим
// числом неудачных публикаций и более ранним created_at - пачка
// постоянных сбоев не задушит свежие события.
func (r *EventOutboxRepo) ClaimPending(ctx context.Context, limit int) ([]*entity.OutboxEvent, error) {
	sql, args, err := r.Builder.
		Select(
			outboxIDColumn,
			outboxEventIDColumn,
			outboxEventTypeColumn,
			outboxAggregateTypeColumn,
			outboxAggregateIDColumn,
			outboxPayloadColumn,
			outboxCreatedAtColumn,
			outboxProcessedAtColumn,
			outboxPublishedAtColumn,
			outboxRetryCountColumn,
			outboxLastErrorColumn,
		).
		From(outboxTable).
		Where(squirrel.Eq{outboxProcessedAtColumn: nil}).
		OrderBy(outboxRetryCountColumn+" ASC", outboxCreatedAtColumn+" ASC").
		Limit(uint64(limit)).
		Suffix("FOR UPDATE SKIP LOCKED").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("EventOutboxRepo - ClaimPending - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("EventOutboxRepo - ClaimPending - executor.Query: %w", err)
	}
	defer rows.Close()

	events := make([]*entity.OutboxEvent, 0, limit)
	for rows.Next() {
		var event entity.OutboxEvent
		err = rows.Scan(
			&event.ID,
			&event.EventID,
			&event.EventType,
			&event.AggregateType,
			&event.AggregateID,
			&event.Payload,
			&event.CreatedAt,
			&event.ProcessedAt,
			&event.PublishedAt,
			&event.RetryCount,
			&event.LastError,
		)
		if err != nil {
			return nil, fmt.Errorf("EventOutboxRepo - ClaimPending - rows.Scan: %w", err)
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("EventOutboxRepo - ClaimPending - rows.Err: %w", err)
	}

	return events, nil
}

// MarkPublishedBatch штампует processed_at и published_at: пачка передана
// на обработку, но еще не агрегирована.
func (r *EventOutboxRepo) MarkPublishedBatch(ctx context.Context, ids uuid.UUIDs) error {
	now := time.Now()

	sql, args, err := r.Builder.
		Update(outboxTable).
		Set(outboxProcessedAtColumn, now).
		Set(outboxPublishedAtColumn, now).
		Where(squirrel.Eq{outboxIDColumn: ids}).
		ToSql()
	if err != nil {
		return fmt.Errorf("EventOutboxRepo - MarkPublishedBatch - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	tag, err := executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("EventOutboxRepo - MarkPublishedBatch - executor.Exec: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("EventOutboxRepo - MarkPublishedBatch: %w", errs.ErrRecordNotFound)
	}

	return nil
}

func (r *EventOutboxRepo) IncrementRetryCountBatch(ctx context.Context, ids uuid.UUIDs, lastError string) error {
	sql, args, err := r.Builder.
		Update(outboxTable).
		Set(outboxRetryCountColumn, squirrel.Expr(outboxRetryCountColumn+" + 1")).
		Set(outboxLastErrorColumn, lastError).
		Where(squirrel.Eq{outboxIDColumn: ids}).
		ToSql()
	if err != nil {
		return fmt.Errorf("EventOutboxRepo - IncrementRetryCountBatch - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	tag, err := executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("EventOutboxRepo - IncrementRetryCountBatch - executor.Exec: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("EventOutboxRepo - IncrementRetryCountBatch: %w", errs.ErrRecordNotFound)
	}

	return nil
}

func (r *EventOutboxRepo) GetByEventID(ctx context.Context, eventID string) (*entity.OutboxEvent, error) {
	sql, args, err := r.Builder.
		Select(
			outboxIDColumn,
			outboxEventIDColumn,
			outboxEventTypeColumn,
			outboxAggregateTypeColumn,
			outboxAggregateIDColumn,
			outboxPayloadColumn,
			outboxCreatedAtColumn,
			outboxProcessedAtColumn,
			outboxPublishedAtColumn,
			outboxRetryCountColumn,
			outboxLastErrorColumn,
		).
		From(outboxTable).
		Where(squirrel.Eq{outboxEventIDColumn: eventID}).
		OrderBy(outboxCreatedAtColumn + " ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("EventOutboxRepo - GetByEventID - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	var event entity.OutboxEvent
	err = executor.QueryRow(ctx, sql, args...).Scan(
		&event.ID,
		&event.EventID,
		&event.EventType,
		&event.AggregateType,
		&event.AggregateID,
		&event.Payload,
		&event.CreatedAt,
		&event.ProcessedAt,
		&event.PublishedAt,
		&event.RetryCount,
		&event.LastError,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("EventOutboxRepo - GetByEventID: %w", errs.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("EventOutboxRepo - GetByEventID - executor.QueryRow: %w", err)
	}

	return &event, nil
}

// ListRecent возвращает свежие строки аутбокса со статусом, понятным
// оператору: failed важнее processed, processed важнее completed и pending.
func (r *EventOutboxRepo) ListRecent(ctx context.Context, limit int) ([]*entity.OutboxEventStatus, error) {
	sql, args, err := r.Builder.
		Select(
			"eo."+outboxIDColumn,
			"eo."+outboxEventIDColumn,
			"eo."+outboxEventTypeColumn,
			"eo."+outboxAggregateTypeColumn,
			"eo."+outboxAggregateIDColumn,
			"eo."+outboxPayloadColumn,
			"eo."+outboxCreatedAtColumn,
			"eo."+outboxProcessedAtColumn,
			"eo."+outboxPublishedAtColumn,
			"eo."+outboxRetryCountColumn,
			"eo."+outboxLastErrorColumn,
			`CASE
				WHEN fe.event_id IS NOT NULL THEN 'failed'
				WHEN pe.event_id IS NOT NULL THEN 'processed'
				WHEN eo.processed_at IS NOT NULL THEN 'completed'
				ELSE 'pending'
			END AS status`,
		).
		From(outboxTable+" eo").
		LeftJoin(processedEventsTable+" pe ON eo.event_id = pe.event_id").
		LeftJoin(failedEventsTable+" fe ON eo.event_id = fe.event_id AND fe.resolved_at IS NULL").
		OrderBy("eo." + outboxCreatedAtColumn + " DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("EventOutboxRepo - ListRecent - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("EventOutboxRepo - ListRecent - executor.Query: %w", err)
	}
	defer rows.Close()

	events := make([]*entity.OutboxEventStatus, 0, limit)
	for rows.Next() {
		var event entity.OutboxEventStatus
		err = rows.Scan(
			&event.ID,
			&event.EventID,
			&event.EventType,
			&event.AggregateType,
			&event.AggregateID,
			&event.Payload,
			&event.CreatedAt,
			&event.ProcessedAt,
			&event.PublishedAt,
			&event.RetryCount,
			&event.LastError,
			&event.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("EventOutboxRepo - ListRecent - rows.Scan: %w", err)
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("EventOutboxRepo - ListRecent - rows.Err: %w", err)
	}

	return events, nil
}

func (r *EventOutboxRepo) CountByProcessed(ctx context.Context) (int64, int64, error) {
	sql, args, err := r.Builder.
		Select(
			"COUNT(*) FILTER (WHERE "+outboxProcessedAtColumn+" IS NULL)",
			"COUNT(*) FILTER (WHERE "+outboxProcessedAtColumn+" IS NOT NULL)",
		).
		From(outboxTable).
		ToSql()
	if err != nil {
		return 0, 0, fmt.Errorf("EventOutboxRepo - CountByProcessed - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	var pending, processed int64
	err = executor.QueryRow(ctx, sql, args...).Scan(&pending, &processed)
	if err != nil {
		return 0, 0, fmt.Errorf("EventOutboxRepo - CountByProcessed - executor.QueryRow: %w", err)
	}

	return pending, processed, nil
}

func (r *EventOutboxRepo) GroupedCounts(ctx context.Context) ([]entity.EventCount, error) {
	sql, args, err := r.Builder.
		Select(
			"DATE("+outboxCreatedAtColumn+") AS event_date",
			outboxEventTypeColumn,
			outboxAggregateTypeColumn,
			"COUNT(*)",
		).
		From(outboxTable).
		GroupBy("DATE("+outboxCreatedAtColumn+")", outboxEventTypeColumn, outboxAggregateTypeColumn).
		OrderBy("event_date ASC", outboxEventTypeColumn+" ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("EventOutboxRepo - GroupedCounts - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("EventOutboxRepo - GroupedCounts - executor.Query: %w", err)
	}
	defer rows.Close()

	var counts []entity.EventCount
	for rows.Next() {
		var count entity.EventCount
		err = rows.Scan(&count.Date, &count.EventType, &count.AggregateType, &count.Count)
		if err != nil {
			return nil, fmt.Errorf("EventOutboxRepo - GroupedCounts - rows.Scan: %w", err)
		}
		counts = append(counts, count)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("EventOutboxRepo - GroupedCounts - rows.Err: %w", err)
	}

	return counts, nil
}
