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
	failedEventsTable = "failed_events"

	// Columns
	failedIDColumn            = "id"
	failedEventIDColumn       = "event_id"
	failedEventTypeColumn     = "event_type"
	failedAggregateTypeColumn = "aggregate_type"
	failedAggregateIDColumn   = "aggregate_id"
	failedPayloadColumn       = "payload"
	failedErrorMessageColumn  = "error_message"
	failedErrorTraceColumn    = "error_trace"
	failedRetryCountColumn    = "retry_count"
	failedFirstFailedAtColumn = "first_failed_at"
	failedLastFailedAtColumn  = "last_failed_at"
	failedResolvedAtColumn    = "resolved_at"
	failedResolvedByColumn    = "resolved_by"
)

var failedEventColumns = []string{
	failedIDColumn,
	failedEventIDColumn,
	failedEventTypeColumn,
	failedAggregateTypeColumn,
	failedAggregateIDColumn,
	failedPayloadColumn,
	failedErrorMessageColumn,
	failedErrorTraceColumn,
	failedRetryCountColumn,
	failedFirstFailedAtColumn,
	failedLastFailedAtColumn,
	failedResolvedAtColumn,
	failedResolvedByColumn,
}

type FailedEventRepo struct {
	*postgres.Postgres
}

func NewFailedEventRepo(pg *postgres.Postgres) *FailedEventRepo {
	return &FailedEventRepo{pg}
}

func (r *FailedEventRepo) Create(ctx context.Context, event *entity.FailedEvent) error {
	sql, args, err := r.Builder.
		Insert(failedEventsTable).
		Columns(
			failedIDColumn,
			failedEventIDColumn,
			failedEventTypeColumn,
			failedAggregateTypeColumn,
			failedAggregateIDColumn,
			failedPayloadColumn,
			failedErrorMessageColumn,
			failedErrorTraceColumn,
			failedRetryCountColumn,
			failedFirstFailedAtColumn,
			failedLastFailedAtColumn,
		).
		Values(
			event.ID,
			event.EventID,
			event.EventType,
			event.AggregateType,
			event.AggregateID,
			event.Payload,
			event.ErrorMessage,
			event.ErrorTrace,
			event.RetryCount,
			event.FirstFailedAt,
			event.LastFailedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("FailedEventRepo - Create - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	_, err = executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("FailedEventRepo - Create - executor.Exec: %w", err)
	}

	return nil
}

func (r *FailedEventRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.FailedEvent, error) {
	sql, args, err := r.Builder.
		Select(failedEventColumns...).
		From(failedEventsTable).
		Where(squirrel.Eq{failedIDColumn: id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("FailedEventRepo - GetByID - r.Builder.ToSql: %w", err)
	}

	return r.queryOne(ctx, "GetByID", sql, args)
}

func (r *FailedEventRepo) GetUnresolvedByEventID(ctx context.Context, eventID string) (*entity.FailedEvent, error) {
	sql, args, err := r.Builder.
		Select(failedEventColumns...).
		From(failedEventsTable).
		Where(squirrel.And{
			squirrel.Eq{failedEventIDColumn: eventID},
			squirrel.Eq{failedResolvedAtColumn: nil},
		}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("FailedEventRepo - GetUnresolvedByEventID - r.Builder.ToSql: %w", err)
	}

	return r.queryOne(ctx, "GetUnresolvedByEventID", sql, args)
}

func (r *FailedEventRepo) queryOne(ctx context.Context, method, sql string, args []any) (*entity.FailedEvent, error) {
	executor := r.GetExecutor(ctx)

	var event entity.FailedEvent
	err := executor.QueryRow(ctx, sql, args...).Scan(
		&event.ID,
		&event.EventID,
		&event.EventType,
		&event.AggregateType,
		&event.AggregateID,
		&event.Payload,
		&event.ErrorMessage,
		&event.ErrorTrace,
		&event.RetryCount,
		&event.FirstFailedAt,
		&event.LastFailedAt,
		&event.ResolvedAt,
		&event.ResolvedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("FailedEventRepo - %s: %w", method, errs.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("FailedEventRepo - %s - executor.QueryRow: %w", method, err)
	}

	return &event, nil
}

func (r *FailedEventRepo) Resolve(ctx context.Context, id uuid.UUID, resolvedBy string) error {
	sql, args, err := r.Builder.
		Update(failedEventsTable).
		Set(failedResolvedAtColumn, time.Now()).
		Set(failedResolvedByColumn, resolvedBy).
		Where(squirrel.Eq{failedIDColumn: id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("FailedEventRepo - Resolve - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	tag, err := executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("FailedEventRepo - Resolve - executor.Exec: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("FailedEventRepo - Resolve: %w", errs.ErrRecordNotFound)
	}

	return nil
}

func (r *FailedEventRepo) ListUnresolved(ctx context.Context, limit int) ([]*entity.FailedEvent, error) {
	sql, args, err := r.Builder.
		Select(failedEventColumns...).
		From(failedEventsTable).
		Where(squirrel.Eq{failedResolvedAtColumn: nil}).
		OrderBy(failedFirstFailedAtColumn + " DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("FailedEventRepo - ListUnresolved - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("FailedEventRepo - ListUnresolved - executor.Query: %w", err)
	}
	defer rows.Close()

	events := make([]*entity.FailedEvent, 0, limit)
	for rows.Next() {
		var event entity.FailedEvent
		err = rows.Scan(
			&event.ID,
			&event.EventID,
			&event.EventType,
			&event.AggregateType,
			&event.AggregateID,
			&event.Payload,
			&event.ErrorMessage,
			&event.ErrorTrace,
			&event.RetryCount,
			&event.FirstFailedAt,
			&event.LastFailedAt,
			&event.ResolvedAt,
			&event.ResolvedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("FailedEventRepo - ListUnresolved - rows.Scan: %w", err)
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("FailedEventRepo - ListUnresolved - rows.Err: %w", err)
	}

	return events, nil
}

func (r *FailedEventRepo) CountUnresolved(ctx context.Context) (int64, error) {
	sql, args, err := r.Builder.
		Select("COUNT(*)").
		From(failedEventsTable).
		Where(squirrel.Eq{failedResolvedAtColumn: nil}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("FailedEventRepo - CountUnresolved - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	var count int64
	err = executor.QueryRow(ctx, sql, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("FailedEventRepo - CountUnresolved - executor.QueryRow: %w", err)
	}

	return count, nil
}
