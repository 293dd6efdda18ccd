package persistent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/andreyxaxa/Event-Analytics/internal/entity"
	"github.com/andreyxaxa/Event-Analytics/pkg/postgres"
	"github.com/andreyxaxa/Event-Analytics/pkg/types/errs"
)

const (
	// Table
	processedEventsTable = "processed_events"

	// Columns
	processedEventIDColumn       = "event_id"
	processedEventTypeColumn     = "event_type"
	processedAggregateTypeColumn = "aggregate_type"
	processedAggregateIDColumn   = "aggregate_id"
	processedProcessedAtColumn   = "processed_at"
	processedArchivedAtColumn    = "archived_at"
)

type ProcessedEventRepo struct {
	*postgres.Postgres
}

func NewProcessedEventRepo(pg *postgres.Postgres) *ProcessedEventRepo {
	return &ProcessedEventRepo{pg}
}

func (r *ProcessedEventRepo) Exists(ctx context.Context, eventID string) (bool, error) {
	sql, args, err := r.Builder.
		Select("1").
		From(processedEventsTable).
		Where(squirrel.Eq{processedEventIDColumn: eventID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("ProcessedEventRepo - Exists - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	var one int
	err = executor.QueryRow(ctx, sql, args...).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("ProcessedEventRepo - Exists - executor.QueryRow: %w", err)
	}

	return true, nil
}

func (r *ProcessedEventRepo) Create(ctx context.Context, event *entity.ProcessedEvent) error {
	sql, args, err := r.Builder.
		Insert(processedEventsTable).
		Columns(
			processedEventIDColumn,
			processedEventTypeColumn,
			processedAggregateTypeColumn,
			processedAggregateIDColumn,
			processedProcessedAtColumn,
		).
		Values(
			event.EventID,
			event.EventType,
			event.AggregateType,
			event.AggregateID,
			event.ProcessedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("ProcessedEventRepo - Create - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	_, err = executor.Exec(ctx, sql, args...)
	if err != nil {
		// 23505 - unique_violation: событие уже вписано в ledger
		// параллельным обработчиком
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("ProcessedEventRepo - Create: %w", errs.ErrAlreadyProcessed)
		}

		return fmt.Errorf("ProcessedEventRepo - Create - executor.Exec: %w", err)
	}

	return nil
}

func (r *ProcessedEventRepo) GetByEventID(ctx context.Context, eventID string) (*entity.ProcessedEvent, error) {
	sql, args, err := r.Builder.
		Select(
			processedEventIDColumn,
			processedEventTypeColumn,
			processedAggregateTypeColumn,
			processedAggregateIDColumn,
			processedProcessedAtColumn,
			processedArchivedAtColumn,
		).
		From(processedEventsTable).
		Where(squirrel.Eq{processedEventIDColumn: eventID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ProcessedEventRepo - GetByEventID - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	var event entity.ProcessedEvent
	err = executor.QueryRow(ctx, sql, args...).Scan(
		&event.EventID,
		&event.EventType,
		&event.AggregateType,
		&event.AggregateID,
		&event.ProcessedAt,
		&event.ArchivedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("ProcessedEventRepo - GetByEventID: %w", errs.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("ProcessedEventRepo - GetByEventID - executor.QueryRow: %w", err)
	}

	return &event, nil
}

// DeleteByEventID снимает guard идемпотентности. Вызывается только
// из replay; отсутствие строки - не ошибка.
func (r *ProcessedEventRepo) DeleteByEventID(ctx context.Context, eventID string) error {
	sql, args, err := r.Builder.
		Delete(processedEventsTable).
		Where(squirrel.Eq{processedEventIDColumn: eventID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("ProcessedEventRepo - DeleteByEventID - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	_, err = executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("ProcessedEventRepo - DeleteByEventID - executor.Exec: %w", err)
	}

	return nil
}

func (r *ProcessedEventRepo) MarkArchived(ctx context.Context, eventID string) error {
	sql, args, err := r.Builder.
		Update(processedEventsTable).
		Set(processedArchivedAtColumn, time.Now()).
		Where(squirrel.Eq{processedEventIDColumn: eventID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("ProcessedEventRepo - MarkArchived - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	tag, err := executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("ProcessedEventRepo - MarkArchived - executor.Exec: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ProcessedEventRepo - MarkArchived: %w", errs.ErrRecordNotFound)
	}

	return nil
}

// ListUnarchived возвращает event_id, у которых запись в архив не
// состоялась, старые первыми - sweeper дольет их независимо от журнала.
func (r *ProcessedEventRepo) ListUnarchived(ctx context.Context, limit int) ([]string, error) {
	sql, args, err := r.Builder.
		Select(processedEventIDColumn).
		From(processedEventsTable).
		Where(squirrel.Eq{processedArchivedAtColumn: nil}).
		OrderBy(processedProcessedAtColumn + " ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ProcessedEventRepo - ListUnarchived - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("ProcessedEventRepo - ListUnarchived - executor.Query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ProcessedEventRepo - ListUnarchived - rows.Scan: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ProcessedEventRepo - ListUnarchived - rows.Err: %w", err)
	}

	return ids, nil
}
