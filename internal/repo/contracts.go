package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/andreyxaxa/Event-Analytics/internal/dto"
	"github.com/andreyxaxa/Event-Analytics/internal/entity"
)

type (
	OutboxRepo interface {
		Create(ctx context.Context, event *entity.OutboxEvent) error
		ClaimPending(ctx context.Context, limit int) ([]*entity.OutboxEvent, error)
		MarkPublishedBatch(ctx context.Context, ids uuid.UUIDs) error
		IncrementRetryCountBatch(ctx context.Context, ids uuid.UUIDs, lastError string) error
		GetByEventID(ctx context.Context, eventID string) (*entity.OutboxEvent, error)
		ListRecent(ctx context.Context, limit int) ([]*entity.OutboxEventStatus, error)
		CountByProcessed(ctx context.Context) (pending, processed int64, err error)
		GroupedCounts(ctx context.Context) ([]entity.EventCount, error)
	}

	ProcessedEventRepo interface {
		Exists(ctx context.Context, eventID string) (bool, error)
		Create(ctx context.Context, event *entity.ProcessedEvent) error
		GetByEventID(ctx context.Context, eventID string) (*entity.ProcessedEvent, error)
		DeleteByEventID(ctx context.Context, eventID string) error
		MarkArchived(ctx context.Context, eventID string) error
		ListUnarchived(ctx context.Context, limit int) ([]string, error)
	}

	FailedEventRepo interface {
		Create(ctx context.Context, event *entity.FailedEvent) error
		GetByID(ctx context.Context, id uuid.UUID) (*entity.FailedEvent, error)
		GetUnresolvedByEventID(ctx context.Context, eventID string) (*entity.FailedEvent, error)
		Resolve(ctx context.Context, id uuid.UUID, resolvedBy string) error
		ListUnresolved(ctx context.Context, limit int) ([]*entity.FailedEvent, error)
		CountUnresolved(ctx context.Context) (int64, error)
	}

	MetricsRepo interface {
		IncrementEventCount(ctx context.Context, date time.Time, eventType string, aggregateType entity.AggregateType) error
		SetEventCount(ctx context.Context, count entity.EventCount) error
		ApplyFunnelDelta(ctx context.Context, date time.Time, delta entity.LeadFunnelDelta) error
		AddRevenue(ctx context.Context, month time.Time, accountID uuid.UUID, contractValue decimal.Decimal) error

		ListEventCounts(ctx context.Context, limit int) ([]entity.EventCount, error)
		ListFunnelMetrics(ctx context.Context, limit int) ([]entity.LeadFunnelMetric, error)
		ListRevenueMetrics(ctx context.Context, limit int) ([]entity.RevenueMetric, error)
		ListDailyAccountMetrics(ctx context.Context, limit int) ([]entity.DailyAccountMetric, error)
		FindEventCounts(ctx context.Context, date time.Time, eventType string, aggregateType entity.AggregateType) ([]entity.EventCount, error)

		TotalEventCount(ctx context.Context) (int, error)
		TotalEventCountOn(ctx context.Context, date time.Time) (int, error)
		TotalsByEventType(ctx context.Context) ([]dto.TypeTotal, error)
		DailyTotalsSince(ctx context.Context, date time.Time) ([]dto.DailyTotal, error)
	}

	ArchiveRepo interface {
		Put(ctx context.Context, event dto.Event, archivedAt time.Time) (string, error)
	}

	Transactor interface {
		WithinTransaction(ctx context.Context, f func(ctx context.Context) error) error
	}
)
