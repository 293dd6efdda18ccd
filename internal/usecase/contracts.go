package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/andreyxaxa/Event-Analytics/internal/dto"
	"github.com/andreyxaxa/Event-Analytics/internal/entity"
)

type (
	PipelineUseCase interface {
		Poll(ctx context.Context, batchSize int) ([]dto.Event, error)
		Process(ctx context.Context, task dto.Event) (entity.Outcome, error)
		Replay(ctx context.Context, failedEventID uuid.UUID, resolvedBy string) (entity.Outcome, error)
		SweepUnarchived(ctx context.Context, limit int) error
	}

	AnalyticsUseCase interface {
		ListEventCounts(ctx context.Context, limit int) ([]entity.EventCount, error)
		ListFunnelMetrics(ctx context.Context, limit int) ([]entity.LeadFunnelMetric, error)
		ListRevenueMetrics(ctx context.Context, limit int) ([]entity.RevenueMetric, error)
		ListDailyAccountMetrics(ctx context.Context, limit int) ([]entity.DailyAccountMetric, error)
		ListRecentEvents(ctx context.Context, limit int) ([]*entity.OutboxEventStatus, error)
		ListFailedEvents(ctx context.Context, limit int) ([]*entity.FailedEvent, error)
		TraceEvent(ctx context.Context, eventID string) (*dto.EventTrace, error)
		Summary(ctx context.Context) (*dto.Summary, error)
		CreateTestEvent(ctx context.Context, req dto.TestEvent) (*entity.OutboxEvent, error)
		BackfillEventCounts(ctx context.Context) (*dto.BackfillReport, error)
	}

	RetryScheduler interface {
		Schedule(task dto.Event, delay time.Duration)
	}
)
