package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/andreyxaxa/Event-Analytics/internal/dto"
	"github.com/andreyxaxa/Event-Analytics/internal/entity"
	"github.com/andreyxaxa/Event-Analytics/internal/infrastructure"
	"github.com/andreyxaxa/Event-Analytics/internal/repo"
	"github.com/andreyxaxa/Event-Analytics/internal/usecase"
	"github.com/andreyxaxa/Event-Analytics/pkg/logger"
	"github.com/andreyxaxa/Event-Analytics/pkg/types/errs"
)

const ResolvedByReplay = "manual_replay"

type PipelineUseCase struct {
	outboxRepo    repo.OutboxRepo
	processedRepo repo.ProcessedEventRepo
	failedRepo    repo.FailedEventRepo
	metricsRepo   repo.MetricsRepo
	archiveRepo   repo.ArchiveRepo // nil - архив выключен
	transactor    repo.Transactor

	publisher infrastructure.EventPublisher // nil - режим без очереди
	scheduler usecase.RetryScheduler
	alerter   infrastructure.Alerter
	logger    logger.Interface

	maxRetries   int
	retryBackoff []time.Duration
}

func New(
	outboxRepo repo.OutboxRepo,
	processedRepo repo.ProcessedEventRepo,
	failedRepo repo.FailedEventRepo,
	metricsRepo repo.MetricsRepo,
	archiveRepo repo.ArchiveRepo,
	transactor repo.Transactor,
	publisher infrastructure.EventPublisher,
	scheduler usecase.RetryScheduler,
	alerter infrastructure.Alerter,
	l logger.Interface,
	maxRetries int,
	retryBackoff []time.Duration,
) *PipelineUseCase {
	return &PipelineUseCase{
		outboxRepo:    outboxRepo,
		processedRepo: processedRepo,
		failedRepo:    failedRepo,
		metricsRepo:   metricsRepo,
		archiveRepo:   archiveRepo,
		transactor:    transactor,
		publisher:     publisher,
		scheduler:     scheduler,
		alerter:       alerter,
		logger:        l,
		maxRetries:    maxRetries,
		retryBackoff:  retryBackoff,
	}
}

// Poll живет в одной транзакции: FOR UPDATE SKIP LOCKED держит claim
// до коммита, конкурентные поллеры не видят одни и те же строки.
func (uc *PipelineUseCase) Poll(ctx context.Context, batchSize int) ([]dto.Event, error) {
	var claimed []dto.Event

	err := uc.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		// 1. забираем пачку pending строк
		events, err := uc.outboxRepo.ClaimPending(ctx, batchSize)
		if err != nil {
			return fmt.Errorf("uc.outboxRepo.ClaimPending: %w", err)
		}
		if len(events) == 0 {
			return nil
		}

		ids := make(uuid.UUIDs, 0, len(events))
		batch := make([]dto.Event, 0, len(events))
		for _, event := range events {
			ids = append(ids, event.ID)
			batch = append(batch, dto.EventFromOutbox(event))
		}

		// 2. публикуем в очередь, если она настроена
		if uc.publisher != nil {
			err = uc.publisher.PublishEvents(ctx, batch)
			if err != nil {
				uc.logger.Error(err, "PipelineUseCase - Poll - uc.publisher.PublishEvents")

				// 2.1 не получилось - processed_at остается NULL, claim
				// снимется коммитом; retry_count подвинет пачку за
				// свежие строки на следующем цикле
				incErr := uc.outboxRepo.IncrementRetryCountBatch(ctx, ids, err.Error())
				if incErr != nil {
					return fmt.Errorf("uc.outboxRepo.IncrementRetryCountBatch: %w", incErr)
				}

				return nil
			}
		}

		// 3. штампуем отправку
		err = uc.outboxRepo.MarkPublishedBatch(ctx, ids)
		if err != nil {
			return fmt.Errorf("uc.outboxRepo.MarkPublishedBatch: %w", err)
		}

		claimed = batch

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("PipelineUseCase - Poll - uc.transactor.WithinTransaction: %w", err)
	}

	return claimed, nil
}

// Process обрабатывает событие ровно один раз: проверка ledger-а,
// транзакционная агрегация, best-effort архив. Временный сбой - ретрай
// по расписанию, исчерпанные ретраи - dead-letter.
func (uc *PipelineUseCase) Process(ctx context.Context, task dto.Event) (entity.Outcome, error) {
	// 1. проверяем ledger идемпотентности
	exists, err := uc.processedRepo.Exists(ctx, task.EventID)
	if err != nil {
		return "", fmt.Errorf("PipelineUseCase - Process - uc.processedRepo.Exists: %w", err)
	}
	if exists {
		uc.logger.Warn("event %s already processed, skipping (idempotent)", task.EventID)

		return entity.OutcomeSkippedDuplicate, nil
	}

	// 2. агрегация + ledger в одной транзакции
	procErr := uc.runTransactional(ctx, task)
	if procErr == nil {
		// 3. архив после коммита, best-effort
		uc.archiveEvent(ctx, task)

		return entity.OutcomeSuccess, nil
	}

	// гонка двух обработчиков: второй упирается в уникальный индекс
	// ledger-а - событие уже обработано, ретраить нечего
	if errors.Is(procErr, errs.ErrAlreadyProcessed) {
		uc.logger.Warn("event %s processed concurrently, skipping (idempotent)", task.EventID)

		return entity.OutcomeSkippedDuplicate, nil
	}

	uc.logger.Error(procErr, "PipelineUseCase - Process - uc.runTransactional")

	// 4. ретрай по расписанию, пока не исчерпаны попытки
	if task.RetryCount < uc.maxRetries {
		delay := uc.backoffFor(task.RetryCount)
		next := task
		next.RetryCount++

		uc.logger.Warn("retrying event %s in %s (attempt %d/%d)",
			task.EventID, delay, next.RetryCount, uc.maxRetries)
		uc.scheduler.Schedule(next, delay)

		return entity.OutcomeRetryScheduled, nil
	}

	// 5. попытки кончились - dead-letter
	err = uc.deadLetter(ctx, task, procErr)
	if err != nil {
		return "", fmt.Errorf("PipelineUseCase - Process - uc.deadLetter: %w", err)
	}

	return entity.OutcomeDeadLettered, nil
}

// runTransactional атомарно коммитит инкремент счетчика, обработчик
// агрегации и вставку в ledger: ledger не может опередить метрики,
// которые он подтверждает. Паника в обработчике - временный сбой.
func (uc *PipelineUseCase) runTransactional(ctx context.Context, task dto.Event) error {
	return uc.transactor.WithinTransaction(ctx, func(ctx context.Context) (err error) {
		// панику ловим внутри транзакционного замыкания: транзактор
		// откатывает только по возвращенной ошибке, пролетевшая паника
		// оставила бы транзакцию открытой вместе с блокировками строк
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
			}
		}()

		today := dateOf(time.Now())
		aggregateType := entity.AggregateType(task.AggregateType)

		// 1. дневной счетчик событий
		err = uc.metricsRepo.IncrementEventCount(ctx, today, task.EventType, aggregateType)
		if err != nil {
			return fmt.Errorf("uc.metricsRepo.IncrementEventCount: %w", err)
		}

		// 2. обработчик агрегации по типу
		err = uc.applyHandler(ctx, task)
		if err != nil {
			return fmt.Errorf("uc.applyHandler: %w", err)
		}

		aggregateID, err := uuid.Parse(task.AggregateID)
		if err != nil {
			return fmt.Errorf("uuid.Parse(aggregate_id): %w", err)
		}

		// 3. запись в ledger идемпотентности
		err = uc.processedRepo.Create(ctx, &entity.ProcessedEvent{
			EventID:       task.EventID,
			EventType:     task.EventType,
			AggregateType: aggregateType,
			AggregateID:   aggregateID,
			ProcessedAt:   time.Now(),
		})
		if err != nil {
			return fmt.Errorf("uc.processedRepo.Create: %w", err)
		}

		return nil
	})
}

// archiveEvent работает после коммита, best-effort: сбой тут логируется
// и глотается, в ретраи не уходит. Watermark остается пустым, событие
// доберет sweeper.
func (uc *PipelineUseCase) archiveEvent(ctx context.Context, task dto.Event) {
	if uc.archiveRepo == nil {
		return
	}

	key, err := uc.archiveRepo.Put(ctx, task, time.Now())
	if err != nil {
		uc.logger.Error(err, "PipelineUseCase - archiveEvent - uc.archiveRepo.Put")

		return
	}

	err = uc.processedRepo.MarkArchived(ctx, task.EventID)
	if err != nil {
		uc.logger.Error(err, "PipelineUseCase - archiveEvent - uc.processedRepo.MarkArchived")

		return
	}

	uc.logger.Debug("archived event %s to %s", task.EventID, key)
}

func (uc *PipelineUseCase) deadLetter(ctx context.Context, task dto.Event, procErr error) error {
	uc.logger.Error(procErr, fmt.Sprintf("max retries exceeded for event %s, moving to failed_events", task.EventID))

	aggregateID, parseErr := uuid.Parse(task.AggregateID)
	if parseErr != nil {
		aggregateID = uuid.Nil
	}

	now := time.Now()
	trace := fmt.Sprintf("%+v", procErr)

	err := uc.failedRepo.Create(ctx, &entity.FailedEvent{
		ID:            uuid.New(),
		EventID:       task.EventID,
		EventType:     task.EventType,
		AggregateType: entity.AggregateType(task.AggregateType),
		AggregateID:   aggregateID,
		Payload:       task.Payload,
		ErrorMessage:  procErr.Error(),
		ErrorTrace:    &trace,
		RetryCount:    task.RetryCount,
		FirstFailedAt: now,
		LastFailedAt:  now,
	})
	if err != nil {
		return fmt.Errorf("uc.failedRepo.Create: %w", err)
	}

	uc.alerter.Alert(task.EventID, task.EventType, procErr.Error())

	return nil
}

// Replay переигрывает dead-letter событие: сначала снимается guard
// идемпотентности, иначе повторная обработка будет пропущена; строка
// сбоя резолвится даже если реплей снова упал (новый сбой откроет
// свежий dead-letter).
func (uc *PipelineUseCase) Replay(ctx context.Context, failedEventID uuid.UUID, resolvedBy string) (entity.Outcome, error) {
	// 1. ищем dead-letter по суррогатному ключу
	failed, err := uc.failedRepo.GetByID(ctx, failedEventID)
	if err != nil {
		if errors.Is(err, errs.ErrRecordNotFound) {
			return "", fmt.Errorf("PipelineUseCase - Replay: %w", errs.ErrRecordNotFound)
		}
		return "", fmt.Errorf("PipelineUseCase - Replay - uc.failedRepo.GetByID: %w", err)
	}

	uc.logger.Info("replaying failed event: %s", failed.EventID)

	// 2. снимаем guard идемпотентности
	err = uc.processedRepo.DeleteByEventID(ctx, failed.EventID)
	if err != nil {
		return "", fmt.Errorf("PipelineUseCase - Replay - uc.processedRepo.DeleteByEventID: %w", err)
	}

	if resolvedBy == "" {
		resolvedBy = ResolvedByReplay
	}

	task := dto.Event{
		EventID:       failed.EventID,
		EventType:     failed.EventType,
		AggregateType: string(failed.AggregateType),
		AggregateID:   failed.AggregateID.String(),
		Payload:       failed.Payload,
		CreatedAt:     failed.FirstFailedAt,
		RetryCount:    0,
	}

	// created_at берем из исходной строки аутбокса - от него строится
	// ключ архива; без строки остается дата первого сбоя
	if outboxRow, obErr := uc.outboxRepo.GetByEventID(ctx, failed.EventID); obErr == nil {
		task.CreatedAt = outboxRow.CreatedAt
	}

	// 3. обрабатываем заново с нулевым счетчиком попыток
	outcome, procErr := uc.Process(ctx, task)

	// 4. резолвим исходный сбой независимо от исхода
	err = uc.failedRepo.Resolve(ctx, failedEventID, resolvedBy)
	if err != nil {
		uc.logger.Error(err, "PipelineUseCase - Replay - uc.failedRepo.Resolve")
	}

	if procErr != nil {
		return outcome, fmt.Errorf("PipelineUseCase - Replay - uc.Process: %w", procErr)
	}

	return outcome, nil
}

// SweepUnarchived повторяет архивацию для записей, у которых запись в
// архив не состоялась (например, упали между коммитом и загрузкой).
func (uc *PipelineUseCase) SweepUnarchived(ctx context.Context, limit int) error {
	if uc.archiveRepo == nil {
		return nil
	}

	ids, err := uc.processedRepo.ListUnarchived(ctx, limit)
	if err != nil {
		return fmt.Errorf("PipelineUseCase - SweepUnarchived - uc.processedRepo.ListUnarchived: %w", err)
	}

	for _, eventID := range ids {
		event, err := uc.outboxRepo.GetByEventID(ctx, eventID)
		if err != nil {
			uc.logger.Warn("cannot re-archive event %s: %v", eventID, err)

			continue
		}

		uc.archiveEvent(ctx, dto.EventFromOutbox(event))
	}

	return nil
}

// backoffFor берет задержку по номеру неудавшейся попытки,
// последнее значение расписания не превышается.
func (uc *PipelineUseCase) backoffFor(retryCount int) time.Duration {
	if len(uc.retryBackoff) == 0 {
		return 0
	}
	if retryCount >= len(uc.retryBackoff) {
		return uc.retryBackoff[len(uc.retryBackoff)-1]
	}

	return uc.retryBackoff[retryCount]
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
