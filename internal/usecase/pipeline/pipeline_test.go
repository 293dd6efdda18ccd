package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/andreyxaxa/Event-Analytics/internal/dto"
	"github.com/andreyxaxa/Event-Analytics/internal/entity"
	"github.com/andreyxaxa/Event-Analytics/internal/infrastructure"
	"github.com/andreyxaxa/Event-Analytics/internal/repo"
)

var testBackoff = []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second}

func newTestPipeline(
	db *memDB,
	archive repo.ArchiveRepo,
	publisher infrastructure.EventPublisher,
	sched *fakeScheduler,
	alerter *fakeAlerter,
) *PipelineUseCase {
	return New(
		memOutboxRepo{db},
		memProcessedRepo{db},
		memFailedRepo{db},
		db,
		archive,
		db,
		publisher,
		sched,
		alerter,
		nopLogger{},
		3,
		testBackoff,
	)
}

func leadTask(eventID, status, value string) dto.Event {
	payload, _ := json.Marshal(map[string]interface{}{
		"lead_status":     status,
		"estimated_value": value,
	})

	return dto.Event{
		EventID:       eventID,
		EventType:     "INSERT_LEADS",
		AggregateType: "leads",
		AggregateID:   uuid.New().String(),
		Payload:       payload,
		CreatedAt:     time.Now(),
	}
}

func seedLeadRow(db *memDB, eventID, status, value string) *entity.OutboxEvent {
	payload, _ := json.Marshal(map[string]interface{}{
		"lead_status":     status,
		"estimated_value": value,
	})

	row := &entity.OutboxEvent{
		ID:            uuid.New(),
		EventID:       eventID,
		EventType:     "INSERT_LEADS",
		AggregateType: entity.AggregateLeads,
		AggregateID:   uuid.New(),
		Payload:       payload,
		CreatedAt:     time.Now(),
	}
	_ = db.Create(context.Background(), row)

	return row
}

func todayFunnel(t *testing.T, db *memDB) *entity.LeadFunnelMetric {
	t.Helper()

	row, ok := db.funnel[dateOf(time.Now()).Format("2006-01-02")]
	require.True(t, ok, "funnel row for today must exist")

	return row
}

func TestProcess_Idempotency(t *testing.T) {
	db := newMemDB()
	uc := newTestPipeline(db, nil, nil, &fakeScheduler{}, &fakeAlerter{})

	task := leadTask("evt-1", "won", "100")

	outcome, err := uc.Process(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, entity.OutcomeSuccess, outcome)

	outcome, err = uc.Process(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeSkippedDuplicate, outcome)

	assert.Len(t, db.processed, 1)
	assert.Equal(t, 1, db.counts[countKey(dateOf(time.Now()), "INSERT_LEADS", entity.AggregateLeads)].Count)
	assert.Equal(t, 1, todayFunnel(t, db).WonLeads)
}

func TestProcess_ExactlyOnceUnderRetry(t *testing.T) {
	db := newMemDB()
	sched := &fakeScheduler{}
	uc := newTestPipeline(db, nil, nil, sched, &fakeAlerter{})

	// первые две попытки падают в транзакции, третья проходит
	db.failIncrementTimes = 2

	outcome, err := uc.Process(context.Background(), leadTask("evt-2", "won", "500"))
	require.NoError(t, err)
	require.Equal(t, entity.OutcomeRetryScheduled, outcome)

	task, ok := sched.pop()
	require.True(t, ok)
	assert.Equal(t, 1, task.RetryCount)

	outcome, err = uc.Process(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, entity.OutcomeRetryScheduled, outcome)

	task, ok = sched.pop()
	require.True(t, ok)
	assert.Equal(t, 2, task.RetryCount)

	outcome, err = uc.Process(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, entity.OutcomeSuccess, outcome)

	// эффект ровно один раз, откаты не накопились
	funnel := todayFunnel(t, db)
	assert.Equal(t, 1, funnel.WonLeads)
	assert.True(t, decimal.NewFromInt(500).Equal(funnel.WonValue))
	assert.Equal(t, 1, db.counts[countKey(dateOf(time.Now()), "INSERT_LEADS", entity.AggregateLeads)].Count)
	assert.Len(t, db.processed, 1)
}

func TestPoll_ClaimExclusivity(t *testing.T) {
	db := newMemDB()
	uc := newTestPipeline(db, nil, nil, &fakeScheduler{}, &fakeAlerter{})

	for i := 0; i < 50; i++ {
		seedLeadRow(db, uuid.New().String(), "new", "0")
	}

	var mu sync.Mutex
	claimed := map[string]int{}

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 5; i++ {
		g.Go(func() error {
			for {
				events, err := uc.Poll(ctx, 10)
				if err != nil {
					return err
				}
				if len(events) == 0 {
					return nil
				}

				mu.Lock()
				for _, event := range events {
					claimed[event.EventID]++
				}
				mu.Unlock()
			}
		})
	}
	require.NoError(t, g.Wait())

	assert.Len(t, claimed, 50)
	for eventID, n := range claimed {
		assert.Equal(t, 1, n, "event %s claimed more than once", eventID)
	}
}

func TestProcess_DeadLetterThreshold(t *testing.T) {
	db := newMemDB()
	sched := &fakeScheduler{}
	alerter := &fakeAlerter{}
	uc := newTestPipeline(db, nil, nil, sched, alerter)

	// падают все попытки: первая + три ретрая
	db.failIncrementTimes = 4

	outcome, err := uc.Process(context.Background(), leadTask("evt-3", "new", "0"))
	require.NoError(t, err)

	for {
		task, ok := sched.pop()
		if !ok {
			break
		}
		outcome, err = uc.Process(context.Background(), task)
		require.NoError(t, err)
	}

	require.Equal(t, entity.OutcomeDeadLettered, outcome)

	require.Len(t, db.failed, 1)
	assert.Equal(t, "evt-3", db.failed[0].EventID)
	assert.Equal(t, 3, db.failed[0].RetryCount)
	assert.NotEmpty(t, db.failed[0].ErrorMessage)
	assert.Nil(t, db.failed[0].ResolvedAt)

	_, ok := sched.pop()
	assert.False(t, ok, "no retry after dead-letter")
	assert.Equal(t, []string{"evt-3"}, alerter.calls)
	assert.Empty(t, db.processed)
}

func TestReplay_ClearsDuplicateGuard(t *testing.T) {
	db := newMemDB()
	uc := newTestPipeline(db, nil, nil, &fakeScheduler{}, &fakeAlerter{})

	payload, _ := json.Marshal(map[string]interface{}{
		"lead_status":     "won",
		"estimated_value": "50",
	})
	failedID := uuid.New()
	require.NoError(t, db.CreateFailed(context.Background(), &entity.FailedEvent{
		ID:            failedID,
		EventID:       "evt-4",
		EventType:     "INSERT_LEADS",
		AggregateType: entity.AggregateLeads,
		AggregateID:   uuid.New(),
		Payload:       payload,
		ErrorMessage:  "handler blew up",
		RetryCount:    3,
		FirstFailedAt: time.Now(),
		LastFailedAt:  time.Now(),
	}))

	// застрявшая запись в ledger-е от частично прошедшей обработки
	require.NoError(t, db.CreateProcessed(context.Background(), &entity.ProcessedEvent{
		EventID:     "evt-4",
		EventType:   "INSERT_LEADS",
		AggregateID: uuid.New(),
		ProcessedAt: time.Now(),
	}))

	outcome, err := uc.Replay(context.Background(), failedID, "oncall")
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeSuccess, outcome)

	// guard снят и записан заново успешной обработкой
	row, ok := db.processed["evt-4"]
	require.True(t, ok)
	assert.Equal(t, entity.AggregateLeads, row.AggregateType)

	resolved, err := db.GetFailedByID(context.Background(), failedID)
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolvedAt)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, "oncall", *resolved.ResolvedBy)
}

func TestReplay_ResolvesEvenIfReplayFails(t *testing.T) {
	db := newMemDB()
	sched := &fakeScheduler{}
	uc := newTestPipeline(db, nil, nil, sched, &fakeAlerter{})

	failedID := uuid.New()
	require.NoError(t, db.CreateFailed(context.Background(), &entity.FailedEvent{
		ID:            failedID,
		EventID:       "evt-5",
		EventType:     "INSERT_LEADS",
		AggregateType: entity.AggregateLeads,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{}`),
		ErrorMessage:  "handler blew up",
		RetryCount:    3,
		FirstFailedAt: time.Now(),
		LastFailedAt:  time.Now(),
	}))

	db.failIncrementTimes = 1

	outcome, err := uc.Replay(context.Background(), failedID, "")
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeRetryScheduled, outcome)

	// retry_count обнулен при реплее
	task, ok := sched.pop()
	require.True(t, ok)
	assert.Equal(t, 1, task.RetryCount)

	resolved, err := db.GetFailedByID(context.Background(), failedID)
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, ResolvedByReplay, *resolved.ResolvedBy)
}

func TestReplay_NotFound(t *testing.T) {
	db := newMemDB()
	uc := newTestPipeline(db, nil, nil, &fakeScheduler{}, &fakeAlerter{})

	_, err := uc.Replay(context.Background(), uuid.New(), "")
	require.Error(t, err)
}

func TestPollProcess_LeadWonScenario(t *testing.T) {
	db := newMemDB()
	uc := newTestPipeline(db, nil, nil, &fakeScheduler{}, &fakeAlerter{})

	seedLeadRow(db, "evt-6", "won", "50000")

	events, err := uc.Poll(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, events, 1)

	outcome, err := uc.Process(context.Background(), events[0])
	require.NoError(t, err)
	require.Equal(t, entity.OutcomeSuccess, outcome)

	funnel := todayFunnel(t, db)
	assert.Equal(t, 1, funnel.WonLeads)
	assert.True(t, decimal.NewFromInt(50000).Equal(funnel.WonValue), "won_value = %s", funnel.WonValue)
	assert.True(t, decimal.NewFromInt(50000).Equal(funnel.TotalEstimatedValue))

	assert.Equal(t, 1, db.counts[countKey(dateOf(time.Now()), "INSERT_LEADS", entity.AggregateLeads)].Count)

	require.NotNil(t, db.outbox[0].ProcessedAt)
	require.NotNil(t, db.outbox[0].PublishedAt)
}

func TestProcess_DuplicateEventID(t *testing.T) {
	db := newMemDB()
	uc := newTestPipeline(db, nil, nil, &fakeScheduler{}, &fakeAlerter{})

	// два аутбокс-ряда с одним event_id (дубль на стороне продюсера)
	seedLeadRow(db, "evt-7", "won", "100")
	seedLeadRow(db, "evt-7", "won", "100")

	events, err := uc.Poll(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, events, 2)

	first, err := uc.Process(context.Background(), events[0])
	require.NoError(t, err)
	second, err := uc.Process(context.Background(), events[1])
	require.NoError(t, err)

	assert.Equal(t, entity.OutcomeSuccess, first)
	assert.Equal(t, entity.OutcomeSkippedDuplicate, second)

	assert.Len(t, db.processed, 1)
	assert.Equal(t, 1, todayFunnel(t, db).WonLeads)
	assert.Equal(t, 1, db.counts[countKey(dateOf(time.Now()), "INSERT_LEADS", entity.AggregateLeads)].Count)
}

func TestPoll_PublishFailureReleasesBatch(t *testing.T) {
	db := newMemDB()
	pub := &fakePublisher{err: errors.New("broker unavailable")}
	uc := newTestPipeline(db, nil, pub, &fakeScheduler{}, &fakeAlerter{})

	for i := 0; i < 5; i++ {
		seedLeadRow(db, uuid.New().String(), "new", "0")
	}

	events, err := uc.Poll(context.Background(), 100)
	require.NoError(t, err)
	assert.Empty(t, events)

	for _, row := range db.outbox {
		assert.Nil(t, row.ProcessedAt)
		assert.Equal(t, 1, row.RetryCount)
		require.NotNil(t, row.LastError)
		assert.Contains(t, *row.LastError, "broker unavailable")
	}

	// брокер ожил - пачка уходит со второй попытки
	pub.err = nil

	events, err = uc.Poll(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, events, 5)

	for _, row := range db.outbox {
		assert.NotNil(t, row.ProcessedAt)
	}
}

func TestProcess_UnknownAggregateTypeCountedOnly(t *testing.T) {
	db := newMemDB()
	uc := newTestPipeline(db, nil, nil, &fakeScheduler{}, &fakeAlerter{})

	task := dto.Event{
		EventID:       "evt-8",
		EventType:     "INSERT_WIDGETS",
		AggregateType: "widgets",
		AggregateID:   uuid.New().String(),
		Payload:       []byte(`{}`),
		CreatedAt:     time.Now(),
	}

	outcome, err := uc.Process(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeSuccess, outcome)

	assert.Equal(t, 1, db.counts[countKey(dateOf(time.Now()), "INSERT_WIDGETS", "widgets")].Count)
	assert.Empty(t, db.funnel)
	assert.Empty(t, db.revenue)
}

func TestProcess_ArchiveFailureDoesNotFailEvent(t *testing.T) {
	db := newMemDB()
	archive := newFakeArchive()
	archive.err = errors.New("s3 timeout")
	uc := newTestPipeline(db, archive, nil, &fakeScheduler{}, &fakeAlerter{})

	seedLeadRow(db, "evt-9", "new", "0")

	outcome, err := uc.Process(context.Background(), leadTask("evt-9", "new", "0"))
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeSuccess, outcome)

	// watermark не выставлен - событие ждет досылки
	require.NotNil(t, db.processed["evt-9"])
	assert.Nil(t, db.processed["evt-9"].ArchivedAt)
	assert.Empty(t, archive.stored)

	archive.err = nil
	require.NoError(t, uc.SweepUnarchived(context.Background(), 100))

	assert.NotNil(t, db.processed["evt-9"].ArchivedAt)
	assert.Len(t, archive.stored, 1)
}

func TestBackoffSchedule(t *testing.T) {
	uc := newTestPipeline(newMemDB(), nil, nil, &fakeScheduler{}, &fakeAlerter{})

	assert.Equal(t, 60*time.Second, uc.backoffFor(0))
	assert.Equal(t, 300*time.Second, uc.backoffFor(1))
	assert.Equal(t, 900*time.Second, uc.backoffFor(2))
	// за пределами расписания - последний интервал
	assert.Equal(t, 900*time.Second, uc.backoffFor(7))
}

func TestProcess_InvalidAggregateIDRollsBackWhole(t *testing.T) {
	db := newMemDB()
	sched := &fakeScheduler{}
	uc := newTestPipeline(db, nil, nil, sched, &fakeAlerter{})

	// кривой aggregate_id ломает вставку в ledger уже после инкремента
	task := leadTask("evt-10", "new", "0")
	task.AggregateID = "not-a-uuid"

	outcome, err := uc.Process(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeRetryScheduled, outcome)

	// транзакция откатилась целиком, включая счетчик и воронку
	assert.Empty(t, db.counts)
	assert.Empty(t, db.funnel)
	assert.Empty(t, db.processed)

	task, ok := sched.pop()
	require.True(t, ok)
	assert.Equal(t, 1, task.RetryCount)
}

func TestProcess_PanicRollsBackTransaction(t *testing.T) {
	db := newMemDB()
	sched := &fakeScheduler{}
	uc := newTestPipeline(db, nil, nil, sched, &fakeAlerter{})

	// паника в обработчике после инкремента счетчика: транзакция должна
	// откатиться целиком, а не зависнуть открытой
	db.panicFunnelTimes = 1

	outcome, err := uc.Process(context.Background(), leadTask("evt-11", "won", "100"))
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeRetryScheduled, outcome)

	assert.Empty(t, db.counts)
	assert.Empty(t, db.funnel)
	assert.Empty(t, db.processed)

	// ретрай проходит как обычный временный сбой
	task, ok := sched.pop()
	require.True(t, ok)
	require.Equal(t, 1, task.RetryCount)

	outcome, err = uc.Process(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeSuccess, outcome)
	assert.Equal(t, 1, todayFunnel(t, db).WonLeads)
}

func TestProcess_ConcurrentLedgerInsertIsDuplicate(t *testing.T) {
	db := newMemDB()
	sched := &fakeScheduler{}
	uc := newTestPipeline(db, nil, nil, sched, &fakeAlerter{})

	// второй обработчик успел вписать событие в ledger между проверкой
	// Exists и вставкой - уникальный индекс останавливает первого
	require.NoError(t, db.CreateProcessed(context.Background(), &entity.ProcessedEvent{
		EventID:     "evt-12",
		EventType:   "INSERT_LEADS",
		AggregateID: uuid.New(),
		ProcessedAt: time.Now(),
	}))
	db.hideProcessedOnce = true

	outcome, err := uc.Process(context.Background(), leadTask("evt-12", "won", "100"))
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeSkippedDuplicate, outcome)

	// транзакция проигравшего откатилась, ретрай не назначен
	assert.Empty(t, db.counts)
	assert.Empty(t, db.funnel)
	assert.Empty(t, db.failed)

	_, ok := sched.pop()
	assert.False(t, ok, "no retry for a concurrently processed event")
}

func TestReplay_ArchivesUnderOriginalCreatedAt(t *testing.T) {
	db := newMemDB()
	archive := newFakeArchive()
	uc := newTestPipeline(db, archive, nil, &fakeScheduler{}, &fakeAlerter{})

	createdAt := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	row := seedLeadRow(db, "evt-13", "won", "100")
	db.outbox[0].CreatedAt = createdAt

	failedID := uuid.New()
	require.NoError(t, db.CreateFailed(context.Background(), &entity.FailedEvent{
		ID:            failedID,
		EventID:       "evt-13",
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorMessage:  "handler blew up",
		RetryCount:    3,
		FirstFailedAt: time.Now(),
		LastFailedAt:  time.Now(),
	}))

	outcome, err := uc.Replay(context.Background(), failedID, "oncall")
	require.NoError(t, err)
	require.Equal(t, entity.OutcomeSuccess, outcome)

	// ключ архива строится от created_at - реплей должен нести дату
	// исходного события, а не дату сбоя
	require.Len(t, archive.stored, 1)
	for _, stored := range archive.stored {
		assert.True(t, stored.CreatedAt.Equal(createdAt), "archived created_at = %s", stored.CreatedAt)
	}
}
