package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/andreyxaxa/Event-Analytics/internal/dto"
	"github.com/andreyxaxa/Event-Analytics/internal/entity"
	"github.com/andreyxaxa/Event-Analytics/pkg/types/errs"
)

// memDB эмулирует постгрес для тестов: один мьютекс на все таблицы,
// WithinTransaction держит его целиком и откатывает снапшот при ошибке.
type memDB struct {
	mu sync.Mutex

	outbox    []*entity.OutboxEvent
	processed map[string]*entity.ProcessedEvent
	failed    []*entity.FailedEvent

	counts  map[string]*entity.EventCount
	funnel  map[string]*entity.LeadFunnelMetric
	revenue map[string]*entity.RevenueMetric

	failIncrementTimes int  // первые N вызовов IncrementEventCount падают
	panicFunnelTimes   int  // первые N вызовов ApplyFunnelDelta паникуют
	hideProcessedOnce  bool // первый Exists не видит строку (гонка двух обработчиков)
}

type txMarker struct{}

func newMemDB() *memDB {
	return &memDB{
		processed: map[string]*entity.ProcessedEvent{},
		counts:    map[string]*entity.EventCount{},
		funnel:    map[string]*entity.LeadFunnelMetric{},
		revenue:   map[string]*entity.RevenueMetric{},
	}
}

func (db *memDB) lock(ctx context.Context) func() {
	if ctx.Value(txMarker{}) != nil {
		return func() {}
	}
	db.mu.Lock()

	return db.mu.Unlock
}

type memSnapshot struct {
	outbox    []*entity.OutboxEvent
	processed map[string]*entity.ProcessedEvent
	failed    []*entity.FailedEvent
	counts    map[string]*entity.EventCount
	funnel    map[string]*entity.LeadFunnelMetric
	revenue   map[string]*entity.RevenueMetric
}

func (db *memDB) snapshot() memSnapshot {
	s := memSnapshot{
		processed: map[string]*entity.ProcessedEvent{},
		counts:    map[string]*entity.EventCount{},
		funnel:    map[string]*entity.LeadFunnelMetric{},
		revenue:   map[string]*entity.RevenueMetric{},
	}
	for _, row := range db.outbox {
		c := *row
		s.outbox = append(s.outbox, &c)
	}
	for k, v := range db.processed {
		c := *v
		s.processed[k] = &c
	}
	for _, row := range db.failed {
		c := *row
		s.failed = append(s.failed, &c)
	}
	for k, v := range db.counts {
		c := *v
		s.counts[k] = &c
	}
	for k, v := range db.funnel {
		c := *v
		s.funnel[k] = &c
	}
	for k, v := range db.revenue {
		c := *v
		s.revenue[k] = &c
	}

	return s
}

func (db *memDB) restore(s memSnapshot) {
	db.outbox = s.outbox
	db.processed = s.processed
	db.failed = s.failed
	db.counts = s.counts
	db.funnel = s.funnel
	db.revenue = s.revenue
}

func (db *memDB) WithinTransaction(ctx context.Context, f func(ctx context.Context) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	snap := db.snapshot()

	err := f(context.WithValue(ctx, txMarker{}, true))
	if err != nil {
		db.restore(snap)

		return fmt.Errorf("memDB - WithinTransaction: %w", err)
	}

	return nil
}

// --- OutboxRepo ---

func (db *memDB) Create(ctx context.Context, event *entity.OutboxEvent) error {
	defer db.lock(ctx)()

	c := *event
	db.outbox = append(db.outbox, &c)

	return nil
}

func (db *memDB) ClaimPending(ctx context.Context, limit int) ([]*entity.OutboxEvent, error) {
	defer db.lock(ctx)()

	var pending []*entity.OutboxEvent
	for _, row := range db.outbox {
		if row.ProcessedAt == nil {
			pending = append(pending, row)
		}
	}

	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].RetryCount != pending[j].RetryCount {
			return pending[i].RetryCount < pending[j].RetryCount
		}

		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	if len(pending) > limit {
		pending = pending[:limit]
	}

	out := make([]*entity.OutboxEvent, 0, len(pending))
	for _, row := range pending {
		c := *row
		out = append(out, &c)
	}

	return out, nil
}

func (db *memDB) MarkPublishedBatch(ctx context.Context, ids uuid.UUIDs) error {
	defer db.lock(ctx)()

	now := time.Now()
	for _, row := range db.outbox {
		for _, id := range ids {
			if row.ID == id {
				t := now
				row.ProcessedAt = &t
				row.PublishedAt = &t
			}
		}
	}

	return nil
}

func (db *memDB) IncrementRetryCountBatch(ctx context.Context, ids uuid.UUIDs, lastError string) error {
	defer db.lock(ctx)()

	for _, row := range db.outbox {
		for _, id := range ids {
			if row.ID == id {
				row.RetryCount++
				msg := lastError
				row.LastError = &msg
			}
		}
	}

	return nil
}

func (db *memDB) GetByEventID(ctx context.Context, eventID string) (*entity.OutboxEvent, error) {
	defer db.lock(ctx)()

	for _, row := range db.outbox {
		if row.EventID == eventID {
			c := *row

			return &c, nil
		}
	}

	return nil, errs.ErrRecordNotFound
}

func (db *memDB) ListRecent(ctx context.Context, limit int) ([]*entity.OutboxEventStatus, error) {
	return nil, nil
}

func (db *memDB) CountByProcessed(ctx context.Context) (int64, int64, error) {
	defer db.lock(ctx)()

	var pending, processed int64
	for _, row := range db.outbox {
		if row.ProcessedAt == nil {
			pending++
		} else {
			processed++
		}
	}

	return pending, processed, nil
}

func (db *memDB) GroupedCounts(ctx context.Context) ([]entity.EventCount, error) {
	defer db.lock(ctx)()

	grouped := map[string]*entity.EventCount{}
	for _, row := range db.outbox {
		key := countKey(dateOf(row.CreatedAt), row.EventType, row.AggregateType)
		if g, ok := grouped[key]; ok {
			g.Count++
			continue
		}
		grouped[key] = &entity.EventCount{
			Date:          dateOf(row.CreatedAt),
			EventType:     row.EventType,
			AggregateType: row.AggregateType,
			Count:         1,
		}
	}

	out := make([]entity.EventCount, 0, len(grouped))
	for _, g := range grouped {
		out = append(out, *g)
	}

	return out, nil
}

// --- ProcessedEventRepo ---

func (db *memDB) Exists(ctx context.Context, eventID string) (bool, error) {
	defer db.lock(ctx)()

	if db.hideProcessedOnce {
		db.hideProcessedOnce = false

		return false, nil
	}

	_, ok := db.processed[eventID]

	return ok, nil
}

func (db *memDB) CreateProcessed(ctx context.Context, event *entity.ProcessedEvent) error {
	defer db.lock(ctx)()

	if _, ok := db.processed[event.EventID]; ok {
		return fmt.Errorf("duplicate key processed_events.event_id: %w", errs.ErrAlreadyProcessed)
	}
	c := *event
	db.processed[event.EventID] = &c

	return nil
}

func (db *memDB) GetProcessedByEventID(ctx context.Context, eventID string) (*entity.ProcessedEvent, error) {
	defer db.lock(ctx)()

	row, ok := db.processed[eventID]
	if !ok {
		return nil, errs.ErrRecordNotFound
	}
	c := *row

	return &c, nil
}

func (db *memDB) DeleteByEventID(ctx context.Context, eventID string) error {
	defer db.lock(ctx)()

	delete(db.processed, eventID)

	return nil
}

func (db *memDB) MarkArchived(ctx context.Context, eventID string) error {
	defer db.lock(ctx)()

	row, ok := db.processed[eventID]
	if !ok {
		return errs.ErrRecordNotFound
	}
	now := time.Now()
	row.ArchivedAt = &now

	return nil
}

func (db *memDB) ListUnarchived(ctx context.Context, limit int) ([]string, error) {
	defer db.lock(ctx)()

	var ids []string
	for id, row := range db.processed {
		if row.ArchivedAt == nil {
			ids = append(ids, id)
		}
		if len(ids) == limit {
			break
		}
	}

	return ids, nil
}

// --- FailedEventRepo ---

func (db *memDB) CreateFailed(ctx context.Context, event *entity.FailedEvent) error {
	defer db.lock(ctx)()

	for _, row := range db.failed {
		if row.EventID == event.EventID && row.ResolvedAt == nil {
			return fmt.Errorf("duplicate key: failed_events unresolved event_id")
		}
	}
	c := *event
	db.failed = append(db.failed, &c)

	return nil
}

func (db *memDB) GetFailedByID(ctx context.Context, id uuid.UUID) (*entity.FailedEvent, error) {
	defer db.lock(ctx)()

	for _, row := range db.failed {
		if row.ID == id {
			c := *row

			return &c, nil
		}
	}

	return nil, errs.ErrRecordNotFound
}

func (db *memDB) GetUnresolvedByEventID(ctx context.Context, eventID string) (*entity.FailedEvent, error) {
	defer db.lock(ctx)()

	for _, row := range db.failed {
		if row.EventID == eventID && row.ResolvedAt == nil {
			c := *row

			return &c, nil
		}
	}

	return nil, errs.ErrRecordNotFound
}

func (db *memDB) Resolve(ctx context.Context, id uuid.UUID, resolvedBy string) error {
	defer db.lock(ctx)()

	for _, row := range db.failed {
		if row.ID == id {
			now := time.Now()
			row.ResolvedAt = &now
			row.ResolvedBy = &resolvedBy

			return nil
		}
	}

	return errs.ErrRecordNotFound
}

func (db *memDB) ListUnresolved(ctx context.Context, limit int) ([]*entity.FailedEvent, error) {
	defer db.lock(ctx)()

	var out []*entity.FailedEvent
	for _, row := range db.failed {
		if row.ResolvedAt == nil {
			c := *row
			out = append(out, &c)
		}
		if len(out) == limit {
			break
		}
	}

	return out, nil
}

func (db *memDB) CountUnresolved(ctx context.Context) (int64, error) {
	defer db.lock(ctx)()

	var n int64
	for _, row := range db.failed {
		if row.ResolvedAt == nil {
			n++
		}
	}

	return n, nil
}

// --- MetricsRepo ---

func countKey(date time.Time, eventType string, aggregateType entity.AggregateType) string {
	return date.Format("2006-01-02") + "|" + eventType + "|" + string(aggregateType)
}

func (db *memDB) IncrementEventCount(ctx context.Context, date time.Time, eventType string, aggregateType entity.AggregateType) error {
	defer db.lock(ctx)()

	if db.failIncrementTimes > 0 {
		db.failIncrementTimes--

		return fmt.Errorf("connection reset by peer")
	}

	key := countKey(date, eventType, aggregateType)
	if row, ok := db.counts[key]; ok {
		row.Count++

		return nil
	}
	db.counts[key] = &entity.EventCount{Date: date, EventType: eventType, AggregateType: aggregateType, Count: 1}

	return nil
}

func (db *memDB) SetEventCount(ctx context.Context, count entity.EventCount) error {
	defer db.lock(ctx)()

	c := count
	db.counts[countKey(count.Date, count.EventType, count.AggregateType)] = &c

	return nil
}

func (db *memDB) ApplyFunnelDelta(ctx context.Context, date time.Time, delta entity.LeadFunnelDelta) error {
	defer db.lock(ctx)()

	if db.panicFunnelTimes > 0 {
		db.panicFunnelTimes--

		panic("nil map write in funnel rollup")
	}

	key := date.Format("2006-01-02")
	row, ok := db.funnel[key]
	if !ok {
		row = &entity.LeadFunnelMetric{Date: date}
		db.funnel[key] = row
	}

	row.NewLeads += delta.NewLeads
	row.ContactedLeads += delta.ContactedLeads
	row.QualifiedLeads += delta.QualifiedLeads
	row.WonLeads += delta.WonLeads
	row.LostLeads += delta.LostLeads
	row.TotalEstimatedValue = row.TotalEstimatedValue.Add(delta.TotalEstimatedValue)
	row.WonValue = row.WonValue.Add(delta.WonValue)
	row.LostValue = row.LostValue.Add(delta.LostValue)

	return nil
}

func (db *memDB) AddRevenue(ctx context.Context, month time.Time, accountID uuid.UUID, contractValue decimal.Decimal) error {
	defer db.lock(ctx)()

	key := month.Format("2006-01-02") + "|" + accountID.String()
	row, ok := db.revenue[key]
	if !ok {
		row = &entity.RevenueMetric{Month: month, AccountID: accountID}
		db.revenue[key] = row
	}

	row.ContractedValue = row.ContractedValue.Add(contractValue)
	row.ProjectsCount++

	return nil
}

func (db *memDB) ListEventCounts(ctx context.Context, limit int) ([]entity.EventCount, error) {
	defer db.lock(ctx)()

	var out []entity.EventCount
	for _, row := range db.counts {
		out = append(out, *row)
	}

	return out, nil
}

func (db *memDB) ListFunnelMetrics(ctx context.Context, limit int) ([]entity.LeadFunnelMetric, error) {
	defer db.lock(ctx)()

	var out []entity.LeadFunnelMetric
	for _, row := range db.funnel {
		out = append(out, *row)
	}

	return out, nil
}

func (db *memDB) ListRevenueMetrics(ctx context.Context, limit int) ([]entity.RevenueMetric, error) {
	defer db.lock(ctx)()

	var out []entity.RevenueMetric
	for _, row := range db.revenue {
		out = append(out, *row)
	}

	return out, nil
}

func (db *memDB) ListDailyAccountMetrics(ctx context.Context, limit int) ([]entity.DailyAccountMetric, error) {
	return nil, nil
}

func (db *memDB) FindEventCounts(ctx context.Context, date time.Time, eventType string, aggregateType entity.AggregateType) ([]entity.EventCount, error) {
	defer db.lock(ctx)()

	if row, ok := db.counts[countKey(date, eventType, aggregateType)]; ok {
		return []entity.EventCount{*row}, nil
	}

	return nil, nil
}

func (db *memDB) TotalEventCount(ctx context.Context) (int, error) {
	defer db.lock(ctx)()

	total := 0
	for _, row := range db.counts {
		total += row.Count
	}

	return total, nil
}

func (db *memDB) TotalEventCountOn(ctx context.Context, date time.Time) (int, error) {
	defer db.lock(ctx)()

	total := 0
	for _, row := range db.counts {
		if row.Date.Equal(date) {
			total += row.Count
		}
	}

	return total, nil
}

func (db *memDB) TotalsByEventType(ctx context.Context) ([]dto.TypeTotal, error) {
	return nil, nil
}

func (db *memDB) DailyTotalsSince(ctx context.Context, date time.Time) ([]dto.DailyTotal, error) {
	return nil, nil
}

// --- вспомогательные фейки ---

type fakeScheduler struct {
	mu     sync.Mutex
	tasks  []dto.Event
	delays []time.Duration
}

func (s *fakeScheduler) Schedule(task dto.Event, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = append(s.tasks, task)
	s.delays = append(s.delays, delay)
}

func (s *fakeScheduler) pop() (dto.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tasks) == 0 {
		return dto.Event{}, false
	}
	task := s.tasks[0]
	s.tasks = s.tasks[1:]
	s.delays = s.delays[1:]

	return task, true
}

type fakePublisher struct {
	mu        sync.Mutex
	err       error
	published [][]dto.Event
}

func (p *fakePublisher) PublishEvents(ctx context.Context, events []dto.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, events)

	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeAlerter struct {
	mu    sync.Mutex
	calls []string
}

func (a *fakeAlerter) Alert(eventID, eventType, errorMessage string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls = append(a.calls, eventID)
}

type fakeArchive struct {
	mu     sync.Mutex
	err    error
	stored map[string]dto.Event
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{stored: map[string]dto.Event{}}
}

func (a *fakeArchive) Put(ctx context.Context, event dto.Event, archivedAt time.Time) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.err != nil {
		return "", a.err
	}
	key := fmt.Sprintf("events/%s/%s.json", event.AggregateType, event.EventID)
	a.stored[key] = event

	return key, nil
}

// адаптеры под интерфейсы repo: имена Create/GetByEventID пересекаются
// между репозиториями, memDB держит их под разными именами

type memOutboxRepo struct{ *memDB }

type memProcessedRepo struct{ *memDB }

func (r memProcessedRepo) Create(ctx context.Context, event *entity.ProcessedEvent) error {
	return r.CreateProcessed(ctx, event)
}

func (r memProcessedRepo) GetByEventID(ctx context.Context, eventID string) (*entity.ProcessedEvent, error) {
	return r.GetProcessedByEventID(ctx, eventID)
}

type memFailedRepo struct{ *memDB }

func (r memFailedRepo) Create(ctx context.Context, event *entity.FailedEvent) error {
	return r.CreateFailed(ctx, event)
}

func (r memFailedRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.FailedEvent, error) {
	return r.GetFailedByID(ctx, id)
}

type nopLogger struct{}

func (nopLogger) Debug(message interface{}, args ...interface{}) {}
func (nopLogger) Info(message string, args ...interface{})       {}
func (nopLogger) Warn(message string, args ...interface{})       {}
func (nopLogger) Error(message interface{}, args ...interface{}) {}
func (nopLogger) Fatal(message interface{}, args ...interface{}) {}
