package processor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreyxaxa/Event-Analytics/internal/dto"
	"github.com/andreyxaxa/Event-Analytics/internal/entity"
)

type nopLogger struct{}

func (nopLogger) Debug(message interface{}, args ...interface{}) {}
func (nopLogger) Info(message string, args ...interface{})       {}
func (nopLogger) Warn(message string, args ...interface{})       {}
func (nopLogger) Error(message interface{}, args ...interface{}) {}
func (nopLogger) Fatal(message interface{}, args ...interface{}) {}

type recordingPipeline struct {
	mu        sync.Mutex
	processed []string
	done      chan struct{}
}

func (p *recordingPipeline) Poll(ctx context.Context, batchSize int) ([]dto.Event, error) {
	return nil, nil
}

func (p *recordingPipeline) Process(ctx context.Context, task dto.Event) (entity.Outcome, error) {
	p.mu.Lock()
	p.processed = append(p.processed, task.EventID)
	p.mu.Unlock()

	select {
	case p.done <- struct{}{}:
	default:
	}

	return entity.OutcomeSuccess, nil
}

func (p *recordingPipeline) Replay(ctx context.Context, failedEventID uuid.UUID, resolvedBy string) (entity.Outcome, error) {
	return entity.OutcomeSuccess, nil
}

func (p *recordingPipeline) SweepUnarchived(ctx context.Context, limit int) error { return nil }

func (p *recordingPipeline) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.processed)
}

func TestPool_ProcessesSubmittedTasks(t *testing.T) {
	pl := &recordingPipeline{done: make(chan struct{}, 16)}
	pool := New(pl, nopLogger{}, time.Second, 2)

	require.NoError(t, pool.Start(context.Background()))

	const n = 8
	for i := 0; i < n; i++ {
		pool.Submit(dto.Event{EventID: uuid.New().String()})
	}

	deadline := time.After(2 * time.Second)
	for done := 0; done < n; {
		select {
		case <-pl.done:
			done++
		case <-deadline:
			t.Fatalf("processed %d of %d tasks", pl.count(), n)
		}
	}

	require.NoError(t, pool.Shutdown(context.Background()))
	assert.Equal(t, n, pl.count())
}

func TestPool_DoubleStart(t *testing.T) {
	pool := New(&recordingPipeline{done: make(chan struct{}, 1)}, nopLogger{}, time.Second, 1)

	require.NoError(t, pool.Start(context.Background()))
	require.Error(t, pool.Start(context.Background()))

	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestPool_SubmitBeforeStartDoesNotPanic(t *testing.T) {
	pool := New(&recordingPipeline{done: make(chan struct{}, 1)}, nopLogger{}, time.Second, 1)

	assert.NotPanics(t, func() {
		pool.Submit(dto.Event{EventID: "evt-1"})
	})
}
