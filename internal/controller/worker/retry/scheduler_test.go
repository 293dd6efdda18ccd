package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreyxaxa/Event-Analytics/internal/dto"
)

type nopLogger struct{}

func (nopLogger) Debug(message interface{}, args ...interface{}) {}
func (nopLogger) Info(message string, args ...interface{})       {}
func (nopLogger) Warn(message string, args ...interface{})       {}
func (nopLogger) Error(message interface{}, args ...interface{}) {}
func (nopLogger) Fatal(message interface{}, args ...interface{}) {}

func TestScheduler_DeliversAfterDelay(t *testing.T) {
	delivered := make(chan dto.Event, 1)

	s := New(nopLogger{})
	s.Bind(func(task dto.Event) { delivered <- task })
	require.NoError(t, s.Start(context.Background()))

	s.Schedule(dto.Event{EventID: "evt-1", RetryCount: 1}, 10*time.Millisecond)

	select {
	case task := <-delivered:
		assert.Equal(t, "evt-1", task.EventID)
		assert.Equal(t, 1, task.RetryCount)
	case <-time.After(2 * time.Second):
		t.Fatal("task was not delivered")
	}

	require.NoError(t, s.Shutdown(context.Background()))
}

func TestScheduler_ShutdownCancelsPending(t *testing.T) {
	delivered := make(chan dto.Event, 1)

	s := New(nopLogger{})
	s.Bind(func(task dto.Event) { delivered <- task })
	require.NoError(t, s.Start(context.Background()))

	s.Schedule(dto.Event{EventID: "evt-2"}, time.Hour)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(shutdownCtx))

	select {
	case <-delivered:
		t.Fatal("pending task must not be delivered after shutdown")
	default:
	}
}

func TestScheduler_StartRequiresBind(t *testing.T) {
	s := New(nopLogger{})

	err := s.Start(context.Background())
	require.Error(t, err)
}

func TestScheduler_DoubleStart(t *testing.T) {
	s := New(nopLogger{})
	s.Bind(func(dto.Event) {})

	require.NoError(t, s.Start(context.Background()))
	require.Error(t, s.Start(context.Background()))

	require.NoError(t, s.Shutdown(context.Background()))
}
