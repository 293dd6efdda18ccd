package retry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andreyxaxa/Event-Analytics/internal/dto"
	"github.com/andreyxaxa/Event-Analytics/pkg/logger"
)

// Scheduler откладывает повторную обработку события на заданный интервал.
// Таймер не блокирует воркеров: каждая отложенная задача висит в своей
// горутине и по истечении интервала уходит обратно в пул обработчиков.
type Scheduler struct {
	submit func(dto.Event)
	logger logger.Interface

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started atomic.Bool
}

func New(l logger.Interface) *Scheduler {
	return &Scheduler{logger: l}
}

// Bind задает приемник задач. Вызывается один раз при сборке приложения,
// до Start; разрывает цикл зависимостей scheduler -> pool -> pipeline.
func (s *Scheduler) Bind(submit func(dto.Event)) {
	s.submit = submit
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.submit == nil {
		return fmt.Errorf("Scheduler - Start - no task sink bound")
	}
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("Scheduler - Start - scheduler already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	return nil
}

func (s *Scheduler) Schedule(task dto.Event, delay time.Duration) {
	if !s.started.Load() {
		s.logger.Warn("retry scheduler not started, dropping event %s", task.EventID)

		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			// при остановке отложенные ретраи теряются; исходная
			// запись остается в аутбоксе, восстановление - вручную
			s.logger.Warn("shutdown before retry of event %s", task.EventID)
		case <-timer.C:
			s.submit(task)
		}
	}()
}

func (s *Scheduler) Shutdown(ctx context.Context) error {
	if !s.started.Load() {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return nil
	}
}
