package processor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andreyxaxa/Event-Analytics/internal/dto"
	"github.com/andreyxaxa/Event-Analytics/internal/entity"
	"github.com/andreyxaxa/Event-Analytics/internal/usecase"
	"github.com/andreyxaxa/Event-Analytics/pkg/logger"
)

// Pool крутит N воркеров над общим каналом задач. В него отдают события
// relay (режим без очереди) и retry-scheduler; обе стороны пишут через
// Submit.
type Pool struct {
	pipeline usecase.PipelineUseCase
	logger   logger.Interface

	processTimeout time.Duration

	workers int
	tasks   chan dto.Event
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	started atomic.Bool
}

func New(
	pipeline usecase.PipelineUseCase,
	l logger.Interface,
	processTimeout time.Duration,
	workers int,
) *Pool {
	return &Pool{
		pipeline:       pipeline,
		logger:         l,
		processTimeout: processTimeout,
		workers:        workers,
		tasks:          make(chan dto.Event, workers*2),
	}
}

func (p *Pool) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("Pool - Start - pool already started")
	}

	p.ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return nil
}

// Submit не блокирует отправителя дольше, чем живет контекст пула.
func (p *Pool) Submit(task dto.Event) {
	if !p.started.Load() {
		p.logger.Warn("processor pool not started, dropping event %s", task.EventID)

		return
	}

	select {
	case p.tasks <- task:
	case <-p.ctx.Done():
		p.logger.Warn("shutdown before processing of event %s", task.EventID)
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task := <-p.tasks:
			processCtx, processCancel := context.WithTimeout(p.ctx, p.processTimeout)
			outcome, err := p.pipeline.Process(processCtx, task)
			processCancel()
			if err != nil {
				p.logger.Error(err, "Pool - worker - p.pipeline.Process")

				continue
			}

			if outcome == entity.OutcomeDeadLettered {
				p.logger.Warn("event %s dead-lettered", task.EventID)
			}
		}
	}
}

func (p *Pool) Shutdown(ctx context.Context) error {
	if !p.started.Load() {
		return nil
	}

	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})

	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return nil
	}
}
