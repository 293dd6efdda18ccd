package relay

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andreyxaxa/Event-Analytics/internal/dto"
	"github.com/andreyxaxa/Event-Analytics/internal/usecase"
	"github.com/andreyxaxa/Event-Analytics/pkg/logger"
)

type OutboxRelay struct {
	pipeline usecase.PipelineUseCase
	submit   func(dto.Event) // nil, если события уходят в очередь
	logger   logger.Interface

	pollInterval         time.Duration
	archiveSweepInterval time.Duration
	pollBatchTimeout     time.Duration
	batchSize            int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started atomic.Bool
}

func New(
	pipeline usecase.PipelineUseCase,
	submit func(dto.Event),
	l logger.Interface,
	pollInterval time.Duration,
	archiveSweepInterval time.Duration,
	pollBatchTimeout time.Duration,
	batchSize int,
) *OutboxRelay {
	return &OutboxRelay{
		pipeline:             pipeline,
		submit:               submit,
		logger:               l,
		pollInterval:         pollInterval,
		archiveSweepInterval: archiveSweepInterval,
		pollBatchTimeout:     pollBatchTimeout,
		batchSize:            batchSize,
	}
}

func (r *OutboxRelay) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return fmt.Errorf("OutboxRelay - Start - worker already started")
	}

	r.ctx, r.cancel = context.WithCancel(ctx)

	// 1. воркер опроса аутбокса
	r.worker(r.pollInterval, func() {
		batchCtx, batchCancel := context.WithTimeout(r.ctx, r.pollBatchTimeout)
		r.pollBatch(batchCtx)
		batchCancel()
	})

	// 2. воркер дозаписи в архив
	r.worker(r.archiveSweepInterval, func() {
		err := r.pipeline.SweepUnarchived(r.ctx, r.batchSize)
		if err != nil {
			r.logger.Error(err, "OutboxRelay - Start - worker - r.pipeline.SweepUnarchived")
		}
	})

	return nil
}

func (r *OutboxRelay) pollBatch(ctx context.Context) {
	// 1. забираем пачку, публикуем, штампуем
	events, err := r.pipeline.Poll(ctx, r.batchSize)
	if err != nil {
		r.logger.Error(err, "OutboxRelay - pollBatch - r.pipeline.Poll")

		return
	}
	if len(events) == 0 {
		return
	}

	r.logger.Info("claimed %d outbox events", len(events))

	// 2. без очереди - отдаем напрямую в пул обработчиков
	if r.submit != nil {
		for _, event := range events {
			r.submit(event)
		}
	}
}

func (r *OutboxRelay) worker(interval time.Duration, task func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				task()
			}
		}
	}()
}

func (r *OutboxRelay) Shutdown(ctx context.Context) error {
	if !r.started.Load() {
		return nil
	}

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})

	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return nil
	}
}
