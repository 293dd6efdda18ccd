package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/andreyxaxa/Event-Analytics/internal/dto"
	kafkapc "github.com/andreyxaxa/Event-Analytics/internal/infrastructure/kafka"
	"github.com/andreyxaxa/Event-Analytics/internal/usecase"
	"github.com/andreyxaxa/Event-Analytics/pkg/logger"
)

type KafkaController struct {
	pipeline usecase.PipelineUseCase
	ec       *kafkapc.EventConsumer
	logger   logger.Interface

	commitTimeout  time.Duration
	processTimeout time.Duration

	workers int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	started atomic.Bool
}

func New(
	pipeline usecase.PipelineUseCase,
	ec *kafkapc.EventConsumer,
	l logger.Interface,
	commitTimeout time.Duration,
	processTimeout time.Duration,
	workers int,
) *KafkaController {
	return &KafkaController{
		pipeline:       pipeline,
		ec:             ec,
		logger:         l,
		commitTimeout:  commitTimeout,
		processTimeout: processTimeout,
		workers:        workers,
	}
}

func (c *KafkaController) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return fmt.Errorf("KafkaController - Start - controller already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)

	// канал для задач
	tasks := make(chan kafka.Message, c.workers*2)

	// запускаем воркеры
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(tasks)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(tasks)

		for {
			select {
			case <-c.ctx.Done():
				return
			default:
				// 1. читаем из кафки
				message, err := c.ec.ReadEvent(c.ctx)
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						c.logger.Error(err, "KafkaController - Start - c.ec.ReadEvent")
					}
					continue
				}

				// 2. отправляем в канал для воркеров
				select {
				case tasks <- message:
				case <-c.ctx.Done():
					return
				}
			}
		}
	}()

	return nil
}

func (c *KafkaController) processEvent(ctx context.Context, message kafka.Message) error {
	var task dto.Event
	err := json.Unmarshal(message.Value, &task)
	if err != nil {
		return fmt.Errorf("KafkaController - processEvent - json.Unmarshal: %w", err)
	}

	// любой исход (success, skipped, retry_scheduled, dead_lettered) -
	// событие принято пайплайном; ошибка - только инфраструктурная,
	// тогда offset не коммитим и сообщение будет перечитано
	outcome, err := c.pipeline.Process(ctx, task)
	if err != nil {
		return fmt.Errorf("KafkaController - processEvent - c.pipeline.Process: %w", err)
	}

	c.logger.Debug("event %s consumed: %s", task.EventID, outcome)

	return nil
}

func (c *KafkaController) worker(tasks <-chan kafka.Message) {
	defer c.wg.Done()

	// читаем канал, пока не закроется
	for message := range tasks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error(fmt.Errorf("panic %v", r), "KafkaController - worker - panic")
				}
			}()

			// выполняем обработку
			processCtx, processCancel := context.WithTimeout(c.ctx, c.processTimeout)
			err := c.processEvent(processCtx, message)
			processCancel()
			if err != nil {
				c.logger.Error(err, "KafkaController - worker - c.processEvent")

				return
			}

			// коммитим после успешной обработки
			commitCtx, commitCancel := context.WithTimeout(c.ctx, c.commitTimeout)
			err = c.ec.CommitEvent(commitCtx, message)
			commitCancel()
			if err != nil {
				c.logger.Error(err, "KafkaController - worker - c.ec.CommitEvent")
			}
		}()
	}
}

func (c *KafkaController) Shutdown(ctx context.Context) error {
	if !c.started.Load() {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})

	go func() {
		c.wg.Wait()
		c.ec.Close()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return nil
	}
}
