package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andreyxaxa/Event-Analytics/config"
	kafkactrl "github.com/andreyxaxa/Event-Analytics/internal/controller/kafka"
	"github.com/andreyxaxa/Event-Analytics/internal/controller/restapi"
	"github.com/andreyxaxa/Event-Analytics/internal/controller/worker/processor"
	"github.com/andreyxaxa/Event-Analytics/internal/controller/worker/relay"
	"github.com/andreyxaxa/Event-Analytics/internal/controller/worker/retry"
	"github.com/andreyxaxa/Event-Analytics/internal/dto"
	"github.com/andreyxaxa/Event-Analytics/internal/infrastructure"
	"github.com/andreyxaxa/Event-Analytics/internal/infrastructure/alert"
	infrakafka "github.com/andreyxaxa/Event-Analytics/internal/infrastructure/kafka"
	"github.com/andreyxaxa/Event-Analytics/internal/repo"
	"github.com/andreyxaxa/Event-Analytics/internal/repo/persistent"
	"github.com/andreyxaxa/Event-Analytics/internal/usecase/analytics"
	"github.com/andreyxaxa/Event-Analytics/internal/usecase/pipeline"
	"github.com/andreyxaxa/Event-Analytics/pkg/httpserver"
	"github.com/andreyxaxa/Event-Analytics/pkg/kafka/consumer"
	"github.com/andreyxaxa/Event-Analytics/pkg/kafka/producer"
	"github.com/andreyxaxa/Event-Analytics/pkg/logger"
	"github.com/andreyxaxa/Event-Analytics/pkg/postgres"
	"github.com/andreyxaxa/Event-Analytics/pkg/s3client"
)

func Run(cfg *config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Logger
	l := logger.New(cfg.Log.Level)

	// Repository

	// postgres
	pg, err := postgres.New(cfg.PG.URL, postgres.MaxPoolSize(cfg.PG.PoolMax))
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - postgres.New: %w", err))
	}
	defer pg.Close()

	outboxRepo := persistent.NewEventOutboxRepo(pg)
	processedRepo := persistent.NewProcessedEventRepo(pg)
	failedRepo := persistent.NewFailedEventRepo(pg)
	metricsRepo := persistent.NewMetricsRepo(pg)

	// s3 (опционально - без bucket архив выключен)
	var archiveRepo repo.ArchiveRepo
	if cfg.S3.Bucket != "" {
		s3Ctx, s3Cancel := context.WithTimeout(ctx, cfg.S3.CfgLoadTimeout)
		defer s3Cancel()
		s3c, err := s3client.New(s3Ctx, cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey)
		if err != nil {
			l.Fatal(fmt.Errorf("app - Run - s3client.New: %w", err))
		}
		archiveRepo = persistent.NewEventArchiveRepo(s3c, cfg.S3.Bucket)
	}

	// Kafka Producer (опционально - без брокеров события идут напрямую
	// в пул обработчиков)
	var eventPublisher infrastructure.EventPublisher
	useQueue := len(cfg.Kafka.Brokers) > 0
	if useQueue {
		kafkaProducer, err := producer.New(ctx, cfg.Kafka.Brokers)
		if err != nil {
			l.Fatal(fmt.Errorf("app - Run - producer.New: %w", err))
		}
		eventPublisher = infrakafka.NewEventProducer(kafkaProducer, cfg.Kafka.Topic)
	}

	// Use-Case

	// retry scheduler (сток задач привяжем ниже)
	retryScheduler := retry.New(l)

	// pipeline use-case
	pipelineUseCase := pipeline.New(
		outboxRepo,
		processedRepo,
		failedRepo,
		metricsRepo,
		archiveRepo,
		pg,
		eventPublisher,
		retryScheduler,
		alert.NewLogAlerter(l),
		l,
		cfg.Processor.MaxRetries,
		cfg.Processor.RetryBackoff,
	)

	// analytics use-case
	analyticsUseCase := analytics.New(outboxRepo, processedRepo, failedRepo, metricsRepo, l)

	// Processor Pool
	processorPool := processor.New(pipelineUseCase, l, cfg.Processor.ProcessTimeout, cfg.Processor.Workers)
	retryScheduler.Bind(processorPool.Submit)

	// Outbox Relay Worker
	var submit func(dto.Event)
	if !useQueue {
		submit = processorPool.Submit
	}
	relayWorker := relay.New(
		pipelineUseCase,
		submit,
		l,
		cfg.Poller.PollInterval,
		cfg.Poller.ArchiveSweepInterval,
		cfg.Poller.PollBatchTimeout,
		cfg.Poller.BatchSize,
	)

	// Kafka as Controller (только в режиме с очередью)
	var kafkaController *kafkactrl.KafkaController
	if useQueue {
		kafkaConsumer, err := consumer.New(ctx, cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.Topic)
		if err != nil {
			l.Fatal(fmt.Errorf("app - Run - consumer.New: %w", err))
		}
		kafkaController = kafkactrl.New(
			pipelineUseCase,
			infrakafka.NewEventConsumer(kafkaConsumer),
			l,
			cfg.KafkaController.CommitTimeout,
			cfg.KafkaController.ProcessTimeout,
			cfg.KafkaController.Workers,
		)
	}

	// HTTP Server
	httpServer := httpserver.New(l, httpserver.Port(cfg.HTTP.Port), httpserver.Prefork(cfg.HTTP.UsePreforkMode))
	restapi.NewRouter(httpServer.App, cfg, analyticsUseCase, pipelineUseCase, l)

	// Start Components
	err = processorPool.Start(ctx)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - processorPool.Start: %w", err))
	}
	err = retryScheduler.Start(ctx)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - retryScheduler.Start: %w", err))
	}
	err = relayWorker.Start(ctx)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - relayWorker.Start: %w", err))
	}
	if kafkaController != nil {
		err = kafkaController.Start(ctx)
		if err != nil {
			l.Fatal(fmt.Errorf("app - Run - kafkaController.Start: %w", err))
		}
	}
	httpServer.Start()

	// Waiting Signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-interrupt:
		l.Info("app - Run - signal: %s", s.String())
	case err = <-httpServer.Notify():
		l.Error(fmt.Errorf("app - Run - httpServer.Notify: %w", err))
	}

	// Shutdown
	err = httpServer.Shutdown()
	if err != nil {
		l.Error(fmt.Errorf("app - Run - httpServer.Shutdown: %w", err))
	}

	// порядок: сначала источники задач, затем scheduler, затем пул
	rwShutdownCtx, rwShutdownCancel := context.WithTimeout(ctx, cfg.Poller.ShutdownTimeout)
	defer rwShutdownCancel()
	err = relayWorker.Shutdown(rwShutdownCtx)
	if err != nil {
		l.Error(fmt.Errorf("app - Run - relayWorker.Shutdown: %w", err))
	}

	if kafkaController != nil {
		kcShutdownCtx, kcShutdownCancel := context.WithTimeout(ctx, cfg.KafkaController.ShutdownTimeout)
		defer kcShutdownCancel()
		err = kafkaController.Shutdown(kcShutdownCtx)
		if err != nil {
			l.Error(fmt.Errorf("app - Run - kafkaController.Shutdown: %w", err))
		}
	}

	if eventPublisher != nil {
		eventPublisher.Close()
	}

	rsShutdownCtx, rsShutdownCancel := context.WithTimeout(ctx, cfg.Processor.ShutdownTimeout)
	defer rsShutdownCancel()
	err = retryScheduler.Shutdown(rsShutdownCtx)
	if err != nil {
		l.Error(fmt.Errorf("app - Run - retryScheduler.Shutdown: %w", err))
	}

	ppShutdownCtx, ppShutdownCancel := context.WithTimeout(ctx, cfg.Processor.ShutdownTimeout)
	defer ppShutdownCancel()
	err = processorPool.Shutdown(ppShutdownCtx)
	if err != nil {
		l.Error(fmt.Errorf("app - Run - processorPool.Shutdown: %w", err))
	}
}
