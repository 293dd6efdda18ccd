package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/andreyxaxa/Event-Analytics/config"
	"github.com/andreyxaxa/Event-Analytics/internal/repo/persistent"
	"github.com/andreyxaxa/Event-Analytics/internal/usecase/analytics"
	"github.com/andreyxaxa/Event-Analytics/pkg/logger"
	"github.com/andreyxaxa/Event-Analytics/pkg/postgres"
)

// Пересчитывает event_counts по содержимому event_outbox. Запускается
// руками, безопасен в любой момент.
func main() {
	// Config
	if _, err := os.Stat(".env"); err == nil {
		err = godotenv.Load()
		if err != nil {
			log.Fatalf("config error: %s", err)
		}
	}

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Config error: %s", err)
	}

	l := logger.New(cfg.Log.Level)

	pg, err := postgres.New(cfg.PG.URL, postgres.MaxPoolSize(cfg.PG.PoolMax))
	if err != nil {
		l.Fatal(err)
	}
	defer pg.Close()

	an := analytics.New(
		persistent.NewEventOutboxRepo(pg),
		persistent.NewProcessedEventRepo(pg),
		persistent.NewFailedEventRepo(pg),
		persistent.NewMetricsRepo(pg),
		l,
	)

	report, err := an.BackfillEventCounts(context.Background())
	if err != nil {
		l.Fatal(err)
	}

	if !report.Match {
		l.Warn("backfill mismatch: %d tracked vs %d in outbox", report.EventsTracked, report.EventsInbox)
		os.Exit(1)
	}
}
