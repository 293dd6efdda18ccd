package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config загружается один раз при старте процесса и дальше не меняется;
// компоненты получают свои куски через конструкторы.
type (
	Config struct {
		HTTP            HTTP
		Log             Log
		PG              PG
		S3              S3
		Poller          Poller
		Processor       Processor
		Kafka           Kafka
		KafkaController KafkaController
		Swagger         Swagger
	}

	HTTP struct {
		Port           string `env:"HTTP_PORT,required"`
		UsePreforkMode bool   `env:"HTTP_USE_PREFORK_MODE" envDefault:"false"`
	}

	Log struct {
		Level string `env:"LOG_LEVEL,required"`
	}

	PG struct {
		PoolMax int    `env:"PG_POOL_MAX,required"`
		URL     string `env:"PG_URL,required"`
	}

	// S3 опционален: пустой bucket выключает архивирование
	S3 struct {
		Endpoint       string        `env:"S3_ENDPOINT"`
		AccessKey      string        `env:"S3_ACCESS_KEY"`
		SecretKey      string        `env:"S3_SECRET_KEY"`
		Bucket         string        `env:"S3_BUCKET"`
		CfgLoadTimeout time.Duration `env:"S3_LOAD_CFG_TIMEOUT" envDefault:"10s"`
	}

	// Kafka опциональна: без брокеров события идут напрямую в пул
	// обработчиков, минуя очередь
	Kafka struct {
		Brokers []string `env:"KAFKA_BROKERS"`
		GroupID string   `env:"KAFKA_GROUP_ID" envDefault:"event-analytics"`
		Topic   string   `env:"KAFKA_TOPIC" envDefault:"crm-events"`
	}

	Poller struct {
		PollInterval         time.Duration `env:"POLLER_POLL_INTERVAL" envDefault:"30s"`
		ArchiveSweepInterval time.Duration `env:"POLLER_ARCHIVE_SWEEP_INTERVAL" envDefault:"10m"`
		PollBatchTimeout     time.Duration `env:"POLLER_POLL_BATCH_TIMEOUT" envDefault:"15s"`
		ShutdownTimeout      time.Duration `env:"POLLER_SHUTDOWN_TIMEOUT" envDefault:"5s"`
		BatchSize            int           `env:"POLLER_BATCH_SIZE" envDefault:"100"`
	}

	Processor struct {
		MaxRetries      int             `env:"PROCESSOR_MAX_RETRIES" envDefault:"3"`
		RetryBackoff    []time.Duration `env:"PROCESSOR_RETRY_BACKOFF" envDefault:"60s,300s,900s" envSeparator:","`
		ProcessTimeout  time.Duration   `env:"PROCESSOR_PROCESS_TIMEOUT" envDefault:"15s"`
		Workers         int             `env:"PROCESSOR_WORKERS" envDefault:"4"`
		ShutdownTimeout time.Duration   `env:"PROCESSOR_SHUTDOWN_TIMEOUT" envDefault:"5s"`
	}

	KafkaController struct {
		CommitTimeout   time.Duration `env:"KAFKA_CONTROLLER_COMMIT_TIMEOUT" envDefault:"2s"`
		ProcessTimeout  time.Duration `env:"KAFKA_CONTROLLER_PROCESS_TIMEOUT" envDefault:"15s"`
		Workers         int           `env:"KAFKA_CONTROLLER_WORKERS" envDefault:"4"`
		ShutdownTimeout time.Duration `env:"KAFKA_CONTROLLER_SHUTDOWN_TIMEOUT" envDefault:"5s"`
	}

	Swagger struct {
		Enabled bool `env:"SWAGGER_ENABLED" envDefault:"false"`
	}
)

func New() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	return cfg, nil
}
