package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Interface interface {
	Debug(message interface{}, args ...interface{})
	Info(message string, args ...interface{})
	Warn(message string, args ...interface{})
	Error(message interface{}, args ...interface{})
	Fatal(message interface{}, args ...interface{})
}

// Logger оборачивает zap sugared logger в общий интерфейс проекта.
type Logger struct {
	logger *zap.SugaredLogger
}

var _ Interface = (*Logger)(nil)

func New(level string) *Logger {
	var l zapcore.Level

	switch strings.ToLower(level) {
	case "error":
		l = zapcore.ErrorLevel
	case "warn":
		l = zapcore.WarnLevel
	case "info":
		l = zapcore.InfoLevel
	case "debug":
		l = zapcore.DebugLevel
	default:
		l = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(l)
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		logger = zap.NewNop()
	}

	return &Logger{logger: logger.Sugar()}
}

func (l *Logger) Debug(message interface{}, args ...interface{}) {
	switch msg := message.(type) {
	case error:
		l.logger.Debugf(msg.Error(), args...)
	case string:
		l.logger.Debugf(msg, args...)
	default:
		l.logger.Debugf("message %v has unknown type %v", message, msg)
	}
}

func (l *Logger) Info(message string, args ...interface{}) {
	l.logger.Infof(message, args...)
}

func (l *Logger) Warn(message string, args ...interface{}) {
	l.logger.Warnf(message, args...)
}

func (l *Logger) Error(message interface{}, args ...interface{}) {
	if msg, ok := message.(error); ok && len(args) > 0 {
		if context, ok := args[0].(string); ok {
			l.logger.Errorf("%s: %s", context, msg.Error())
			return
		}
	}

	switch msg := message.(type) {
	case error:
		l.logger.Errorf(msg.Error(), args...)
	case string:
		l.logger.Errorf(msg, args...)
	default:
		l.logger.Errorf("message %v has unknown type %v", message, msg)
	}
}

func (l *Logger) Fatal(message interface{}, args ...interface{}) {
	switch msg := message.(type) {
	case error:
		l.logger.Fatalf(msg.Error(), args...)
	case string:
		l.logger.Fatalf(msg, args...)
	default:
		l.logger.Fatalf("message %v has unknown type %v", message, msg)
	}
}
