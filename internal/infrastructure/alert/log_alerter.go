package alert

import (
	"github.com/andreyxaxa/Event-Analytics/pkg/logger"
)

// LogAlerter сообщает о постоянных сбоях через структурный лог.
// Транспорт по умолчанию; что-то тяжелее (почта, чат, пейджинг)
// реализует тот же интерфейс.
type LogAlerter struct {
	logger logger.Interface
}

func NewLogAlerter(l logger.Interface) *LogAlerter {
	return &LogAlerter{logger: l}
}

func (a *LogAlerter) Alert(eventID, eventType, errorMessage string) {
	a.logger.Error("ALERT: event processing failed permanently: event_id=%s event_type=%s error=%s",
		eventID, eventType, errorMessage)
}
