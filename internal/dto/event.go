package dto

import (
	"encoding/json"
	"time"

	"github.com/andreyxaxa/Event-Analytics/internal/entity"
)

// Event - одновременно тело сообщения в очереди и задача на обработку:
// неизменяемый вход плюс счетчик попыток. Одно сообщение на строку аутбокса.
type Event struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
	RetryCount    int             `json:"retry_count"`
}

// PayloadMap разбирает payload в map; пустой payload - пустая map.
func (e Event) PayloadMap() (map[string]interface{}, error) {
	if len(e.Payload) == 0 {
		return map[string]interface{}{}, nil
	}

	var m map[string]interface{}
	if err := json.Unmarshal(e.Payload, &m); err != nil {
		return nil, err
	}

	return m, nil
}

func EventFromOutbox(ev *entity.OutboxEvent) Event {
	return Event{
		EventID:       ev.EventID,
		EventType:     ev.EventType,
		AggregateType: string(ev.AggregateType),
		AggregateID:   ev.AggregateID.String(),
		Payload:       json.RawMessage(ev.Payload),
		CreatedAt:     ev.CreatedAt,
		RetryCount:    ev.RetryCount,
	}
}
