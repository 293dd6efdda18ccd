package entity

import (
	"time"

	"github.com/google/uuid"
)

type OutboxEvent struct {
	ID            uuid.UUID     `json:"id"`
	EventID       string        `json:"event_id"`
	EventType     string        `json:"event_type"`
	AggregateType AggregateType `json:"aggregate_type"`
	AggregateID   uuid.UUID     `json:"aggregate_id"`
	Payload       []byte        `json:"payload"`
	CreatedAt     time.Time     `json:"created_at"`
	ProcessedAt   *time.Time    `json:"processed_at,omitempty"`
	PublishedAt   *time.Time    `json:"published_at,omitempty"`
	RetryCount    int           `json:"retry_count"`
	LastError     *string       `json:"last_error,omitempty"`
}

// OutboxEventStatus - строка аутбокса плюс статус, выведенный из ledger-а
// и dead-letter таблицы.
type OutboxEventStatus struct {
	OutboxEvent
	Status Status `json:"status"`
}
