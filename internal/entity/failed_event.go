package entity

import (
	"time"

	"github.com/google/uuid"
)

// FailedEvent - строка dead-letter. Replay проставляет ResolvedAt/ResolvedBy,
// но строку не удаляет: это аудит исходного сбоя.
type FailedEvent struct {
	ID            uuid.UUID     `json:"id"`
	EventID       string        `json:"event_id"`
	EventType     string        `json:"event_type"`
	AggregateType AggregateType `json:"aggregate_type"`
	AggregateID   uuid.UUID     `json:"aggregate_id"`
	Payload       []byte        `json:"payload"`
	ErrorMessage  string        `json:"error_message"`
	ErrorTrace    *string       `json:"error_trace,omitempty"`
	RetryCount    int           `json:"retry_count"`
	FirstFailedAt time.Time     `json:"first_failed_at"`
	LastFailedAt  time.Time     `json:"last_failed_at"`
	ResolvedAt    *time.Time    `json:"resolved_at,omitempty"`
	ResolvedBy    *string       `json:"resolved_by,omitempty"`
}
