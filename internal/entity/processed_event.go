package entity

import (
	"time"

	"github.com/google/uuid"
)

// ProcessedEvent - строка ledger-а идемпотентности. Само наличие строки
// и есть свидетельство, что event_id обработан. ArchivedAt - watermark
// архива: NULL, пока сырое событие не легло в объектное хранилище.
type ProcessedEvent struct {
	EventID       string        `json:"event_id"`
	EventType     string        `json:"event_type"`
	AggregateType AggregateType `json:"aggregate_type"`
	AggregateID   uuid.UUID     `json:"aggregate_id"`
	ProcessedAt   time.Time     `json:"processed_at"`
	ArchivedAt    *time.Time    `json:"archived_at,omitempty"`
}
