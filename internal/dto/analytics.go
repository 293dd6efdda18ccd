package dto

import (
	"time"

	"github.com/andreyxaxa/Event-Analytics/internal/entity"
)

// EventTrace - путь одного event_id через весь пайплайн.
type EventTrace struct {
	EventID   string                 `json:"event_id"`
	Outbox    *entity.OutboxEvent    `json:"outbox"`
	Processed *entity.ProcessedEvent `json:"processed"`
	Failed    *entity.FailedEvent    `json:"failed"`
	Analytics []entity.EventCount    `json:"analytics"`
}

type TypeTotal struct {
	EventType string `json:"event_type"`
	Total     int    `json:"total"`
}

type DailyTotal struct {
	Date  time.Time `json:"date"`
	Total int       `json:"total"`
}

type Summary struct {
	Totals     SummaryTotals `json:"totals"`
	ByType     []TypeTotal   `json:"by_type"`
	DailyTrend []DailyTotal  `json:"daily_trend"`
	Health     SummaryHealth `json:"health"`
}

type SummaryTotals struct {
	AllTime   int   `json:"all_time"`
	Today     int   `json:"today"`
	Pending   int64 `json:"pending"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

type SummaryHealth struct {
	SuccessRate float64 `json:"success_rate"`
	Processing  int64   `json:"processing"`
	Failed      int64   `json:"failed"`
}

// TestEvent - синтетическая запись в аутбокс через консоль разработчика.
type TestEvent struct {
	EventType      string `json:"event_type"`
	AggregateType  string `json:"aggregate_type"`
	CompanyName    string `json:"company_name"`
	LeadStatus     string `json:"lead_status"`
	EstimatedValue string `json:"estimated_value"`
}

type BackfillReport struct {
	Combinations  int  `json:"combinations"`
	EventsTracked int  `json:"events_tracked"`
	EventsInbox   int  `json:"events_in_outbox"`
	Match         bool `json:"match"`
}
