package response

import "encoding/json"

type Error struct {
	Error string `json:"error"`
}

type FunnelMetric struct {
	Date                string `json:"date"`
	NewLeads            int    `json:"new_leads"`
	ContactedLeads      int    `json:"contacted_leads"`
	QualifiedLeads      int    `json:"qualified_leads"`
	WonLeads            int    `json:"won_leads"`
	LostLeads           int    `json:"lost_leads"`
	TotalEstimatedValue string `json:"total_estimated_value"`
	WonValue            string `json:"won_value"`
	LostValue           string `json:"lost_value"`
	ConversionRate      string `json:"conversion_rate"`
}

type RevenueMetric struct {
	Month           string `json:"month"`
	AccountID       string `json:"account_id"`
	ContractedValue string `json:"contracted_value"`
	ProjectsCount   int    `json:"projects_count"`
}

type TestEvent struct {
	ID            string          `json:"id"`
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     string          `json:"created_at"`
}

type Replay struct {
	FailedEventID string `json:"failed_event_id"`
	Outcome       string `json:"outcome"`
}
