package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Агрегатные таблицы. Ключи натуральные, значения меняются только
// аддитивно; пишут сюда только обработчики агрегаций.

type EventCount struct {
	Date          time.Time     `json:"date"`
	EventType     string        `json:"event_type"`
	AggregateType AggregateType `json:"aggregate_type"`
	Count         int           `json:"count"`
}

type LeadFunnelMetric struct {
	Date                time.Time       `json:"date"`
	NewLeads            int             `json:"new_leads"`
	ContactedLeads      int             `json:"contacted_leads"`
	QualifiedLeads      int             `json:"qualified_leads"`
	WonLeads            int             `json:"won_leads"`
	LostLeads           int             `json:"lost_leads"`
	TotalEstimatedValue decimal.Decimal `json:"total_estimated_value"`
	WonValue            decimal.Decimal `json:"won_value"`
	LostValue           decimal.Decimal `json:"lost_value"`
}

// LeadFunnelDelta - вклад одного события в дневную строку воронки,
// применяется одним аддитивным upsert-ом.
type LeadFunnelDelta struct {
	NewLeads            int
	ContactedLeads      int
	QualifiedLeads      int
	WonLeads            int
	LostLeads           int
	TotalEstimatedValue decimal.Decimal
	WonValue            decimal.Decimal
	LostValue           decimal.Decimal
}

func (d LeadFunnelDelta) IsZero() bool {
	return d.NewLeads == 0 && d.ContactedLeads == 0 && d.QualifiedLeads == 0 &&
		d.WonLeads == 0 && d.LostLeads == 0 &&
		d.TotalEstimatedValue.IsZero() && d.WonValue.IsZero() && d.LostValue.IsZero()
}

type RevenueMetric struct {
	Month           time.Time       `json:"month"` // first day of month
	AccountID       uuid.UUID       `json:"account_id"`
	ContractedValue decimal.Decimal `json:"contracted_value"`
	ProjectsCount   int             `json:"projects_count"`
}

// DailyAccountMetric есть в схеме и в read API, но обработчик accounts
// пока no-op и таблицу не наполняет.
type DailyAccountMetric struct {
	Date               time.Time       `json:"date"`
	AccountID          uuid.UUID       `json:"account_id"`
	AccountName        string          `json:"account_name"`
	TotalActivities    int             `json:"total_activities"`
	CallsCount         int             `json:"calls_count"`
	EmailsCount        int             `json:"emails_count"`
	MeetingsCount      int             `json:"meetings_count"`
	ActiveProjects     int             `json:"active_projects"`
	TotalContractValue decimal.Decimal `json:"total_contract_value"`
}
