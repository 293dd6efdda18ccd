package entity

// AggregateType - закрытый набор категорий сущностей CRM. Диспетчеризация
// обработчиков идет по нему исчерпывающим switch-ем; неизвестное значение
// не матчит ни один обработчик и попадает только в счетчики.
type AggregateType string

const (
	AggregateLeads      AggregateType = "leads"
	AggregateAccounts   AggregateType = "accounts"
	AggregateProjects   AggregateType = "projects"
	AggregateActivities AggregateType = "activities"
)

func (t AggregateType) Known() bool {
	switch t {
	case AggregateLeads, AggregateAccounts, AggregateProjects, AggregateActivities:
		return true
	}

	return false
}

func (t AggregateType) String() string {
	return string(t)
}
