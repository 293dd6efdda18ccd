package entity

// Outcome - исход одного вызова Process. success и dead_lettered -
// терминальные; retry_scheduled значит, что повтор уже запланирован.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeSkippedDuplicate Outcome = "skipped_duplicate"
	OutcomeRetryScheduled   Outcome = "retry_scheduled"
	OutcomeDeadLettered     Outcome = "dead_lettered"
)
