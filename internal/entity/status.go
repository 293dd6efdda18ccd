package entity

// Status строки аутбокса глазами оператора: completed - забрана и
// отправлена, processed - агрегация подтверждена ledger-ом, failed -
// есть нерешенный dead-letter.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)
