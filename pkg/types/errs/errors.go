package errs

import "errors"

var (
	ErrRecordNotFound   = errors.New("record not found")
	ErrAlreadyProcessed = errors.New("event already processed")
)
