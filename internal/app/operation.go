package app

import (
	"time"
)

// Operation statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation tracks one CLI command for the log. Its ID tags every log line
// written while the command runs.
type Operation struct {
	ID        string
	Name      string
	StartedAt time.Time
	Status    string
	Err       error
}

// NewOperation starts an operation named name at now. The ID is the UTC
// start time, which keeps log lines of one run together and sortable.
func NewOperation(name string, now time.Time) *Operation {
	return &Operation{
		ID:        now.UTC().Format("20060102T150405Z"),
		Name:      name,
		StartedAt: now,
		Status:    StatusSuccess,
	}
}

// Fail marks the operation as failed. A nil err is ignored.
func (op *Operation) Fail(err error) {
	if err == nil {
		return
	}
	op.Status = StatusError
	op.Err = err
}

// Failed reports whether Fail was called with an error.
func (op *Operation) Failed() bool {
	return op.Status == StatusError
}

// Duration returns the time elapsed since the start, truncated to milliseconds.
func (op *Operation) Duration(now time.Time) time.Duration {
	return now.Sub(op.StartedAt).Truncate(time.Millisecond)
}
