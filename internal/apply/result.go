package apply

import (
	"time"

	"github.com/amaret/converge/internal/plan"
)

// OperationResult is the execution outcome of one plan operation.
type OperationResult struct {
	Operation plan.Operation
	Success   bool

	// Result is the raw store return: the new id for creates, the
	// boolean acknowledgement for updates and deletes.
	Result any

	Err      error
	Duration time.Duration

	// ActualID is the real id a create produced (negative and synthetic
	// in dry runs). Zero for updates and deletes.
	ActualID int64
}

// Result is the outcome of one Apply run.
type Result struct {
	// RunToken is a time-sortable unique id for correlating the run's
	// log lines.
	RunToken string

	// Operations holds one entry per executed operation, in execution
	// order. Operations skipped by StopOnError are absent.
	Operations []OperationResult

	Total   int
	Applied int
	Failed  int
	Success bool

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	// IDMapping maps each create's placeholder token to the id it
	// produced.
	IDMapping map[string]int64

	// Errors collects every per-operation error, in order.
	Errors []error
}
