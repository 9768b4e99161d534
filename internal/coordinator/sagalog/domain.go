// Package sagalog defines the domain types for the Saga Log pattern.
//
// A Saga Log is a durable audit trail of every state transition a trade saga
// goes through. It serves two purposes:
//
//  1. Observability: you can query the DB to see exactly where a saga is (or
//     was) and correlate it with a distributed trace via the trace_id field.
//
//  2. Forensics: when a compensation fails critically (money moved that
//     could not be refunded automatically), the log row is the record an
//     operator works from to repair the inconsistency by hand.
package sagalog

import "time"

// Status represents the lifecycle state of a saga execution.
type Status string

const (
	StatusStarted      Status = "STARTED"
	StatusStepDone     Status = "STEP_DONE"
	StatusCompleted    Status = "COMPLETED"
	StatusFailed       Status = "FAILED"
	StatusCompensating Status = "COMPENSATING"
	// StatusCompensated means every compensating call succeeded: balance and
	// holdings are back to their pre-saga values.
	StatusCompensated Status = "COMPENSATED"
	// StatusCompensatedCritical means at least one compensating call failed
	// and a real inconsistency remains; no automatic recovery exists.
	StatusCompensatedCritical Status = "COMPENSATED_CRITICAL"
)

// Entry is a single row in the saga_logs table, a point-in-time snapshot of
// a trade saga execution.
type Entry struct {
	// SagaID is the unique identifier for this saga execution, generated
	// when the buy/sell request enters the gateway.
	SagaID string

	// Status is the current lifecycle state.
	Status Status

	// CurrentStep is the name of the step that was just executed or failed.
	CurrentStep string

	// Payload is the JSON-serialised trade request that started the saga.
	// Stored once at creation so the saga can be replayed from the log.
	Payload string

	// ErrorMessages accumulates failure details, one per failed step or
	// failed compensation, stored as a JSON array.
	ErrorMessages string

	// TraceID is the W3C trace ID extracted from the OpenTelemetry span that
	// was active when this log entry was written, so a saga row can be
	// joined directly with the full distributed trace.
	TraceID string

	// SpanID pinpoints the exact span within the trace.
	SpanID string

	// UpdatedAt is the wall-clock time of this log entry.
	UpdatedAt time.Time
}
