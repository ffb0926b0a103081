package queue

import (
	"context"
	"encoding/json"
)

// Outcome is the result category a processor reports for one item.
type Outcome string

// Processing outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkip    Outcome = "skip"
	OutcomeFailure Outcome = "failure"
)

// Result is what a processor reports after handling a payload.
type Result struct {
	Outcome Outcome
	// Detail carries the skip reason or failure message. Empty on success.
	Detail string
}

// Success reports that the side effect was performed.
func Success() Result {
	return Result{Outcome: OutcomeSuccess}
}

// Skip reports that the work is legitimately not applicable, e.g. the
// recipient has no contact channel. Skipped items are never retried.
func Skip(reason string) Result {
	return Result{Outcome: OutcomeSkip, Detail: reason}
}

// Failure reports that the side effect could not be performed.
func Failure(err error) Result {
	return Result{Outcome: OutcomeFailure, Detail: err.Error()}
}

// Processor performs the work-type-specific side effect for one payload.
// Implementations are supplied by the caller and registered with the
// dispatcher; the payload stays opaque to the engine.
type Processor interface {
	// WorkType returns the work type this processor handles.
	WorkType() string

	// Process performs the side effect and reports the outcome.
	Process(ctx context.Context, payload json.RawMessage) Result
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc struct {
	Type string
	Fn   func(ctx context.Context, payload json.RawMessage) Result
}

// WorkType returns the work type this processor handles.
func (p ProcessorFunc) WorkType() string { return p.Type }

// Process calls the wrapped function.
func (p ProcessorFunc) Process(ctx context.Context, payload json.RawMessage) Result {
	return p.Fn(ctx, payload)
}
