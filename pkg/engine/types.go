// Package engine is the concurrent task processing core: task and result
// queues, the worker retry loop, and the orchestrator that wires workers
// to the progress store and batch writer.
package engine

import (
	"time"

	"github.com/hvborda/lineas/pkg/extract"
	"github.com/hvborda/lineas/pkg/progress"
)

// Status is the terminal outcome of a task.
type Status string

// Task status constants.
const (
	// StatusSuccess indicates the extraction completed and returned rows
	StatusSuccess Status = "success"
	// StatusFailed indicates every retry attempt was exhausted
	StatusFailed Status = "failed"
)

// Task is one unit of work: a single id to extract. A Task is owned by
// the task queue until a worker claims it.
type Task struct {
	// ID is the 11-digit RUC to look up
	ID string
	// Attempt is the attempt counter, set by the worker retry loop
	Attempt int
}

// Result is the terminal outcome of one task. Exactly one Result is
// produced per dequeued task and consumed exactly once by the result
// consumer. ErrorKind and ErrorMessage are meaningful only when Status is
// StatusFailed; Lines only when StatusSuccess.
type Result struct {
	// RUC is the queried id
	RUC string
	// Status is the terminal outcome
	Status Status
	// Lines are the extracted records, order preserved
	Lines []extract.Record
	// ErrorKind classifies the final failure
	ErrorKind extract.ErrorKind
	// ErrorMessage is the final failure message
	ErrorMessage string
	// Attempts is how many extraction invocations were actually made
	Attempts int
	// Duration is wall time spent on the task including retries
	Duration time.Duration
	// Timestamp is when the result was finalized
	Timestamp time.Time
}

// Success reports whether the task succeeded.
func (r Result) Success() bool {
	return r.Status == StatusSuccess
}

// Outcome converts the result into the progress store's input shape.
func (r Result) Outcome() progress.Outcome {
	return progress.Outcome{
		RUC:          r.RUC,
		Success:      r.Success(),
		LineCount:    len(r.Lines),
		ErrorKind:    string(r.ErrorKind),
		ErrorMessage: r.ErrorMessage,
		Attempts:     r.Attempts,
	}
}
