package schema

import (
	"encoding/json"
	"time"
)

// ExecutionStatus is the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// StepStatus is the outcome of a single step within an execution.
type StepStatus string

const (
	StepStatusSkipped   StepStatus = "skipped"
	StepStatusSucceeded StepStatus = "succeeded"
	StepStatusFailed    StepStatus = "failed"
)

// Execution is one run of a workflow triggered by an event.
type Execution struct {
	ID          string          `json:"id"`
	Workflow    string          `json:"workflow"`
	Event       string          `json:"event"`
	TriggerData map[string]any  `json:"trigger_data,omitempty"`
	Status      ExecutionStatus `json:"status"`
	Error       string          `json:"error,omitempty"`
	Steps       []StepResult    `json:"steps,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// StepResult records the outcome of one step. Results are append-only:
// once written they are never mutated, and retries of a step produce a
// single result carrying the final outcome.
type StepResult struct {
	Name        string          `json:"name"`
	Tool        string          `json:"tool"`
	Status      StepStatus      `json:"status"`
	Position    int             `json:"position"`
	Params      map[string]any  `json:"params,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
	Attempts    int             `json:"attempts,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
}

// ValidExecutionTransitions defines the allowed lifecycle transitions.
var ValidExecutionTransitions = map[ExecutionStatus][]ExecutionStatus{
	ExecutionStatusPending:   {ExecutionStatusRunning, ExecutionStatusFailed},
	ExecutionStatusRunning:   {ExecutionStatusCompleted, ExecutionStatusFailed},
	ExecutionStatusCompleted: {},
	ExecutionStatusFailed:    {},
}

// CanTransition reports whether from -> to is a legal execution transition.
func CanTransition(from, to ExecutionStatus) bool {
	for _, a := range ValidExecutionTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}
