package ledger

import (
	"context"
	"time"

	"github.com/flowmatic/flowmatic/pkg/schema"
)

// Ledger is the durable record of workflow executions. Step results are
// append-only: AppendStepResult never overwrites an existing position, and
// past results are never mutated by later writes.
type Ledger interface {
	CreateExecution(ctx context.Context, exec *schema.Execution) error
	UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error
	AppendStepResult(ctx context.Context, executionID string, result *schema.StepResult) error
	GetExecution(ctx context.Context, id string) (*schema.Execution, error)
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*schema.Execution, error)
	Close() error
}

// ExecutionUpdate describes a partial update to an execution record.
// Nil fields are left untouched.
type ExecutionUpdate struct {
	Status      *schema.ExecutionStatus
	Error       *string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// ExecutionFilter narrows ListExecutions results.
type ExecutionFilter struct {
	Workflow string
	Status   *schema.ExecutionStatus
	Since    *time.Time
	Limit    int
	Offset   int
}
