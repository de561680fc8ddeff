package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flowmatic/flowmatic/pkg/schema"
)

// MemoryLedger is an in-memory Ledger for tests and ephemeral runs.
// It enforces the same append-only step result contract as the durable store.
type MemoryLedger struct {
	mu         sync.RWMutex
	executions map[string]*schema.Execution
}

// NewMemoryLedger creates an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{executions: make(map[string]*schema.Execution)}
}

func (m *MemoryLedger) CreateExecution(_ context.Context, exec *schema.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.executions[exec.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "execution %q already exists", exec.ID)
	}
	cp := *exec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.Steps = append([]schema.StepResult(nil), exec.Steps...)
	m.executions[exec.ID] = &cp
	return nil
}

func (m *MemoryLedger) UpdateExecution(_ context.Context, id string, update ExecutionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	exec, ok := m.executions[id]
	if !ok {
		return ledgerNotFound("execution", id)
	}
	if update.Status != nil {
		exec.Status = *update.Status
	}
	if update.Error != nil {
		exec.Error = *update.Error
	}
	if update.StartedAt != nil {
		exec.StartedAt = update.StartedAt
	}
	if update.CompletedAt != nil {
		exec.CompletedAt = update.CompletedAt
	}
	return nil
}

func (m *MemoryLedger) AppendStepResult(_ context.Context, executionID string, result *schema.StepResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	exec, ok := m.executions[executionID]
	if !ok {
		return ledgerNotFound("execution", executionID)
	}
	for _, existing := range exec.Steps {
		if existing.Position == result.Position {
			return schema.NewErrorf(schema.ErrCodeConflict,
				"step result at position %d already recorded for execution %q", result.Position, executionID)
		}
	}
	exec.Steps = append(exec.Steps, *result)
	sort.Slice(exec.Steps, func(i, j int) bool {
		return exec.Steps[i].Position < exec.Steps[j].Position
	})
	return nil
}

func (m *MemoryLedger) GetExecution(_ context.Context, id string) (*schema.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exec, ok := m.executions[id]
	if !ok {
		return nil, ledgerNotFound("execution", id)
	}
	cp := *exec
	cp.Steps = append([]schema.StepResult(nil), exec.Steps...)
	return &cp, nil
}

func (m *MemoryLedger) ListExecutions(_ context.Context, filter ExecutionFilter) ([]*schema.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*schema.Execution
	for _, exec := range m.executions {
		if filter.Workflow != "" && exec.Workflow != filter.Workflow {
			continue
		}
		if filter.Status != nil && exec.Status != *filter.Status {
			continue
		}
		if filter.Since != nil && exec.CreatedAt.Before(*filter.Since) {
			continue
		}
		cp := *exec
		cp.Steps = append([]schema.StepResult(nil), exec.Steps...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryLedger) Close() error { return nil }
