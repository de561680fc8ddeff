package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/flowmatic/flowmatic/internal/conditions"
	"github.com/flowmatic/flowmatic/internal/ledger"
	"github.com/flowmatic/flowmatic/internal/logging"
	"github.com/flowmatic/flowmatic/internal/resolve"
	"github.com/flowmatic/flowmatic/internal/tools"
	"github.com/flowmatic/flowmatic/pkg/schema"
)

// runExecution drives one execution from pending to a terminal status.
// Steps are strictly sequential; each step's result is durably recorded
// before the next step is considered. Cancellation and shutdown are honored
// only at step boundaries so no recorded result is ever half-written.
func (e *Engine) runExecution(ctx context.Context, def *schema.WorkflowDefinition, exec *schema.Execution) error {
	defer e.clearCancel(exec.ID)

	started := time.Now().UTC()
	running := schema.ExecutionStatusRunning
	if err := e.ledger.UpdateExecution(ctx, exec.ID, ledger.ExecutionUpdate{Status: &running, StartedAt: &started}); err != nil {
		e.logger.ErrorContext(ctx, "mark execution running", slog.String("error", err.Error()))
		return err
	}

	results := map[string]any{}

	for i := range def.Steps {
		step := &def.Steps[i]

		// Step boundary: honor cancellation and shutdown before starting.
		if reason, cancelled := e.cancelReason(exec.ID); cancelled {
			return e.failExecution(ctx, exec.ID, running, "cancelled: "+reason)
		}
		if ctx.Err() != nil {
			return e.failExecution(context.Background(), exec.ID, running, "cancelled: engine shutting down")
		}

		stepCtx := logging.WithStep(ctx, step.Name)
		result, err := e.runStep(stepCtx, step, i, exec, results)
		if err != nil {
			// Ledger write failed; without a durable record we cannot advance.
			e.logger.ErrorContext(stepCtx, "record step result", slog.String("error", err.Error()))
			return e.failExecution(stepCtx, exec.ID, running, "ledger write failed: "+err.Error())
		}

		switch result.Status {
		case schema.StepStatusFailed:
			return e.failExecution(stepCtx, exec.ID, running,
				"step "+step.Name+" failed: "+result.Error)
		case schema.StepStatusSucceeded:
			var output map[string]any
			if len(result.Output) > 0 {
				_ = json.Unmarshal(result.Output, &output)
			}
			results[step.Name] = output
		}
		// Skipped steps leave no entry in execution_results.
	}

	completed := schema.ExecutionStatusCompleted
	now := time.Now().UTC()
	if err := e.ledger.UpdateExecution(ctx, exec.ID, ledger.ExecutionUpdate{Status: &completed, CompletedAt: &now}); err != nil {
		e.logger.ErrorContext(ctx, "mark execution completed", slog.String("error", err.Error()))
		return err
	}
	e.logger.InfoContext(ctx, "execution completed", slog.Int("steps", len(def.Steps)))
	return nil
}

// runStep evaluates the guard, resolves params, dispatches with retry, and
// appends exactly one StepResult to the ledger. The returned result carries
// the final outcome; the error is non-nil only when the ledger write failed.
func (e *Engine) runStep(ctx context.Context, step *schema.Step, position int, exec *schema.Execution, results map[string]any) (*schema.StepResult, error) {
	stepStart := time.Now().UTC()

	record := func(r *schema.StepResult) (*schema.StepResult, error) {
		r.Name = step.Name
		r.Tool = step.Tool
		r.Position = position
		r.StartedAt = stepStart
		r.CompletedAt = time.Now().UTC()
		if err := e.ledger.AppendStepResult(ctx, exec.ID, r); err != nil {
			return r, err
		}
		return r, nil
	}

	// Guard. The condition data exposes the trigger payload at the top level
	// alongside the qualified scopes.
	guardData := guardScope(exec.TriggerData, results)
	ok, err := conditions.EvalAll(step.Conditions, guardData)
	if err != nil {
		// A broken guard skips the step rather than crashing the execution.
		e.logger.WarnContext(ctx, "step guard error, step skipped", slog.String("error", err.Error()))
		return record(&schema.StepResult{Status: schema.StepStatusSkipped, Error: err.Error()})
	}
	if !ok {
		e.logger.DebugContext(ctx, "step guard false, step skipped")
		return record(&schema.StepResult{Status: schema.StepStatusSkipped})
	}

	// Resolve params against an immutable snapshot of the context.
	scope := &resolve.Scope{
		ExecutionID:      exec.ID,
		TriggerData:      resolve.CopyScope(exec.TriggerData),
		ExecutionResults: resolve.CopyScope(results),
	}
	params, err := resolve.ResolveParams(step.Params, scope)
	if err != nil {
		// Resolution failures are terminal: fail fast, no dispatch.
		e.logger.WarnContext(ctx, "parameter resolution failed", slog.String("error", err.Error()))
		return record(&schema.StepResult{Status: schema.StepStatusFailed, Error: err.Error()})
	}

	// Dispatch with bounded retry for transient tool errors.
	output, attempts, dispatchErr := e.dispatchWithRetry(ctx, step.Tool, params)
	if dispatchErr != nil {
		return record(&schema.StepResult{
			Status:   schema.StepStatusFailed,
			Params:   params,
			Error:    dispatchErr.Error(),
			Attempts: attempts,
		})
	}

	encoded, err := json.Marshal(output)
	if err != nil {
		return record(&schema.StepResult{
			Status:   schema.StepStatusFailed,
			Params:   params,
			Error:    "encode output: " + err.Error(),
			Attempts: attempts,
		})
	}
	return record(&schema.StepResult{
		Status:   schema.StepStatusSucceeded,
		Params:   params,
		Output:   encoded,
		Attempts: attempts,
	})
}

// dispatchWithRetry invokes the tool, retrying transient failures with a
// doubling backoff. Only the final attempt's outcome is reported.
func (e *Engine) dispatchWithRetry(ctx context.Context, tool string, params map[string]any) (map[string]any, int, error) {
	var lastErr error
	for attempt := 0; attempt < e.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := ComputeBackoff(e.opts.RetryBaseDelay, attempt-1)
			e.logger.InfoContext(ctx, "retrying tool dispatch",
				slog.String("tool", tool),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", delay))
			if err := WaitForBackoff(ctx, delay); err != nil {
				return nil, attempt, lastErr
			}
		}

		output, err := e.router.Dispatch(ctx, tool, params)
		if err == nil {
			return output, attempt + 1, nil
		}
		lastErr = err
		if !tools.IsRetriable(err) {
			return nil, attempt + 1, err
		}
	}
	return nil, e.opts.RetryAttempts, schema.NewErrorf(schema.ErrCodeRetryExhausted,
		"tool %s failed after %d attempts: %s", tool, e.opts.RetryAttempts, lastErr.Error()).WithCause(lastErr)
}

// failExecution transitions an execution to failed with a reason, honoring
// the transition table.
func (e *Engine) failExecution(ctx context.Context, id string, from schema.ExecutionStatus, reason string) error {
	if !schema.CanTransition(from, schema.ExecutionStatusFailed) {
		e.logger.ErrorContext(ctx, "illegal transition to failed", slog.String("from", string(from)))
		return schema.NewErrorf(schema.ErrCodeInvalidTransition, "%s -> failed", from)
	}
	failed := schema.ExecutionStatusFailed
	now := time.Now().UTC()
	if err := e.ledger.UpdateExecution(ctx, id, ledger.ExecutionUpdate{Status: &failed, Error: &reason, CompletedAt: &now}); err != nil {
		e.logger.ErrorContext(ctx, "mark execution failed", slog.String("error", err.Error()))
		return err
	}
	e.logger.InfoContext(ctx, "execution failed", slog.String("reason", reason))
	return nil
}

// guardScope builds the data map conditions evaluate against: trigger
// fields at the top level plus the qualified scopes. Trigger rules use it
// with nil results, so the bare and trigger_data-qualified path forms
// behave the same in rules and in step guards.
func guardScope(triggerData, results map[string]any) map[string]any {
	data := make(map[string]any, len(triggerData)+2)
	for k, v := range triggerData {
		data[k] = v
	}
	data["trigger_data"] = triggerData
	data["execution_results"] = results
	return data
}
