package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowmatic/flowmatic/internal/conditions"
	"github.com/flowmatic/flowmatic/internal/definitions"
	"github.com/flowmatic/flowmatic/internal/ledger"
	"github.com/flowmatic/flowmatic/internal/logging"
	"github.com/flowmatic/flowmatic/internal/tools"
	"github.com/flowmatic/flowmatic/pkg/schema"
)

// Options tunes the engine. Zero values fall back to defaults.
type Options struct {
	PoolSize       int           // max concurrent executions (default 10)
	RetryAttempts  int           // dispatch attempts for retriable tool errors (default 3)
	RetryBaseDelay time.Duration // first retry delay, doubling per attempt (default 1s)
}

const (
	defaultPoolSize       = 10
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = time.Second
)

// Engine matches events to workflow definitions and drives executions:
// steps run strictly sequentially within one execution, executions run
// concurrently up to the pool size, and every step outcome hits the ledger
// before the next step starts.
type Engine struct {
	defs   *definitions.Store
	router *tools.Router
	ledger ledger.Ledger
	logger *slog.Logger
	pool   *execPool
	opts   Options

	rootCtx context.Context
	stop    context.CancelFunc

	mu      sync.Mutex
	cancels map[string]string // execution ID -> cancellation reason
}

// New creates an Engine over the given definition store, tool router, and ledger.
func New(defs *definitions.Store, router *tools.Router, led ledger.Ledger, logger *slog.Logger, opts Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = defaultPoolSize
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = defaultRetryAttempts
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = defaultRetryBaseDelay
	}

	rootCtx, stop := context.WithCancel(context.Background())
	return &Engine{
		defs:    defs,
		router:  router,
		ledger:  led,
		logger:  logger,
		pool:    newExecPool(opts.PoolSize, logger),
		opts:    opts,
		rootCtx: rootCtx,
		stop:    stop,
		cancels: make(map[string]string),
	}
}

// SubmitEvent matches an event against every loaded definition and starts
// one execution per matching workflow. A workflow matches when any of its
// trigger rules binds the event name and all of that rule's conditions hold
// against the payload (bare field paths or trigger_data-qualified ones, as
// in step guards). Matching never fails the submission: a malformed trigger
// condition logs and treats its rule as non-matching.
//
// Executions are created pending in the ledger before this returns, then
// run asynchronously on the pool. The returned IDs can be polled via
// GetExecution.
func (e *Engine) SubmitEvent(ctx context.Context, event string, payload map[string]any) ([]string, error) {
	if event == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "event name is empty")
	}

	var started []string
	condData := guardScope(payload, nil)
	for _, def := range e.defs.MatchEvent(event) {
		matched := false
		for _, rule := range def.Triggers {
			if rule.Event != event {
				continue
			}
			ok, err := conditions.EvalAll(rule.Conditions, condData)
			if err != nil {
				e.logger.WarnContext(ctx, "trigger condition error, rule skipped",
					slog.String("workflow", def.Name),
					slog.String("event", event),
					slog.String("error", err.Error()))
				continue
			}
			if ok {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		id, err := e.startExecution(ctx, def, event, payload)
		if err != nil {
			return started, err
		}
		started = append(started, id)
	}
	return started, nil
}

// TriggerWorkflow starts a workflow directly, bypassing event matching.
func (e *Engine) TriggerWorkflow(ctx context.Context, workflow string, payload map[string]any) (string, error) {
	def, err := e.defs.Get(workflow)
	if err != nil {
		return "", err
	}
	return e.startExecution(ctx, def, "manual.trigger", payload)
}

// TriggerScheduled starts a workflow from a cron trigger firing. The payload
// carries the schedule metadata so steps can reference it as trigger data.
func (e *Engine) TriggerScheduled(ctx context.Context, workflow string, payload map[string]any) (string, error) {
	def, err := e.defs.Get(workflow)
	if err != nil {
		return "", err
	}
	return e.startExecution(ctx, def, "schedule.fired", payload)
}

// startExecution persists a pending execution and hands it to the pool.
func (e *Engine) startExecution(ctx context.Context, def *schema.WorkflowDefinition, event string, payload map[string]any) (string, error) {
	exec := &schema.Execution{
		ID:          uuid.New().String(),
		Workflow:    def.Name,
		Event:       event,
		TriggerData: payload,
		Status:      schema.ExecutionStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.ledger.CreateExecution(ctx, exec); err != nil {
		return "", schema.NewErrorf(schema.ErrCodeStore, "create execution: %s", err.Error()).WithCause(err)
	}

	runCtx := logging.WithWorkflow(logging.WithExecutionID(e.rootCtx, exec.ID), def.Name)
	if err := e.pool.Submit(runCtx, func(ctx context.Context) {
		e.runExecution(ctx, def, exec)
	}); err != nil {
		reason := "engine is shutting down"
		e.failExecution(context.Background(), exec.ID, schema.ExecutionStatusPending, reason)
		return "", schema.NewError(schema.ErrCodeExecution, reason).WithCause(err)
	}

	e.logger.InfoContext(ctx, "execution started",
		slog.String("execution_id", exec.ID),
		slog.String("workflow", def.Name),
		slog.String("event", event))
	return exec.ID, nil
}

// GetExecution returns an execution with its recorded step results.
func (e *Engine) GetExecution(ctx context.Context, id string) (*schema.Execution, error) {
	return e.ledger.GetExecution(ctx, id)
}

// ListExecutions returns executions matching the filter.
func (e *Engine) ListExecutions(ctx context.Context, filter ledger.ExecutionFilter) ([]*schema.Execution, error) {
	return e.ledger.ListExecutions(ctx, filter)
}

// ListWorkflows returns all loaded workflow definitions.
func (e *Engine) ListWorkflows() []*schema.WorkflowDefinition {
	return e.defs.List()
}

// CancelExecution requests cancellation of a running execution. The request
// takes effect at the next step boundary: the in-flight step finishes and
// its result is recorded, then the execution fails with the given reason.
func (e *Engine) CancelExecution(ctx context.Context, id, reason string) error {
	exec, err := e.ledger.GetExecution(ctx, id)
	if err != nil {
		return err
	}
	if exec.Status.Terminal() {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"execution %q already %s", id, exec.Status)
	}
	if reason == "" {
		reason = "cancelled by operator"
	}

	e.mu.Lock()
	e.cancels[id] = reason
	e.mu.Unlock()
	return nil
}

// cancelReason returns the pending cancellation reason for an execution, if any.
func (e *Engine) cancelReason(id string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	reason, ok := e.cancels[id]
	return reason, ok
}

func (e *Engine) clearCancel(id string) {
	e.mu.Lock()
	delete(e.cancels, id)
	e.mu.Unlock()
}

// Wait blocks until all in-flight executions complete. Intended for tests
// and graceful drains.
func (e *Engine) Wait() {
	e.pool.Wait()
}

// Shutdown stops accepting work, cancels the root context, and waits for
// in-flight executions to reach a step boundary and finish.
func (e *Engine) Shutdown() {
	e.stop()
	e.pool.Shutdown()
}
