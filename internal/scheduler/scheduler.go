package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowmatic/flowmatic/pkg/schema"
)

// Triggerer starts a workflow execution for a fired schedule.
// Satisfied by the engine (avoids import cycle).
type Triggerer interface {
	TriggerScheduled(ctx context.Context, workflow string, payload map[string]any) (string, error)
}

// Definitions supplies the workflows carrying schedule triggers.
// Satisfied by the definition store.
type Definitions interface {
	Scheduled() []*schema.WorkflowDefinition
}

// Scheduler ticks over the loaded definitions and fires workflows whose cron
// schedules are due. Schedules are re-read from the definition store on every
// tick, so a reload picks up added or removed schedules without a restart.
type Scheduler struct {
	defs     Definitions
	runner   Triggerer
	parser   cron.Parser
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	nextMu sync.Mutex
	next   map[string]time.Time // workflow + "\n" + expression -> next fire time
}

// NewScheduler creates a Scheduler over a definition source and a runner.
func NewScheduler(defs Definitions, runner Triggerer, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		defs:     defs,
		runner:   runner,
		// Same grammar the definition validator accepts (cron.ParseStandard),
		// descriptors like @hourly included.
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		interval: 60 * time.Second,
		logger:   logger,
		next:     make(map[string]time.Time),
	}
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Seed next-run times immediately so the first real tick fires on time.
	s.Tick(ctx, time.Now().UTC())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx, time.Now().UTC())
		}
	}
}

// Tick fires every schedule that is due at now and advances its next-run
// time. A schedule seen for the first time is armed for its next occurrence
// rather than fired retroactively.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	defs := s.defs.Scheduled()

	seen := make(map[string]bool)
	for _, def := range defs {
		for _, rule := range def.Triggers {
			if rule.Schedule == "" {
				continue
			}
			key := def.Name + "\n" + rule.Schedule
			seen[key] = true

			schedule, err := s.parser.Parse(rule.Schedule)
			if err != nil {
				// Validation rejects bad expressions at load; log and move on.
				s.logger.Error("invalid schedule",
					slog.String("workflow", def.Name),
					slog.String("schedule", rule.Schedule),
					slog.String("error", err.Error()))
				continue
			}

			due, armed := s.nextRun(key)
			if !armed {
				s.setNextRun(key, schedule.Next(now))
				continue
			}
			if due.After(now) {
				continue
			}

			s.setNextRun(key, schedule.Next(now))
			s.fire(ctx, def.Name, rule.Schedule, now)
		}
	}

	// Drop state for schedules that disappeared on reload.
	s.nextMu.Lock()
	for key := range s.next {
		if !seen[key] {
			delete(s.next, key)
		}
	}
	s.nextMu.Unlock()
}

func (s *Scheduler) fire(ctx context.Context, workflow, expression string, now time.Time) {
	id, err := s.runner.TriggerScheduled(ctx, workflow, map[string]any{
		"schedule": expression,
		"fired_at": now.Format(time.RFC3339),
	})
	if err != nil {
		s.logger.Error("scheduled trigger failed",
			slog.String("workflow", workflow),
			slog.String("schedule", expression),
			slog.String("error", err.Error()))
		return
	}
	s.logger.Info("scheduled trigger fired",
		slog.String("workflow", workflow),
		slog.String("schedule", expression),
		slog.String("execution_id", id))
}

func (s *Scheduler) nextRun(key string) (time.Time, bool) {
	s.nextMu.Lock()
	defer s.nextMu.Unlock()
	t, ok := s.next[key]
	return t, ok
}

func (s *Scheduler) setNextRun(key string, t time.Time) {
	s.nextMu.Lock()
	s.next[key] = t
	s.nextMu.Unlock()
}

// NextRunAfter computes the next fire time for a cron expression.
func (s *Scheduler) NextRunAfter(expression string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(expression)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", expression, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}
