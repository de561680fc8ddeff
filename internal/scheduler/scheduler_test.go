package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmatic/flowmatic/pkg/schema"
)

type fakeDefs struct {
	mu   sync.Mutex
	defs []*schema.WorkflowDefinition
}

func (f *fakeDefs) Scheduled() []*schema.WorkflowDefinition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.defs
}

func (f *fakeDefs) set(defs []*schema.WorkflowDefinition) {
	f.mu.Lock()
	f.defs = defs
	f.mu.Unlock()
}

type fakeRunner struct {
	mu    sync.Mutex
	fired []string // workflow names in fire order
	last  map[string]any
}

func (f *fakeRunner) TriggerScheduled(_ context.Context, workflow string, payload map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fired = append(f.fired, workflow)
	f.last = payload
	return "exec-" + workflow, nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fired)
}

func scheduledDef(name, expr string) *schema.WorkflowDefinition {
	return &schema.WorkflowDefinition{
		Name:     name,
		Triggers: []schema.TriggerRule{{Schedule: expr}},
		Steps:    []schema.Step{{Name: "noop", Tool: "log"}},
	}
}

func newTestScheduler(defs Definitions, runner Triggerer) *Scheduler {
	return NewScheduler(defs, runner, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTickArmsBeforeFiring(t *testing.T) {
	defs := &fakeDefs{}
	defs.set([]*schema.WorkflowDefinition{scheduledDef("nightly-report", "* * * * *")})
	runner := &fakeRunner{}
	s := newTestScheduler(defs, runner)

	now := time.Date(2026, 8, 31, 10, 0, 30, 0, time.UTC)

	// First tick only arms the schedule.
	s.Tick(context.Background(), now)
	assert.Zero(t, runner.count())

	// Next minute boundary has passed: fires exactly once.
	s.Tick(context.Background(), now.Add(time.Minute))
	require.Equal(t, 1, runner.count())
	assert.Equal(t, []string{"nightly-report"}, runner.fired)
	assert.Equal(t, "* * * * *", runner.last["schedule"])
	assert.NotEmpty(t, runner.last["fired_at"])

	// Same instant again: already advanced, no double fire.
	s.Tick(context.Background(), now.Add(time.Minute))
	assert.Equal(t, 1, runner.count())
}

func TestTickFiresEachDueSchedule(t *testing.T) {
	defs := &fakeDefs{}
	defs.set([]*schema.WorkflowDefinition{
		scheduledDef("hourly-sync", "0 * * * *"),
		scheduledDef("nightly-report", "* * * * *"),
	})
	runner := &fakeRunner{}
	s := newTestScheduler(defs, runner)

	now := time.Date(2026, 8, 31, 10, 59, 0, 0, time.UTC)
	s.Tick(context.Background(), now)
	require.Zero(t, runner.count())

	// 11:00 is due for both the hourly and the per-minute schedule.
	s.Tick(context.Background(), now.Add(time.Minute))
	assert.Equal(t, 2, runner.count())
}

func TestTickPrunesRemovedSchedules(t *testing.T) {
	defs := &fakeDefs{}
	defs.set([]*schema.WorkflowDefinition{scheduledDef("nightly-report", "* * * * *")})
	runner := &fakeRunner{}
	s := newTestScheduler(defs, runner)

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	s.Tick(context.Background(), now)
	_, armed := s.nextRun("nightly-report\n* * * * *")
	require.True(t, armed)

	// Definition removed on reload: the armed state goes with it.
	defs.set(nil)
	s.Tick(context.Background(), now.Add(time.Minute))
	_, armed = s.nextRun("nightly-report\n* * * * *")
	assert.False(t, armed)
	assert.Zero(t, runner.count())
}

func TestTickFiresDescriptorSchedule(t *testing.T) {
	defs := &fakeDefs{}
	defs.set([]*schema.WorkflowDefinition{scheduledDef("hourly-sync", "@hourly")})
	runner := &fakeRunner{}
	s := newTestScheduler(defs, runner)

	now := time.Date(2026, 8, 31, 10, 30, 0, 0, time.UTC)
	s.Tick(context.Background(), now)
	require.Zero(t, runner.count())

	s.Tick(context.Background(), now.Add(30*time.Minute))
	assert.Equal(t, 1, runner.count())
	assert.Equal(t, "@hourly", runner.last["schedule"])
}

func TestNextRunAfter(t *testing.T) {
	s := newTestScheduler(&fakeDefs{}, &fakeRunner{})

	from := time.Date(2026, 8, 31, 10, 30, 0, 0, time.UTC)
	next, err := s.NextRunAfter("0 2 * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 1, 2, 0, 0, 0, time.UTC), next)

	// Descriptors parse with the same grammar validation accepts.
	next, err = s.NextRunAfter("@hourly", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 31, 11, 0, 0, 0, time.UTC), next)

	_, err = s.NextRunAfter("not a cron", from)
	require.Error(t, err)
}

func TestStartAndStop(t *testing.T) {
	s := newTestScheduler(&fakeDefs{}, &fakeRunner{})

	require.NoError(t, s.Start(context.Background()))
	require.Error(t, s.Start(context.Background()), "double start must fail")
	require.NoError(t, s.Stop())

	// Stop is idempotent and the scheduler can be restarted.
	require.NoError(t, s.Stop())
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
}
