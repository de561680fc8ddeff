package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrPoolShutdown is returned when an execution is submitted after Shutdown.
var ErrPoolShutdown = errors.New("execution pool is shut down")

// execPool bounds how many executions run at once. Steps inside one
// execution stay sequential; the pool only caps cross-execution
// parallelism. Submit blocks while every slot is busy, so a burst of
// matching events applies backpressure instead of spawning a goroutine
// per execution.
type execPool struct {
	slots  chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.Mutex
	done   chan struct{}
	closed bool
}

func newExecPool(size int, logger *slog.Logger) *execPool {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &execPool{
		slots:  make(chan struct{}, size),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Submit hands one execution run to the pool. It blocks until a slot frees
// up, honoring ctx cancellation and shutdown while waiting. A panic inside
// run is recovered and logged; the slot is released either way, so one
// broken tool adapter cannot wedge the pool or kill the process.
func (p *execPool) Submit(ctx context.Context, run func(ctx context.Context)) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolShutdown
	}
	p.mu.Unlock()

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPoolShutdown
	}

	// Shutdown may have won the race while we waited for a slot. The
	// wg.Add must happen under the lock or Shutdown's wg.Wait can return
	// before this run is counted.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.slots
		return ErrPoolShutdown
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("execution panicked", slog.Any("panic", r))
			}
			<-p.slots
			p.wg.Done()
		}()
		run(ctx)
	}()

	return nil
}

// Wait blocks until every submitted execution has finished.
func (p *execPool) Wait() {
	p.wg.Wait()
}

// Shutdown stops accepting executions and waits for in-flight ones to
// finish. Safe to call more than once.
func (p *execPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
}
