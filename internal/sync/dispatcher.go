package sync

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"

	"golang.org/x/sync/semaphore"

	"github.com/tonimelisma/flipper-sync/internal/archive"
)

// EventHandler processes one event. Its errors are logged, never returned
// to the run that emitted the event.
type EventHandler func(ctx context.Context, ev Event) error

// Dispatcher runs event handlers in the background. Events that concern the
// same item (keyed by origin path, so a shadow marker queues behind its
// origin) are handled one at a time in submission order. Different items
// proceed concurrently, bounded by the worker count.
type Dispatcher struct {
	ctx    context.Context
	handle EventHandler
	sem    *semaphore.Weighted
	logger *slog.Logger

	mu     stdsync.Mutex
	queues map[archive.Path][]Event
	wg     stdsync.WaitGroup
}

// NewDispatcher creates a dispatcher running at most workers handlers at
// once. Handlers receive ctx.
func NewDispatcher(ctx context.Context, workers int, handle EventHandler, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		ctx:    ctx,
		handle: handle,
		sem:    semaphore.NewWeighted(int64(max(workers, 1))),
		logger: logger,
		queues: make(map[archive.Path][]Event),
	}
}

// Submit enqueues ev without blocking.
func (d *Dispatcher) Submit(ev Event) {
	key := ev.Ref.Origin

	d.mu.Lock()
	defer d.mu.Unlock()

	if q, busy := d.queues[key]; busy {
		d.queues[key] = append(q, ev)
		return
	}

	d.queues[key] = []Event{ev}
	d.wg.Add(1)

	go d.drain(key)
}

// Wait blocks until every submitted event has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// drain handles the queue for key until it is empty.
func (d *Dispatcher) drain(key archive.Path) {
	defer d.wg.Done()

	for {
		d.mu.Lock()

		q := d.queues[key]
		if len(q) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()

			return
		}

		ev := q[0]
		d.queues[key] = q[1:]
		d.mu.Unlock()

		// Acquire with a background context so queued events are still
		// handled after d.ctx ends; handlers see d.ctx and fail fast.
		_ = d.sem.Acquire(context.Background(), 1) // cannot fail without a deadline

		d.safeHandle(ev)
		d.sem.Release(1)
	}
}

// safeHandle runs the handler with panic recovery so one faulty event
// cannot take down the process.
func (d *Dispatcher) safeHandle(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panic",
				slog.String("event", ev.String()),
				slog.Any("panic", r),
			)
		}
	}()

	if err := d.handle(d.ctx, ev); err != nil {
		d.logger.Error("event handling failed",
			slog.String("event", ev.String()),
			slog.String("error", fmt.Sprint(err)),
		)
	}
}
