package host

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/wodrun/internal/engine"
	"github.com/roach88/wodrun/internal/tracker"
)

// SpanSink receives completed spans after each turn, e.g. store.Store.
type SpanSink interface {
	WriteSpan(ctx context.Context, runID string, span tracker.Span) error
}

// TurnFunc observes every finished turn with the spans it completed.
type TurnFunc func(stats engine.TurnStats, completed []tracker.Span)

// Driver serializes external events into a Runtime.
//
// Enqueue and Stop may be called from any goroutine. Run owns the runtime:
// every Handle call, tracker read and sink write happens on its goroutine.
type Driver struct {
	rt    *engine.Runtime
	queue *eventQueue

	tick           time.Duration
	onTurn         TurnFunc
	sink           SpanSink
	runID          string
	stopOnComplete bool

	cursor int // Completed-span log position already delivered
}

// Option configures a Driver.
type Option func(*Driver)

// WithTicker makes Run inject a tick event every d.
func WithTicker(d time.Duration) Option {
	return func(dr *Driver) {
		dr.tick = d
	}
}

// WithOnTurn registers a turn observer.
func WithOnTurn(fn TurnFunc) Option {
	return func(dr *Driver) {
		dr.onTurn = fn
	}
}

// WithSink persists completed spans under runID after every turn.
func WithSink(sink SpanSink, runID string) Option {
	return func(dr *Driver) {
		dr.sink = sink
		dr.runID = runID
	}
}

// WithStopOnComplete makes Run return once the workout is done.
func WithStopOnComplete(stop bool) Option {
	return func(dr *Driver) {
		dr.stopOnComplete = stop
	}
}

// NewDriver creates a driver for rt.
func NewDriver(rt *engine.Runtime, opts ...Option) *Driver {
	dr := &Driver{rt: rt, queue: newEventQueue()}
	for _, opt := range opts {
		opt(dr)
	}
	return dr
}

// Enqueue submits an event. Returns false after Stop.
func (dr *Driver) Enqueue(ev engine.Event) bool {
	return dr.queue.Enqueue(ev)
}

// Pending returns the number of queued events.
func (dr *Driver) Pending() int {
	return dr.queue.Len()
}

// Stop closes the queue; Run drains what is queued and returns.
func (dr *Driver) Stop() {
	dr.queue.Close()
}

// Run processes events until ctx is cancelled, Stop is called, or (with
// WithStopOnComplete) the workout finishes.
func (dr *Driver) Run(ctx context.Context) error {
	slog.Info("driver starting", "tick", dr.tick)
	defer func() {
		slog.Debug("driver stopped", "last_turn", dr.rt.LastTurn().Seq, "coalesced_ticks", dr.queue.Coalesced())
	}()

	if dr.tick > 0 {
		tickCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go dr.ticker(tickCtx)
	}

	for {
		ev, ok := dr.queue.TryDequeue()
		if ok {
			dr.process(ctx, ev)
			if dr.stopOnComplete && dr.rt.Done() {
				slog.Info("driver stopping: workout complete")
				dr.queue.Close()
				return nil
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("driver stopping: context cancelled")
			dr.queue.Close()
			return ctx.Err()

		case <-dr.queue.Wait():
			// The signal channel closes with the queue.
			if dr.queue.Closed() && dr.queue.Len() == 0 {
				slog.Info("driver stopping: queue closed")
				return nil
			}
		}
	}
}

// process runs one turn. Errors are logged and the loop continues.
func (dr *Driver) process(ctx context.Context, ev engine.Event) {
	if err := dr.rt.Handle(ev); err != nil {
		slog.Error("turn failed", "event", ev.Name, "error", err)
	}

	completed, next := dr.rt.Tracker().CompletedSince(dr.cursor)
	dr.cursor = next

	if dr.sink != nil {
		for _, span := range completed {
			if err := dr.sink.WriteSpan(ctx, dr.runID, span); err != nil {
				slog.Error("persist span failed", "span", span.ID, "run", dr.runID, "error", err)
			}
		}
	}
	if dr.onTurn != nil {
		dr.onTurn(dr.rt.LastTurn(), completed)
	}
}

func (dr *Driver) ticker(ctx context.Context) {
	t := time.NewTicker(dr.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !dr.queue.Enqueue(engine.NewEvent(engine.EventTick, nil)) {
				return
			}
		}
	}
}
