package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/edaniels/golog"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/robotcore/mechanism/telemetry"
)

// Participant is anything refreshed and logged every tick.
type Participant interface {
	Periodic() error
	telemetry.Loggable
}

// Handle tracks a scheduled task.  Its methods may only be used from the
// loop goroutine (or before Run starts).
type Handle struct {
	task      Task
	done      bool
	cancelled bool
	err       error
}

// Cancel stops the task before its next poll.
func (h *Handle) Cancel() { h.cancelled = true }

// Done reports whether the task finished, failed or was cancelled.
func (h *Handle) Done() bool { return h.done || h.cancelled }

// Err returns the error that ended the task, if any.
func (h *Handle) Err() error { return h.err }

type call struct {
	fn   func()
	done chan struct{}
}

// Loop ticks participants and tasks at a fixed period.  Everything it owns
// runs on one goroutine; other goroutines reach it through Do.
type Loop struct {
	period time.Duration
	logger golog.Logger
	sink   telemetry.Sink

	names []string
	parts map[string]Participant
	tasks []*Handle
	calls chan call
	ticks uint64
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the diagnostic logger.
func WithLogger(l golog.Logger) Option {
	return func(lp *Loop) { lp.logger = l }
}

// WithSink sets where telemetry goes each tick.
func WithSink(s telemetry.Sink) Option {
	return func(lp *Loop) { lp.sink = s }
}

// NewLoop returns a Loop ticking every period.
func NewLoop(period time.Duration, opts ...Option) *Loop {
	l := &Loop{
		period: period,
		logger: zap.NewNop().Sugar(),
		sink:   telemetry.Discard,
		parts:  make(map[string]Participant),
		calls:  make(chan call, 64),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Period returns the tick period.
func (l *Loop) Period() time.Duration { return l.period }

// Ticks returns how many ticks have run.
func (l *Loop) Ticks() uint64 { return l.ticks }

// Register adds a participant.  Participants are ticked in registration
// order.  A participant registered under "" logs at the root of the
// telemetry tree, which suits a container that names its own members.
func (l *Loop) Register(name string, p Participant) error {
	if _, ok := l.parts[name]; ok {
		return fmt.Errorf("participant %q already registered", name)
	}
	l.parts[name] = p
	l.names = append(l.names, name)
	return nil
}

// Names lists participants in tick order.
func (l *Loop) Names() []string {
	out := make([]string, len(l.names))
	copy(out, l.names)
	return out
}

// Schedule starts polling t on the next tick.
func (l *Loop) Schedule(t Task) *Handle {
	h := &Handle{task: t}
	l.tasks = append(l.tasks, h)
	return h
}

// Do runs fn on the loop goroutine and waits for it.  It must not be
// called from the loop goroutine.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	c := call{fn: fn, done: make(chan struct{})}
	select {
	case l.calls <- c:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick runs one cycle: queued calls, participant refresh, task polls,
// then telemetry.  Errors are combined; one failure does not stop the
// rest of the tick.
func (l *Loop) Tick() error {
	l.drainCalls()

	var errs error
	for _, name := range l.names {
		if err := l.parts[name].Periodic(); err != nil {
			if name != "" {
				err = fmt.Errorf("%s: %w", name, err)
			}
			errs = multierr.Append(errs, err)
		}
	}

	current := l.tasks
	l.tasks = nil
	live := make([]*Handle, 0, len(current))
	for _, h := range current {
		if h.cancelled {
			continue
		}
		done, err := h.task.Poll()
		if err != nil {
			h.err = err
			errs = multierr.Append(errs, err)
			done = true
		}
		h.done = done
		if !done {
			live = append(live, h)
		}
	}
	// tasks scheduled while polling start next tick
	l.tasks = append(live, l.tasks...)

	for _, name := range l.names {
		l.parts[name].Log(l.sink, name)
	}
	l.sink.Log("Loop/Ticks", l.ticks)
	if f, ok := l.sink.(telemetry.Flusher); ok {
		errs = multierr.Append(errs, f.Flush())
	}
	l.ticks++
	return errs
}

func (l *Loop) drainCalls() {
	for {
		select {
		case c := <-l.calls:
			c.fn()
			close(c.done)
		default:
			return
		}
	}
}

// Run ticks until ctx is done.  Tick errors are logged, not returned.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.period)
	defer ticker.Stop()
	l.logger.Infow("loop started", "period", l.period, "participants", l.names)
	for {
		select {
		case <-ctx.Done():
			l.logger.Infow("loop stopped", "ticks", l.ticks)
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := l.Tick(); err != nil {
				l.logger.Warnw("tick error", "error", err)
			}
			if el := time.Since(start); el > l.period {
				l.logger.Warnw("loop overrun", "elapsed", el, "period", l.period)
			}
		}
	}
}
