// Package worker runs actuator configuration calls off the control loop.
//
// Reconfiguring a motor controller can take several bus round trips and
// may fail transiently, so Submit returns immediately and the call is
// retried in the background.  Callers never learn when (or whether) a job
// took effect; they observe the result through measured outputs.
package worker

import (
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/edaniels/golog"
	"go.uber.org/zap"
)

var (
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("worker: executor closed")

	// ErrQueueFull is returned by Submit when the queue has no room.
	ErrQueueFull = errors.New("worker: queue full")
)

// DefaultRetries is how many times a failing job is retried.
const DefaultRetries = 4

type job struct {
	name string
	op   backoff.Operation
}

// Executor runs jobs one at a time in submission order.
type Executor struct {
	logger     golog.Logger
	newBackOff func() backoff.BackOff

	mu      sync.Mutex
	closed  bool
	jobs    chan job
	pending sync.WaitGroup
	done    chan struct{}
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger failures are reported to.
func WithLogger(l golog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithBackOff sets the retry policy.  f is called once per job.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(e *Executor) { e.newBackOff = f }
}

// WithQueueSize sets how many jobs may wait.
func WithQueueSize(n int) Option {
	return func(e *Executor) { e.jobs = make(chan job, n) }
}

// DefaultBackOff retries DefaultRetries times with exponential spacing.
func DefaultBackOff() backoff.BackOff {
	exp := &backoff.ExponentialBackOff{
		InitialInterval:     10 * time.Millisecond,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         200 * time.Millisecond,
		MaxElapsedTime:      2 * time.Second,
		Clock:               backoff.SystemClock,
	}
	return backoff.WithMaxRetries(exp, DefaultRetries)
}

// New starts an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		logger:     zap.NewNop().Sugar(),
		newBackOff: DefaultBackOff,
		jobs:       make(chan job, 64),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	go e.run()
	return e
}

func (e *Executor) run() {
	defer close(e.done)
	for j := range e.jobs {
		name := j.name
		notify := func(err error, wait time.Duration) {
			e.logger.Debugw("retrying configuration call", "job", name, "error", err, "wait", wait)
		}
		if err := backoff.RetryNotify(j.op, e.newBackOff(), notify); err != nil {
			e.logger.Errorw("configuration call failed", "job", name, "error", err)
		}
		e.pending.Done()
	}
}

// Submit queues op and returns without waiting for it.
func (e *Executor) Submit(name string, op func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.pending.Add(1)
	select {
	case e.jobs <- job{name: name, op: op}:
		return nil
	default:
		e.pending.Done()
		return ErrQueueFull
	}
}

// Sync blocks until every job submitted so far has finished.
func (e *Executor) Sync() {
	e.pending.Wait()
}

// Close stops accepting jobs, drains the queue and stops the goroutine.
func (e *Executor) Close() error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.jobs)
	}
	e.mu.Unlock()
	<-e.done
	return nil
}
