// Package component builds mechanism behaviour on top of a motor.Driver:
// plain motors, servos with arrival detection, flywheels, and servos that
// home themselves against a hard stop.
//
// Components are ticked by a sched.Loop and are not safe for concurrent
// use.
package component

import (
	"github.com/edaniels/golog"
	"go.uber.org/zap"

	"github.com/robotcore/mechanism/clock"
	"github.com/robotcore/mechanism/telemetry"
)

// Component is refreshed and logged once per tick.
type Component interface {
	Periodic() error
	telemetry.Loggable
}

type options struct {
	logger golog.Logger
	clock  clock.Clock
	active func() bool
}

func defaultOptions() options {
	return options{
		logger: zap.NewNop().Sugar(),
		clock:  clock.System,
		active: func() bool { return true },
	}
}

// Option configures a component.
type Option func(*options)

// WithLogger sets the diagnostic logger.
func WithLogger(l golog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock sets the time source used for debouncing.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithActive sets the predicate telling whether the robot is enabled.
// Homing only makes progress while it returns true.
func WithActive(f func() bool) Option {
	return func(o *options) { o.active = f }
}
