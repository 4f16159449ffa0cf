// Package debounce filters a boolean signal so that a change is only
// reported once it has persisted for a minimum duration.
package debounce

import (
	"time"

	"github.com/robotcore/mechanism/clock"
)

// Type selects which edges are debounced.
type Type int

const (
	// Rising debounces false->true; true is reported only after the input
	// has been continuously true for the window.
	Rising Type = iota

	// Falling debounces true->false.
	Falling

	// Both debounces either edge.
	Both
)

// Debouncer is a time based debounce filter.  It is not safe for concurrent
// use.
type Debouncer struct {
	clk      clock.Clock
	window   time.Duration
	typ      Type
	baseline bool
	since    time.Time
}

// New returns a debouncer over window.  A nil clock uses clock.System.
func New(window time.Duration, typ Type, clk clock.Clock) *Debouncer {
	if clk == nil {
		clk = clock.System
	}
	d := &Debouncer{
		clk:      clk,
		window:   window,
		typ:      typ,
		baseline: typ == Falling,
	}
	d.since = clk.Now()
	return d
}

// Window returns the debounce duration.
func (d *Debouncer) Window() time.Duration { return d.window }

// Calculate feeds one sample and returns the filtered output.
func (d *Debouncer) Calculate(input bool) bool {
	now := d.clk.Now()
	if input == d.baseline {
		d.since = now
	}
	if now.Sub(d.since) >= d.window {
		if d.typ == Both {
			d.baseline = input
			d.since = now
		}
		return input
	}
	return d.baseline
}

// Reset restarts the window, discarding any partially elapsed edge.
func (d *Debouncer) Reset() {
	d.since = d.clk.Now()
}
