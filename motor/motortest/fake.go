// Package motortest provides a recording Actuator for tests.
package motortest

import (
	"periph.io/x/conn/v3/physic"

	"github.com/robotcore/mechanism/motor"
	"github.com/robotcore/mechanism/units"
)

// Operation names recorded in Call.Op.
const (
	OpPosition         = "SetPosition"
	OpProfiledPosition = "SetProfiledPosition"
	OpVelocity         = "SetVelocity"
	OpVoltage          = "SetVoltage"
	OpCurrent          = "SetCurrent"
	OpIdle             = "SetIdle"
	OpSoftLimits       = "UseSoftLimits"
	OpResetPosition    = "ResetPosition"
)

// Call is one recorded actuator command.  Value holds the raw nano-unit
// integer of the argument, or 1/0 for UseSoftLimits.
type Call struct {
	Op    string
	Value int64
}

// Fake records every command and serves Outputs from ReadOutputs.  It
// applies nothing on its own; tests move Outputs by hand.
type Fake struct {
	// Outputs is copied into the caller's slice by ReadOutputs
	Outputs []motor.Outputs

	// Calls lists commands in the order received
	Calls []Call

	// Unsupported ops return a *motor.UnsupportedError
	Unsupported map[string]bool

	// ReadErr is returned from ReadOutputs when set
	ReadErr error

	// SoftLimits is the last value passed to UseSoftLimits
	SoftLimits bool
}

// New returns a Fake with room for a leader and followers.
func New(followers int) *Fake {
	return &Fake{
		Outputs:     make([]motor.Outputs, followers+1),
		Unsupported: map[string]bool{},
		SoftLimits:  true,
	}
}

func (f *Fake) record(op string, v int64) error {
	if f.Unsupported[op] {
		return &motor.UnsupportedError{Actuator: "fake", Op: op}
	}
	f.Calls = append(f.Calls, Call{Op: op, Value: v})
	return nil
}

// ReadOutputs implements motor.Actuator.
func (f *Fake) ReadOutputs(out []motor.Outputs) error {
	if f.ReadErr != nil {
		return f.ReadErr
	}
	copy(out, f.Outputs)
	return nil
}

// SetPosition implements motor.Actuator.
func (f *Fake) SetPosition(a physic.Angle) error { return f.record(OpPosition, int64(a)) }

// SetProfiledPosition implements motor.Actuator.
func (f *Fake) SetProfiledPosition(a physic.Angle) error {
	return f.record(OpProfiledPosition, int64(a))
}

// SetVelocity implements motor.Actuator.
func (f *Fake) SetVelocity(v units.AngularVelocity) error { return f.record(OpVelocity, int64(v)) }

// SetVoltage implements motor.Actuator.
func (f *Fake) SetVoltage(v physic.ElectricPotential) error { return f.record(OpVoltage, int64(v)) }

// SetCurrent implements motor.Actuator.
func (f *Fake) SetCurrent(c physic.ElectricCurrent) error { return f.record(OpCurrent, int64(c)) }

// SetIdle implements motor.Actuator.
func (f *Fake) SetIdle() error { return f.record(OpIdle, 0) }

// UseSoftLimits implements motor.Actuator.
func (f *Fake) UseSoftLimits(on bool) error {
	var v int64
	if on {
		v = 1
	}
	if err := f.record(OpSoftLimits, v); err != nil {
		return err
	}
	f.SoftLimits = on
	return nil
}

// ResetPosition implements motor.Actuator.
func (f *Fake) ResetPosition(a physic.Angle) error { return f.record(OpResetPosition, int64(a)) }

// Last returns the most recent call, or the zero Call.
func (f *Fake) Last() Call {
	if len(f.Calls) == 0 {
		return Call{}
	}
	return f.Calls[len(f.Calls)-1]
}

// Count returns how many times op was called.
func (f *Fake) Count(op string) int {
	n := 0
	for _, c := range f.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Clear forgets recorded calls.
func (f *Fake) Clear() { f.Calls = nil }
