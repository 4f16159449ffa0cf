// Package motor is the hardware facing half of a mechanism: it holds the
// enabled flag and current setpoint, dispatches setpoints to an Actuator
// and caches the measured outputs of a leader motor and its followers.
package motor

import (
	"fmt"

	"periph.io/x/conn/v3/physic"

	"github.com/robotcore/mechanism/setpoint"
	"github.com/robotcore/mechanism/telemetry"
)

// Driver owns one Actuator.  It is not safe for concurrent use; only the
// control loop touches it.
type Driver struct {
	act      Actuator
	enabled  bool
	setpoint setpoint.Setpoint
	outputs  []Outputs
}

// NewDriver returns an enabled driver with an idle setpoint.
func NewDriver(act Actuator, followers int) (*Driver, error) {
	if followers < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFollowerCount, followers)
	}
	return &Driver{
		act:     act,
		enabled: true,
		outputs: make([]Outputs, followers+1),
	}, nil
}

// Enable re-applies the recorded setpoint to the hardware.
func (d *Driver) Enable() error {
	d.enabled = true
	return d.dispatch(d.setpoint)
}

// Disable idles the hardware.  The recorded setpoint is kept so that
// Enable resumes it.
func (d *Driver) Disable() error {
	d.enabled = false
	return d.act.SetIdle()
}

// Enabled reports whether setpoints reach the hardware.
func (d *Driver) Enabled() bool { return d.enabled }

// ApplySetpoint records s and, when enabled, commands it.  While disabled
// the hardware is held idle.  If the hardware rejects s the recorded
// setpoint is unchanged.
func (d *Driver) ApplySetpoint(s setpoint.Setpoint) error {
	var err error
	if d.enabled {
		err = d.dispatch(s)
	} else if s.Kind().Valid() {
		err = d.act.SetIdle()
	} else {
		err = fmt.Errorf("%w: %v", ErrUnknownSetpointKind, s.Kind())
	}
	if err != nil {
		return err
	}
	d.setpoint = s
	return nil
}

func (d *Driver) dispatch(s setpoint.Setpoint) error {
	switch s.Kind() {
	case setpoint.KindIdle:
		return d.act.SetIdle()
	case setpoint.KindPosition:
		a, _ := s.Angle()
		return d.act.SetPosition(a)
	case setpoint.KindProfiledPosition:
		a, _ := s.Angle()
		return d.act.SetProfiledPosition(a)
	case setpoint.KindVelocity:
		v, _ := s.Velocity()
		return d.act.SetVelocity(v)
	case setpoint.KindVoltage:
		v, _ := s.Voltage()
		return d.act.SetVoltage(v)
	case setpoint.KindCurrent:
		c, _ := s.Current()
		return d.act.SetCurrent(c)
	default:
		return fmt.Errorf("%w: %v", ErrUnknownSetpointKind, s.Kind())
	}
}

// Setpoint returns the most recently accepted setpoint.
func (d *Driver) Setpoint() setpoint.Setpoint { return d.setpoint }

// Periodic refreshes the cached outputs.  It makes no control decisions.
func (d *Driver) Periodic() error {
	return d.act.ReadOutputs(d.outputs)
}

// Followers returns the number of follower motors.
func (d *Driver) Followers() int { return len(d.outputs) - 1 }

// Leader returns the leader's latest outputs.
func (d *Driver) Leader() Outputs { return d.outputs[0] }

// Output returns the latest outputs of motor i; 0 is the leader.
func (d *Driver) Output(i int) Outputs { return d.outputs[i] }

// Outputs returns a copy of every motor's latest outputs.
func (d *Driver) Outputs() []Outputs {
	out := make([]Outputs, len(d.outputs))
	copy(out, d.outputs)
	return out
}

// UseSoftLimits forwards to the actuator; the effect is asynchronous.
func (d *Driver) UseSoftLimits(on bool) error {
	return d.act.UseSoftLimits(on)
}

// ResetPosition forwards to the actuator; the effect is asynchronous.
func (d *Driver) ResetPosition(a physic.Angle) error {
	return d.act.ResetPosition(a)
}

// Log publishes the setpoint, the enabled flag and every motor's outputs.
func (d *Driver) Log(sink telemetry.Sink, path string) {
	sink.Log(telemetry.Join(path, "Enabled"), d.enabled)
	sink.Log(telemetry.Join(path, "Setpoint Type"), d.setpoint.Kind().String())
	sink.Log(telemetry.Join(path, "Setpoint Value"), d.setpoint.Magnitude())
	d.outputs[0].Log(sink, telemetry.Join(path, "Main"))
	for i, o := range d.outputs[1:] {
		o.Log(sink, telemetry.Join(path, "Followers", fmt.Sprint(i)))
	}
}
