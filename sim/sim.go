// Package sim provides a mock actuator: a single rotating mechanism between
// two hard stops, with first order response to every control mode.
//
// It exists so mechanisms, homing and the HTTP surface can run without
// hardware.  It is not a physics model; speeds change instantly.
package sim

import (
	"math"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/robotcore/mechanism/clock"
	"github.com/robotcore/mechanism/motor"
	"github.com/robotcore/mechanism/setpoint"
	"github.com/robotcore/mechanism/units"
	"github.com/robotcore/mechanism/util"
	"github.com/robotcore/mechanism/worker"
)

// NominalVoltage is the voltage FreeSpeed and StallCurrent are quoted at.
const NominalVoltage = 12 * physic.Volt

// Params describe the mocked mechanism.  Angles are in the mechanism frame,
// which the sensor reading differs from by whatever ResetPosition set.
type Params struct {
	// FreeSpeed and StallCurrent are quoted at NominalVoltage
	FreeSpeed    units.AngularVelocity
	StallCurrent physic.ElectricCurrent

	// PositionGain is rad/s commanded per radian of position error
	PositionGain    float64
	MaxSpeed        units.AngularVelocity
	ProfiledSpeed   units.AngularVelocity
	MinStop         physic.Angle
	MaxStop         physic.Angle
	Start           physic.Angle
	SupplyVoltage   physic.ElectricPotential
	Temperature     physic.Temperature
	SupportsCurrent bool
}

// DefaultParams is a small pivot with about 115 degrees of travel.
func DefaultParams() Params {
	return Params{
		FreeSpeed:       10 * units.RadianPerSecond,
		StallCurrent:    100 * physic.Ampere,
		PositionGain:    10,
		MaxSpeed:        5 * units.RadianPerSecond,
		ProfiledSpeed:   2 * units.RadianPerSecond,
		MinStop:         0,
		MaxStop:         2 * physic.Radian,
		SupplyVoltage:   NominalVoltage,
		Temperature:     units.FromCelsius(25),
		SupportsCurrent: true,
	}
}

// Actuator is a mock motor.Actuator.  It is safe for concurrent use, since
// configuration calls may land from a worker.
type Actuator struct {
	sync.Mutex
	p       Params
	name    string
	clk     clock.Clock
	exec    *worker.Executor
	limits  *util.Limiter[physic.Angle]
	softOn  bool
	last    time.Time
	cmd     setpoint.Setpoint
	pos     physic.Angle
	vel     units.AngularVelocity
	offset  physic.Angle
	voltage physic.ElectricPotential
	current physic.ElectricCurrent
}

// Option configures an Actuator.
type Option func(*Actuator)

// WithClock sets the time source the mechanism integrates over.
func WithClock(c clock.Clock) Option {
	return func(a *Actuator) { a.clk = c }
}

// WithExecutor makes UseSoftLimits and ResetPosition take effect on e
// rather than immediately.
func WithExecutor(e *worker.Executor) Option {
	return func(a *Actuator) { a.exec = e }
}

// WithSoftLimits sets soft limits in the sensor frame and enables them.
func WithSoftLimits(l util.Limiter[physic.Angle]) Option {
	return func(a *Actuator) {
		a.limits = &l
		a.softOn = true
	}
}

// WithName names the actuator in errors and logs.
func WithName(name string) Option {
	return func(a *Actuator) { a.name = name }
}

// New returns an idle mock at p.Start.
func New(p Params, opts ...Option) *Actuator {
	a := &Actuator{p: p, name: "sim", clk: clock.System, pos: p.Start}
	for _, opt := range opts {
		opt(a)
	}
	a.last = a.clk.Now()
	return a
}

// MechanismPosition is the true position, ignoring any sensor reset.
func (a *Actuator) MechanismPosition() physic.Angle {
	a.Lock()
	defer a.Unlock()
	return a.pos
}

// SoftLimitsEnabled reports whether soft limits are in force.
func (a *Actuator) SoftLimitsEnabled() bool {
	a.Lock()
	defer a.Unlock()
	return a.softOn
}

// Command returns the active control command.
func (a *Actuator) Command() setpoint.Setpoint {
	a.Lock()
	defer a.Unlock()
	return a.cmd
}

func (a *Actuator) freeSpeed() float64 { return a.p.FreeSpeed.RadiansPerSecond() }

// commanded returns the speed the active command asks for in rad/s, given
// dt seconds to the next sample.
func (a *Actuator) commanded(dt float64) float64 {
	switch a.cmd.Kind() {
	case setpoint.KindVoltage:
		v, _ := a.cmd.Voltage()
		return a.freeSpeed() * units.Volts(v) / units.Volts(NominalVoltage)
	case setpoint.KindCurrent:
		c, _ := a.cmd.Current()
		return a.freeSpeed() * units.Amperes(c) / units.Amperes(a.p.StallCurrent)
	case setpoint.KindVelocity:
		v, _ := a.cmd.Velocity()
		return v.RadiansPerSecond()
	case setpoint.KindPosition, setpoint.KindProfiledPosition:
		target, _ := a.cmd.Angle()
		if a.softOn && a.limits != nil {
			target = a.limits.Clamp(target)
		}
		errRad := units.Radians(target - (a.pos + a.offset))
		limit := a.p.MaxSpeed.RadiansPerSecond()
		if a.cmd.Kind() == setpoint.KindProfiledPosition {
			limit = a.p.ProfiledSpeed.RadiansPerSecond()
		}
		want := util.Clamp(a.p.PositionGain*errRad, -limit, limit)
		if dt > 0 && math.Abs(want*dt) >= math.Abs(errRad) {
			want = errRad / dt
		}
		return want
	default:
		return 0
	}
}

func (a *Actuator) step(now time.Time) {
	dt := now.Sub(a.last).Seconds()
	a.last = now
	if dt < 0 {
		dt = 0
	}
	want := a.commanded(dt)

	applied := units.Volts(NominalVoltage) * want / a.freeSpeed()
	if v, ok := a.cmd.Voltage(); ok {
		applied = units.Volts(v)
	}

	next := a.pos + units.FromRadians(want*dt)
	if a.softOn && a.limits != nil {
		// limits are in the sensor frame
		lo, hi := a.limits.Min-a.offset, a.limits.Max-a.offset
		if want > 0 && next > hi {
			next, want = max(hi, a.pos), 0
		}
		if want < 0 && next < lo {
			next, want = min(lo, a.pos), 0
		}
	}
	if next <= a.p.MinStop {
		next = a.p.MinStop
		want = math.Max(want, 0)
	}
	if next >= a.p.MaxStop {
		next = a.p.MaxStop
		want = math.Min(want, 0)
	}
	a.pos = next
	a.vel = units.FromRadiansPerSecond(want)

	backEMF := units.Volts(NominalVoltage) * want / a.freeSpeed()
	a.voltage = units.FromVolts(applied)
	a.current = units.FromAmperes(units.Amperes(a.p.StallCurrent) * (applied - backEMF) / units.Volts(NominalVoltage))
	if c, ok := a.cmd.Current(); ok {
		a.current = c
	}
}

// ReadOutputs advances the mechanism to now and reports it.  Followers
// mirror the leader.
func (a *Actuator) ReadOutputs(out []motor.Outputs) error {
	a.Lock()
	defer a.Unlock()
	a.step(a.clk.Now())
	supplyCurrent := physic.ElectricCurrent(0)
	if a.p.SupplyVoltage != 0 {
		supplyCurrent = units.FromAmperes(math.Abs(units.Amperes(a.current) * units.Volts(a.voltage) / units.Volts(a.p.SupplyVoltage)))
	}
	o := motor.Outputs{
		Position:      a.pos + a.offset,
		Velocity:      a.vel,
		SupplyVoltage: a.p.SupplyVoltage,
		StatorVoltage: a.voltage,
		StatorCurrent: a.current,
		SupplyCurrent: supplyCurrent,
		Temperature:   a.p.Temperature,
	}
	for i := range out {
		out[i] = o
	}
	return nil
}

func (a *Actuator) command(s setpoint.Setpoint) error {
	a.Lock()
	defer a.Unlock()
	a.step(a.clk.Now())
	a.cmd = s
	return nil
}

// SetPosition implements motor.Actuator.
func (a *Actuator) SetPosition(p physic.Angle) error { return a.command(setpoint.Position(p)) }

// SetProfiledPosition implements motor.Actuator.
func (a *Actuator) SetProfiledPosition(p physic.Angle) error {
	return a.command(setpoint.ProfiledPosition(p))
}

// SetVelocity implements motor.Actuator.
func (a *Actuator) SetVelocity(v units.AngularVelocity) error { return a.command(setpoint.Velocity(v)) }

// SetVoltage implements motor.Actuator.
func (a *Actuator) SetVoltage(v physic.ElectricPotential) error {
	return a.command(setpoint.Voltage(v))
}

// SetCurrent implements motor.Actuator.  It is unsupported unless
// Params.SupportsCurrent is set.
func (a *Actuator) SetCurrent(c physic.ElectricCurrent) error {
	if !a.p.SupportsCurrent {
		return &motor.UnsupportedError{Actuator: a.name, Op: "current control"}
	}
	return a.command(setpoint.Current(c))
}

// SetIdle implements motor.Actuator.
func (a *Actuator) SetIdle() error { return a.command(setpoint.Idle()) }

func (a *Actuator) configure(name string, fn func()) error {
	op := func() error {
		a.Lock()
		defer a.Unlock()
		a.step(a.clk.Now())
		fn()
		return nil
	}
	if a.exec == nil {
		return op()
	}
	return a.exec.Submit(a.name+" "+name, op)
}

// UseSoftLimits implements motor.Actuator.  Without configured limits it
// only records the flag.
func (a *Actuator) UseSoftLimits(on bool) error {
	return a.configure("soft limits", func() { a.softOn = on })
}

// ResetPosition implements motor.Actuator: from now on the sensor reads p
// at the current mechanism position.
func (a *Actuator) ResetPosition(p physic.Angle) error {
	return a.configure("reset position", func() { a.offset = p - a.pos })
}
