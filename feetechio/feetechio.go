// Package feetechio drives Feetech STS serial bus servos as a
// motor.Actuator.  The first ID is the leader; the rest follow it.
//
// STS servos run their own position loop with a built in acceleration
// ramp, so plain and profiled position both map to a goal position write.
// Velocity, voltage and current control are not exposed.
package feetechio

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"periph.io/x/conn/v3/physic"

	"github.com/robotcore/mechanism/clock"
	"github.com/robotcore/mechanism/motor"
	"github.com/robotcore/mechanism/units"
	"github.com/robotcore/mechanism/util"
)

const (
	// StepsPerRevolution is the encoder resolution of STS servos.
	StepsPerRevolution = 4096

	// CenterStep is the raw reading at zero angle.
	CenterStep = 2048

	// DefaultBaudRate is the STS factory baud rate.
	DefaultBaudRate = 1_000_000

	name = "feetech"
)

// FromSteps converts a raw position to an angle about CenterStep.
func FromSteps(raw int) physic.Angle {
	return physic.Angle(int64(raw-CenterStep) * int64(2*physic.Pi) / StepsPerRevolution)
}

// ToSteps converts an angle to the nearest raw position, clamped to the
// encoder range.
func ToSteps(a physic.Angle) int {
	steps := units.Radians(a) * StepsPerRevolution / (2 * math.Pi)
	raw := CenterStep + int(math.Round(steps))
	return util.Clamp(raw, 0, StepsPerRevolution-1)
}

// Config locates the servos.
type Config struct {
	// Port is the serial device, e.g. /dev/ttyUSB0
	Port string

	// BaudRate defaults to DefaultBaudRate
	BaudRate int

	// IDs lists servo IDs, leader first
	IDs []int

	// Timeout bounds each bus transaction
	Timeout time.Duration

	// Limits are soft limits in the sensor frame, enabled when set
	Limits *util.Limiter[physic.Angle]
}

// Actuator is a group of STS servos.  It is not safe for concurrent use.
type Actuator struct {
	bus     *feetech.Bus
	group   *feetech.ServoGroup
	ids     []int
	timeout time.Duration
	clk     clock.Clock

	torque bool
	softOn bool
	limits *util.Limiter[physic.Angle]

	// sensor reading = raw angle + offset
	offset physic.Angle
	raw    []physic.Angle
	prev   []physic.Angle
	prevAt time.Time
}

// Open connects to the bus.
func Open(cfg Config) (*Actuator, error) {
	if len(cfg.IDs) == 0 {
		return nil, fmt.Errorf("%s: no servo IDs", name)
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 50 * time.Millisecond
	}
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.Port,
		BaudRate: cfg.BaudRate,
		Protocol: feetech.ProtocolSTS,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}
	a := newActuator(cfg)
	a.bus = bus
	a.group = feetech.NewServoGroupByIDs(bus, cfg.IDs...)
	return a, nil
}

func newActuator(cfg Config) *Actuator {
	return &Actuator{
		ids:     cfg.IDs,
		timeout: cfg.Timeout,
		clk:     clock.System,
		limits:  cfg.Limits,
		softOn:  cfg.Limits != nil,
		raw:     make([]physic.Angle, len(cfg.IDs)),
		prev:    make([]physic.Angle, len(cfg.IDs)),
	}
}

// Followers is the number of servos after the leader.
func (a *Actuator) Followers() int { return len(a.ids) - 1 }

// Close releases the serial port.
func (a *Actuator) Close() error {
	return a.bus.Close()
}

func (a *Actuator) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), a.timeout)
}

// ReadOutputs reads every position in one sync read.  Velocity is the
// difference from the previous read.
func (a *Actuator) ReadOutputs(out []motor.Outputs) error {
	ctx, cancel := a.ctx()
	defer cancel()
	positions, err := a.group.Positions(ctx)
	if err != nil {
		return fmt.Errorf("read positions: %w", err)
	}
	now := a.clk.Now()
	dt := now.Sub(a.prevAt).Seconds()
	first := a.prevAt.IsZero()
	for i, id := range a.ids {
		a.raw[i] = FromSteps(positions[id])
		if i >= len(out) {
			continue
		}
		out[i].Position = a.raw[i] + a.offset
		if !first && dt > 0 {
			out[i].Velocity = units.FromRadiansPerSecond(units.Radians(a.raw[i]-a.prev[i]) / dt)
		}
	}
	copy(a.prev, a.raw)
	a.prevAt = now
	return nil
}

// SetPosition writes a goal position to every servo, clamped to the soft
// limits when they are on.
func (a *Actuator) SetPosition(p physic.Angle) error {
	if a.softOn && a.limits != nil {
		p = a.limits.Clamp(p)
	}
	ctx, cancel := a.ctx()
	defer cancel()
	if !a.torque {
		if err := a.group.EnableAll(ctx); err != nil {
			return fmt.Errorf("enable torque: %w", err)
		}
		a.torque = true
	}
	goal := make(feetech.PositionMap, len(a.ids))
	for _, id := range a.ids {
		goal[id] = ToSteps(p - a.offset)
	}
	if err := a.group.SetPositions(ctx, goal); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}
	return nil
}

// SetProfiledPosition is SetPosition; the servo ramps on its own.
func (a *Actuator) SetProfiledPosition(p physic.Angle) error { return a.SetPosition(p) }

// SetVelocity implements motor.Actuator; it is unsupported.
func (a *Actuator) SetVelocity(units.AngularVelocity) error {
	return &motor.UnsupportedError{Actuator: name, Op: "velocity control"}
}

// SetVoltage implements motor.Actuator; it is unsupported.
func (a *Actuator) SetVoltage(physic.ElectricPotential) error {
	return &motor.UnsupportedError{Actuator: name, Op: "voltage control"}
}

// SetCurrent implements motor.Actuator; it is unsupported.
func (a *Actuator) SetCurrent(physic.ElectricCurrent) error {
	return &motor.UnsupportedError{Actuator: name, Op: "current control"}
}

// SetIdle releases torque.
func (a *Actuator) SetIdle() error {
	ctx, cancel := a.ctx()
	defer cancel()
	if err := a.group.DisableAll(ctx); err != nil {
		return fmt.Errorf("disable torque: %w", err)
	}
	a.torque = false
	return nil
}

// UseSoftLimits toggles clamping of goal positions.
func (a *Actuator) UseSoftLimits(on bool) error {
	a.softOn = on
	return nil
}

// ResetPosition re-zeroes the sensor frame against the last read.
func (a *Actuator) ResetPosition(p physic.Angle) error {
	a.offset = p - a.raw[0]
	return nil
}
