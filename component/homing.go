package component

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/physic"

	"github.com/robotcore/mechanism/debounce"
	"github.com/robotcore/mechanism/motor"
	"github.com/robotcore/mechanism/setpoint"
	"github.com/robotcore/mechanism/telemetry"
	"github.com/robotcore/mechanism/units"
)

// HomingConfig describes how a servo finds its reference.
type HomingConfig struct {
	// HomePosition is the angle the hard stop sits at; reaching home resets
	// the sensor to it
	HomePosition physic.Angle

	// VelocityThreshold is the speed at or below which the mechanism counts
	// as stalled
	VelocityThreshold units.AngularVelocity

	// Voltage drives the mechanism into the stop
	Voltage physic.ElectricPotential

	// Debounce is how long the stall must persist
	Debounce time.Duration

	// HoldSetpoint is applied once homed; it must be a position setpoint
	// targeting HomePosition exactly
	HoldSetpoint setpoint.Setpoint
}

// Validate reports every inconsistency in c.  It is stricter than a plain
// position check: a hold setpoint away from home would re-arm homing the
// moment it is applied, so it is rejected.
func (c HomingConfig) Validate() error {
	var err error
	if !c.HoldSetpoint.Kind().IsPosition() {
		err = multierr.Append(err, fmt.Errorf("hold setpoint %v is not a position setpoint", c.HoldSetpoint))
	} else if !c.HoldSetpoint.Targets(c.HomePosition) {
		err = multierr.Append(err, fmt.Errorf("hold setpoint %v does not target home %v", c.HoldSetpoint, c.HomePosition))
	}
	if c.VelocityThreshold < 0 {
		err = multierr.Append(err, fmt.Errorf("velocity threshold must not be negative, got %v", c.VelocityThreshold))
	}
	if c.Debounce < 0 {
		err = multierr.Append(err, fmt.Errorf("debounce must not be negative, got %v", c.Debounce))
	}
	return err
}

// HomingServo is a servo that re-establishes its reference by driving into
// a hard stop whenever it is commanded home and needs to.
//
// It starts out needing to home.  When the setpoint targets home and the
// servo is near home, it turns soft limits off and applies the homing
// voltage.  Once velocity has stayed at or below the threshold for the
// debounce window while the robot is active and the servo is enabled, the
// sensor is reset to home and the hold setpoint applied.  Any setpoint applied through
// ApplySetpoint during the search cancels it; a setpoint away from home
// also marks the servo as needing to home again.
type HomingServo struct {
	*Servo
	cfg         HomingConfig
	active      func() bool
	stall       *debounce.Debouncer
	homing      bool
	needsToHome bool
}

// NewHomingServo wraps driver.  start is the sensor reading assumed at
// power on.
func NewHomingServo(driver *motor.Driver, epsilon, start physic.Angle, cfg HomingConfig, opts ...Option) (*HomingServo, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("homing config: %w", err)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	servo, err := NewServo(driver, epsilon, start, opts...)
	if err != nil {
		return nil, err
	}
	return &HomingServo{
		Servo:       servo,
		cfg:         cfg,
		active:      o.active,
		stall:       debounce.New(cfg.Debounce, debounce.Rising, o.clock),
		needsToHome: true,
	}, nil
}

// Config returns the homing configuration.
func (h *HomingServo) Config() HomingConfig { return h.cfg }

// Homing reports whether the servo is driving into its stop.
func (h *HomingServo) Homing() bool { return h.homing }

// NeedsToHome reports whether the next command home will search for the
// stop.
func (h *HomingServo) NeedsToHome() bool { return h.needsToHome }

// RequireHoming forces a search the next time the servo is commanded home.
func (h *HomingServo) RequireHoming() { h.needsToHome = true }

// Periodic refreshes outputs and advances the homing state.  The stall
// filter is fed on the tick the search begins.
func (h *HomingServo) Periodic() error {
	if err := h.Servo.Periodic(); err != nil {
		return err
	}
	if !h.homing {
		if !h.needsToHome || !h.Setpoint().Targets(h.cfg.HomePosition) || !h.Near(h.cfg.HomePosition) {
			return nil
		}
		if err := h.beginHoming(); err != nil {
			return err
		}
	}
	if !h.active() || !h.Enabled() {
		// no voltage reaches the motor while disabled, so a stall seen
		// now says nothing about the stop
		h.stall.Reset()
		return nil
	}
	stalled := units.Abs(h.Velocity()) <= h.cfg.VelocityThreshold
	if h.stall.Calculate(stalled) {
		return h.finishHoming()
	}
	return nil
}

func (h *HomingServo) beginHoming() error {
	if err := h.UseSoftLimits(false); err != nil {
		return fmt.Errorf("begin homing: %w", err)
	}
	if err := h.Servo.ApplySetpoint(setpoint.Voltage(h.cfg.Voltage)); err != nil {
		return multierr.Append(fmt.Errorf("begin homing: %w", err), h.UseSoftLimits(true))
	}
	h.stall.Reset()
	h.homing = true
	h.logger.Infow("homing started", "home", h.cfg.HomePosition, "voltage", h.cfg.Voltage)
	return nil
}

func (h *HomingServo) finishHoming() error {
	if err := h.ResetPosition(h.cfg.HomePosition); err != nil {
		return fmt.Errorf("finish homing: %w", err)
	}
	h.needsToHome = false
	h.logger.Infow("homing complete", "home", h.cfg.HomePosition)
	return h.ApplySetpoint(h.cfg.HoldSetpoint)
}

// ApplySetpoint applies s, ending any search in progress.  A setpoint
// that does not target home re-arms homing.
func (h *HomingServo) ApplySetpoint(s setpoint.Setpoint) error {
	if err := h.Servo.ApplySetpoint(s); err != nil {
		return err
	}
	var err error
	if h.homing {
		h.homing = false
		err = h.UseSoftLimits(true)
		if h.needsToHome {
			h.logger.Infow("homing cancelled", "setpoint", s)
		}
	}
	if !s.Targets(h.cfg.HomePosition) {
		h.needsToHome = true
	}
	return err
}

// Log adds the homing flags to the servo's telemetry.
func (h *HomingServo) Log(sink telemetry.Sink, path string) {
	h.Servo.Log(sink, path)
	sink.Log(telemetry.Join(path, "Homing", "Is Homing"), h.homing)
	sink.Log(telemetry.Join(path, "Homing", "Needs To Home"), h.needsToHome)
}
