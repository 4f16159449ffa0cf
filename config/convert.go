package config

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"

	"github.com/robotcore/mechanism/component"
	"github.com/robotcore/mechanism/setpoint"
	"github.com/robotcore/mechanism/sim"
	"github.com/robotcore/mechanism/units"
	"github.com/robotcore/mechanism/util"
)

// Setpoint converts s from file units.
func (s SetpointSpec) Setpoint() (setpoint.Setpoint, error) {
	k, err := setpoint.ParseKind(s.Kind)
	if err != nil {
		return setpoint.Idle(), err
	}
	switch k {
	case setpoint.KindPosition:
		return setpoint.Position(units.FromDegrees(s.Value)), nil
	case setpoint.KindProfiledPosition:
		return setpoint.ProfiledPosition(units.FromDegrees(s.Value)), nil
	case setpoint.KindVelocity:
		return setpoint.Velocity(units.FromDegreesPerSecond(s.Value)), nil
	default:
		return setpoint.Parse(k, s.Value)
	}
}

// HomingConfig converts the homing section and validates it.
func (m Mechanism) HomingConfig() (component.HomingConfig, error) {
	if m.Homing == nil {
		return component.HomingConfig{}, errors.New("no homing section")
	}
	h := m.Homing
	home := units.FromDegrees(h.HomePosition)
	cfg := component.HomingConfig{
		HomePosition:      home,
		VelocityThreshold: units.FromDegreesPerSecond(h.VelocityThreshold),
		Voltage:           units.FromVolts(h.Voltage),
		Debounce:          h.Debounce,
		HoldSetpoint:      setpoint.Position(home),
	}
	if h.Hold != nil {
		hold, err := h.Hold.Setpoint()
		if err != nil {
			return cfg, errors.Wrap(err, "hold")
		}
		cfg.HoldSetpoint = hold
	}
	return cfg, cfg.Validate()
}

// AngleTolerance is Epsilon as an angle.
func (m Mechanism) AngleTolerance() physic.Angle { return units.FromDegrees(m.Epsilon) }

// VelocityTolerance is Epsilon as an angular velocity.
func (m Mechanism) VelocityTolerance() units.AngularVelocity {
	return units.FromDegreesPerSecond(m.Epsilon)
}

// Start is StartAngle as an angle.
func (m Mechanism) Start() physic.Angle { return units.FromDegrees(m.StartAngle) }

// SoftLimits converts Limits, or returns nil.
func (m Mechanism) SoftLimits() *util.Limiter[physic.Angle] {
	if m.Limits == nil {
		return nil
	}
	return &util.Limiter[physic.Angle]{
		Min: units.FromDegrees(m.Limits.Min),
		Max: units.FromDegrees(m.Limits.Max),
	}
}

// SimParams overlays the sim section on sim.DefaultParams.
func (m Mechanism) SimParams() sim.Params {
	p := sim.DefaultParams()
	s := m.Sim
	if s.FreeSpeed != 0 {
		p.FreeSpeed = units.FromDegreesPerSecond(s.FreeSpeed)
	}
	if s.StallCurrent != 0 {
		p.StallCurrent = units.FromAmperes(s.StallCurrent)
	}
	if s.MinStop != 0 {
		p.MinStop = units.FromDegrees(s.MinStop)
	}
	if s.MaxStop != 0 {
		p.MaxStop = units.FromDegrees(s.MaxStop)
	}
	p.Start = units.FromDegrees(s.Start)
	p.SupportsCurrent = !s.NoCurrent
	return p
}
