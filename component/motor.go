package component

import (
	"github.com/edaniels/golog"
	"periph.io/x/conn/v3/physic"

	"github.com/robotcore/mechanism/motor"
	"github.com/robotcore/mechanism/setpoint"
	"github.com/robotcore/mechanism/telemetry"
	"github.com/robotcore/mechanism/units"
)

// Motor is the basic component: a thin face over a motor.Driver.
type Motor struct {
	driver *motor.Driver
	logger golog.Logger
}

// NewMotor wraps driver.
func NewMotor(driver *motor.Driver, opts ...Option) *Motor {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Motor{driver: driver, logger: o.logger}
}

// Driver returns the underlying driver.
func (m *Motor) Driver() *motor.Driver { return m.driver }

// Position of the leader.
func (m *Motor) Position() physic.Angle { return m.driver.Leader().Position }

// Velocity of the leader.
func (m *Motor) Velocity() units.AngularVelocity { return m.driver.Leader().Velocity }

// SupplyVoltage of the leader.
func (m *Motor) SupplyVoltage() physic.ElectricPotential { return m.driver.Leader().SupplyVoltage }

// StatorVoltage of the leader.
func (m *Motor) StatorVoltage() physic.ElectricPotential { return m.driver.Leader().StatorVoltage }

// StatorCurrent of the leader.
func (m *Motor) StatorCurrent() physic.ElectricCurrent { return m.driver.Leader().StatorCurrent }

// SupplyCurrent of the leader.
func (m *Motor) SupplyCurrent() physic.ElectricCurrent { return m.driver.Leader().SupplyCurrent }

// Temperature of the leader.
func (m *Motor) Temperature() physic.Temperature { return m.driver.Leader().Temperature }

// Outputs copies every motor's outputs, leader first.
func (m *Motor) Outputs() []motor.Outputs { return m.driver.Outputs() }

// Setpoint returns the recorded setpoint.
func (m *Motor) Setpoint() setpoint.Setpoint { return m.driver.Setpoint() }

// ApplySetpoint forwards to the driver.
func (m *Motor) ApplySetpoint(s setpoint.Setpoint) error {
	return m.driver.ApplySetpoint(s)
}

// Enable forwards to the driver.
func (m *Motor) Enable() error { return m.driver.Enable() }

// Disable forwards to the driver.
func (m *Motor) Disable() error { return m.driver.Disable() }

// Enabled forwards to the driver.
func (m *Motor) Enabled() bool { return m.driver.Enabled() }

// UseSoftLimits forwards to the driver.
func (m *Motor) UseSoftLimits(on bool) error { return m.driver.UseSoftLimits(on) }

// ResetPosition forwards to the driver.
func (m *Motor) ResetPosition(a physic.Angle) error { return m.driver.ResetPosition(a) }

// Periodic refreshes outputs.
func (m *Motor) Periodic() error { return m.driver.Periodic() }

// Log publishes driver state below path.
func (m *Motor) Log(sink telemetry.Sink, path string) { m.driver.Log(sink, path) }
