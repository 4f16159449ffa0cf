package motor

import (
	"periph.io/x/conn/v3/physic"

	"github.com/robotcore/mechanism/telemetry"
	"github.com/robotcore/mechanism/units"
)

// Outputs is one motor's measured state, refreshed once per tick.
type Outputs struct {
	Position      physic.Angle
	Velocity      units.AngularVelocity
	SupplyVoltage physic.ElectricPotential
	StatorVoltage physic.ElectricPotential
	StatorCurrent physic.ElectricCurrent
	SupplyCurrent physic.ElectricCurrent
	Temperature   physic.Temperature
}

// Log publishes every measurement below path in SI units.
func (o Outputs) Log(sink telemetry.Sink, path string) {
	sink.Log(telemetry.Join(path, "Position"), units.Radians(o.Position))
	sink.Log(telemetry.Join(path, "Velocity"), o.Velocity.RadiansPerSecond())
	sink.Log(telemetry.Join(path, "Supply Voltage"), units.Volts(o.SupplyVoltage))
	sink.Log(telemetry.Join(path, "Stator Voltage"), units.Volts(o.StatorVoltage))
	sink.Log(telemetry.Join(path, "Stator Current"), units.Amperes(o.StatorCurrent))
	sink.Log(telemetry.Join(path, "Supply Current"), units.Amperes(o.SupplyCurrent))
	sink.Log(telemetry.Join(path, "Temperature"), units.Celsius(o.Temperature))
}
