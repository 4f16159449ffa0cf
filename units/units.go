// Package units extends periph's physic quantities with the angular velocity
// used by rotating mechanisms, and converts between quantities and floating
// point SI values.
//
// All quantities are integer counts of nano-units, so equality and tolerance
// comparisons are exact.
package units

import (
	"fmt"
	"math"

	"periph.io/x/conn/v3/physic"
)

// AngularVelocity is a rate of rotation stored as nanoradians per second.
type AngularVelocity int64

// Angular velocity units.
const (
	NanoRadianPerSecond  AngularVelocity = 1
	MicroRadianPerSecond AngularVelocity = 1000 * NanoRadianPerSecond
	MilliRadianPerSecond AngularVelocity = 1000 * MicroRadianPerSecond
	RadianPerSecond      AngularVelocity = 1000 * MilliRadianPerSecond

	// DegreePerSecond is rounded to the nearest nanoradian per second.
	DegreePerSecond     AngularVelocity = AngularVelocity(physic.Degree)
	RevolutionPerSecond AngularVelocity = AngularVelocity(2 * physic.Pi)
	RPM                 AngularVelocity = RevolutionPerSecond / 60
)

// String renders the velocity in radians per second.
func (v AngularVelocity) String() string {
	return fmt.Sprintf("%.3frad/s", v.RadiansPerSecond())
}

// RadiansPerSecond returns v as a float in rad/s.
func (v AngularVelocity) RadiansPerSecond() float64 {
	return float64(v) / float64(RadianPerSecond)
}

// DegreesPerSecond returns v as a float in deg/s.
func (v AngularVelocity) DegreesPerSecond() float64 {
	return v.RadiansPerSecond() * 180 / math.Pi
}

// Quantity is any of the nano-unit integer quantities.
type Quantity interface {
	~int64
}

// Abs returns the magnitude of q.
func Abs[Q Quantity](q Q) Q {
	if q < 0 {
		return -q
	}
	return q
}

// IsNear reports whether actual lies within tolerance of expected.
// The boundary is inclusive: |actual-expected| == tolerance is near.
func IsNear[Q Quantity](expected, actual, tolerance Q) bool {
	return Abs(actual-expected) <= tolerance
}

// FromRadiansPerSecond converts rad/s to an AngularVelocity.
func FromRadiansPerSecond(f float64) AngularVelocity {
	return AngularVelocity(math.Round(f * float64(RadianPerSecond)))
}

// FromDegreesPerSecond converts deg/s to an AngularVelocity.
func FromDegreesPerSecond(f float64) AngularVelocity {
	return FromRadiansPerSecond(f * math.Pi / 180)
}

// Radians returns a as a float in radians.
func Radians(a physic.Angle) float64 {
	return float64(a) / float64(physic.Radian)
}

// FromRadians converts radians to an Angle.
func FromRadians(f float64) physic.Angle {
	return physic.Angle(math.Round(f * float64(physic.Radian)))
}

// Degrees returns a as a float in degrees.
func Degrees(a physic.Angle) float64 {
	return Radians(a) * 180 / math.Pi
}

// FromDegrees converts degrees to an Angle.
func FromDegrees(f float64) physic.Angle {
	return FromRadians(f * math.Pi / 180)
}

// Volts returns v as a float in volts.
func Volts(v physic.ElectricPotential) float64 {
	return float64(v) / float64(physic.Volt)
}

// FromVolts converts volts to an ElectricPotential.
func FromVolts(f float64) physic.ElectricPotential {
	return physic.ElectricPotential(math.Round(f * float64(physic.Volt)))
}

// Amperes returns c as a float in amperes.
func Amperes(c physic.ElectricCurrent) float64 {
	return float64(c) / float64(physic.Ampere)
}

// FromAmperes converts amperes to an ElectricCurrent.
func FromAmperes(f float64) physic.ElectricCurrent {
	return physic.ElectricCurrent(math.Round(f * float64(physic.Ampere)))
}

// Celsius returns t as a float in degrees Celsius.
func Celsius(t physic.Temperature) float64 {
	return float64(t-physic.ZeroCelsius) / float64(physic.Kelvin)
}

// FromCelsius converts degrees Celsius to a Temperature.
func FromCelsius(f float64) physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(math.Round(f*float64(physic.Kelvin)))
}
