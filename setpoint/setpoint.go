// Package setpoint defines the closed set of control commands a motor can be
// asked to follow.
//
// A Setpoint carries exactly one kind and one value; the unit of the value
// is fixed by the kind. Setpoints are immutable values and compare with ==.
// The zero Setpoint is Idle.
package setpoint

import (
	"encoding/json"
	"fmt"
	"strings"

	"periph.io/x/conn/v3/physic"

	"github.com/robotcore/mechanism/units"
)

// Kind enumerates the control modes.
type Kind uint8

const (
	// KindIdle stops driving the motor (coast or brake per actuator config)
	KindIdle Kind = iota

	// KindPosition is closed-loop position control to an angle
	KindPosition

	// KindProfiledPosition is position control along a motion profile
	// generated by the actuator
	KindProfiledPosition

	// KindVelocity is closed-loop velocity control
	KindVelocity

	// KindVoltage is open-loop voltage output
	KindVoltage

	// KindCurrent is torque-current control
	KindCurrent
)

var kindNames = [...]string{
	KindIdle:             "idle",
	KindPosition:         "position",
	KindProfiledPosition: "profiled_position",
	KindVelocity:         "velocity",
	KindVoltage:          "voltage",
	KindCurrent:          "current",
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// Valid reports whether k is one of the six kinds.
func (k Kind) Valid() bool {
	return int(k) < len(kindNames)
}

// IsPosition is true for position and profiled position.
func (k Kind) IsPosition() bool {
	return k == KindPosition || k == KindProfiledPosition
}

// ParseKind converts a wire name to a Kind.  It is case insensitive and
// accepts "-" or " " in place of "_".
func ParseKind(s string) (Kind, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	for k, name := range kindNames {
		if name == norm {
			return Kind(k), nil
		}
	}
	return KindIdle, fmt.Errorf("unknown setpoint kind %q", s)
}

// Setpoint is a single control command.
type Setpoint struct {
	kind  Kind
	value int64
}

// Idle returns the idle setpoint.
func Idle() Setpoint { return Setpoint{} }

// Position returns a closed-loop position setpoint.
func Position(a physic.Angle) Setpoint {
	return Setpoint{kind: KindPosition, value: int64(a)}
}

// ProfiledPosition returns a profiled position setpoint.
func ProfiledPosition(a physic.Angle) Setpoint {
	return Setpoint{kind: KindProfiledPosition, value: int64(a)}
}

// Velocity returns a closed-loop velocity setpoint.
func Velocity(v units.AngularVelocity) Setpoint {
	return Setpoint{kind: KindVelocity, value: int64(v)}
}

// Voltage returns an open-loop voltage setpoint.
func Voltage(v physic.ElectricPotential) Setpoint {
	return Setpoint{kind: KindVoltage, value: int64(v)}
}

// Current returns a current setpoint.
func Current(c physic.ElectricCurrent) Setpoint {
	return Setpoint{kind: KindCurrent, value: int64(c)}
}

// Kind returns the kind of s.
func (s Setpoint) Kind() Kind { return s.kind }

// Angle returns the target of a position or profiled position setpoint.
func (s Setpoint) Angle() (physic.Angle, bool) {
	return physic.Angle(s.value), s.kind.IsPosition()
}

// Velocity returns the target of a velocity setpoint.
func (s Setpoint) Velocity() (units.AngularVelocity, bool) {
	return units.AngularVelocity(s.value), s.kind == KindVelocity
}

// Voltage returns the output of a voltage setpoint.
func (s Setpoint) Voltage() (physic.ElectricPotential, bool) {
	return physic.ElectricPotential(s.value), s.kind == KindVoltage
}

// Current returns the output of a current setpoint.
func (s Setpoint) Current() (physic.ElectricCurrent, bool) {
	return physic.ElectricCurrent(s.value), s.kind == KindCurrent
}

// Targets reports whether s is a position or profiled position setpoint
// whose target is exactly a.
func (s Setpoint) Targets(a physic.Angle) bool {
	target, ok := s.Angle()
	return ok && target == a
}

// Magnitude returns the value in SI base units: radians, radians per
// second, volts or amperes.  Idle has magnitude 0.
func (s Setpoint) Magnitude() float64 {
	switch s.kind {
	case KindPosition, KindProfiledPosition:
		return units.Radians(physic.Angle(s.value))
	case KindVelocity:
		return units.AngularVelocity(s.value).RadiansPerSecond()
	case KindVoltage:
		return units.Volts(physic.ElectricPotential(s.value))
	case KindCurrent:
		return units.Amperes(physic.ElectricCurrent(s.value))
	default:
		return 0
	}
}

// Parse builds a setpoint of kind k from a value in SI base units.
func Parse(k Kind, value float64) (Setpoint, error) {
	switch k {
	case KindIdle:
		return Idle(), nil
	case KindPosition:
		return Position(units.FromRadians(value)), nil
	case KindProfiledPosition:
		return ProfiledPosition(units.FromRadians(value)), nil
	case KindVelocity:
		return Velocity(units.FromRadiansPerSecond(value)), nil
	case KindVoltage:
		return Voltage(units.FromVolts(value)), nil
	case KindCurrent:
		return Current(units.FromAmperes(value)), nil
	default:
		return Idle(), fmt.Errorf("unknown setpoint kind %v", k)
	}
}

func (s Setpoint) String() string {
	switch s.kind {
	case KindIdle:
		return "idle"
	case KindPosition, KindProfiledPosition:
		return fmt.Sprintf("%s(%s)", s.kind, physic.Angle(s.value))
	case KindVelocity:
		return fmt.Sprintf("%s(%s)", s.kind, units.AngularVelocity(s.value))
	case KindVoltage:
		return fmt.Sprintf("%s(%s)", s.kind, physic.ElectricPotential(s.value))
	case KindCurrent:
		return fmt.Sprintf("%s(%s)", s.kind, physic.ElectricCurrent(s.value))
	default:
		return fmt.Sprintf("%s(%d)", s.kind, s.value)
	}
}

type wire struct {
	Kind  string  `json:"kind"`
	Value float64 `json:"value"`
}

// MarshalJSON encodes s as {"kind": ..., "value": ...} with the value in SI
// base units.
func (s Setpoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(wire{Kind: s.kind.String(), Value: s.Magnitude()})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (s *Setpoint) UnmarshalJSON(b []byte) error {
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	k, err := ParseKind(w.Kind)
	if err != nil {
		return err
	}
	parsed, err := Parse(k, w.Value)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
