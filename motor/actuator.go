package motor

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/physic"

	"github.com/robotcore/mechanism/units"
)

var (
	// ErrOperationUnsupported is matched by errors.Is for any control mode
	// the hardware cannot perform.
	ErrOperationUnsupported = errors.New("operation not supported by actuator")

	// ErrInvalidFollowerCount is returned for a negative follower count.
	ErrInvalidFollowerCount = errors.New("follower count must not be negative")

	// ErrUnknownSetpointKind is returned when a setpoint kind has no
	// dispatch.  It indicates a programming error.
	ErrUnknownSetpointKind = errors.New("unknown setpoint kind")
)

// UnsupportedError reports a control mode an actuator cannot perform.
type UnsupportedError struct {
	// Actuator names the hardware, e.g. "feetech"
	Actuator string

	// Op names the operation, e.g. "current control"
	Op string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s: %s not supported", e.Actuator, e.Op)
}

// Is makes errors.Is(err, ErrOperationUnsupported) true.
func (e *UnsupportedError) Is(target error) bool {
	return target == ErrOperationUnsupported
}

// Actuator is the low level motor controller a Driver commands.  Leader and
// followers are addressed together; followers mirror the leader.
//
// Set* calls are made from the control loop and must not block for long.
// UseSoftLimits and ResetPosition return immediately and take effect
// asynchronously; their effect is only observable in later outputs.
type Actuator interface {
	// ReadOutputs fills out[0] with the leader and out[1:] with the followers
	ReadOutputs(out []Outputs) error

	// SetPosition commands closed-loop position control
	SetPosition(physic.Angle) error

	// SetProfiledPosition commands profiled position control
	SetProfiledPosition(physic.Angle) error

	// SetVelocity commands closed-loop velocity control
	SetVelocity(units.AngularVelocity) error

	// SetVoltage commands an open-loop voltage
	SetVoltage(physic.ElectricPotential) error

	// SetCurrent commands current control.  Hardware without it returns an
	// error matching ErrOperationUnsupported.
	SetCurrent(physic.ElectricCurrent) error

	// SetIdle stops driving the motor
	SetIdle() error

	// UseSoftLimits enables or disables the configured soft limits
	UseSoftLimits(bool) error

	// ResetPosition redefines the current sensor reading as the given angle
	ResetPosition(physic.Angle) error
}
