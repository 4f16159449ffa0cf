package component

import (
	"fmt"

	"periph.io/x/conn/v3/physic"

	"github.com/robotcore/mechanism/motor"
	"github.com/robotcore/mechanism/sched"
	"github.com/robotcore/mechanism/setpoint"
	"github.com/robotcore/mechanism/units"
)

// Servo is a position controlled motor with an arrival tolerance.
type Servo struct {
	*Motor
	epsilon physic.Angle
}

// NewServo wraps driver and resets the sensor to start, which is where the
// mechanism is assumed to rest at power on.
func NewServo(driver *motor.Driver, epsilon, start physic.Angle, opts ...Option) (*Servo, error) {
	if epsilon < 0 {
		return nil, fmt.Errorf("servo tolerance must not be negative, got %v", epsilon)
	}
	s := &Servo{Motor: NewMotor(driver, opts...), epsilon: epsilon}
	if err := s.ResetPosition(start); err != nil {
		return nil, fmt.Errorf("reset to start angle: %w", err)
	}
	return s, nil
}

// Epsilon is the arrival tolerance.
func (s *Servo) Epsilon() physic.Angle { return s.epsilon }

// Near reports whether the leader is within Epsilon of target, inclusive.
func (s *Servo) Near(target physic.Angle) bool {
	return units.IsNear(target, s.Position(), s.epsilon)
}

// WaitForPosition finishes on the first tick the servo is near target.
func (s *Servo) WaitForPosition(target physic.Angle) sched.Task {
	return sched.WaitUntil(func() bool { return s.Near(target) })
}

// PositionServo is a servo as seen by tasks: HomingServo satisfies it with
// its own ApplySetpoint.
type PositionServo interface {
	Applier
	Near(physic.Angle) bool
}

// ApplyPositionAndWait applies a position or profiled position setpoint
// and finishes once the servo is near its target.
func ApplyPositionAndWait(s PositionServo, sp setpoint.Setpoint) (sched.Task, error) {
	target, ok := sp.Angle()
	if !ok {
		return nil, fmt.Errorf("%v is not a position setpoint", sp)
	}
	return sched.Sequence(
		ApplySetpointTask(s, sp),
		sched.WaitUntil(func() bool { return s.Near(target) }),
	), nil
}
