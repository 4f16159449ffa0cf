package component

import (
	"fmt"

	"github.com/robotcore/mechanism/motor"
	"github.com/robotcore/mechanism/sched"
	"github.com/robotcore/mechanism/setpoint"
	"github.com/robotcore/mechanism/units"
)

// Flywheel is a velocity controlled motor with an arrival tolerance.
type Flywheel struct {
	*Motor
	epsilon units.AngularVelocity
}

// NewFlywheel wraps driver.
func NewFlywheel(driver *motor.Driver, epsilon units.AngularVelocity, opts ...Option) (*Flywheel, error) {
	if epsilon < 0 {
		return nil, fmt.Errorf("flywheel tolerance must not be negative, got %v", epsilon)
	}
	return &Flywheel{Motor: NewMotor(driver, opts...), epsilon: epsilon}, nil
}

// Epsilon is the arrival tolerance.
func (f *Flywheel) Epsilon() units.AngularVelocity { return f.epsilon }

// Near reports whether the leader is within Epsilon of target, inclusive.
func (f *Flywheel) Near(target units.AngularVelocity) bool {
	return units.IsNear(target, f.Velocity(), f.epsilon)
}

// WaitForVelocity finishes on the first tick the flywheel is near target.
func (f *Flywheel) WaitForVelocity(target units.AngularVelocity) sched.Task {
	return sched.WaitUntil(func() bool { return f.Near(target) })
}

// ApplyVelocityAndWait applies a velocity setpoint and finishes once the
// flywheel is near it.
func (f *Flywheel) ApplyVelocityAndWait(sp setpoint.Setpoint) (sched.Task, error) {
	target, ok := sp.Velocity()
	if !ok {
		return nil, fmt.Errorf("%v is not a velocity setpoint", sp)
	}
	return sched.Sequence(ApplySetpointTask(f, sp), f.WaitForVelocity(target)), nil
}
