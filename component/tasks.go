package component

import (
	"github.com/robotcore/mechanism/sched"
	"github.com/robotcore/mechanism/setpoint"
)

// Applier accepts setpoints.  Tasks take an Applier rather than a *Motor so
// that a HomingServo's own ApplySetpoint is the one called.
type Applier interface {
	ApplySetpoint(setpoint.Setpoint) error
}

// Switch enables and disables a mechanism.
type Switch interface {
	Enable() error
	Disable() error
}

// ApplySetpointTask applies s once and finishes.
func ApplySetpointTask(a Applier, s setpoint.Setpoint) sched.Task {
	return sched.Once(func() error { return a.ApplySetpoint(s) })
}

// FollowSetpointTask applies next() every tick until cancelled.
func FollowSetpointTask(a Applier, next func() setpoint.Setpoint) sched.Task {
	return sched.Run(func() error { return a.ApplySetpoint(next()) })
}

// EnableTask enables sw once.
func EnableTask(sw Switch) sched.Task {
	return sched.Once(sw.Enable)
}

// DisableTask disables sw once.
func DisableTask(sw Switch) sched.Task {
	return sched.Once(sw.Disable)
}
