package component_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"github.com/robotcore/mechanism/component"
	"github.com/robotcore/mechanism/motor"
	"github.com/robotcore/mechanism/motor/motortest"
	"github.com/robotcore/mechanism/sched"
	"github.com/robotcore/mechanism/setpoint"
	"github.com/robotcore/mechanism/telemetry"
	"github.com/robotcore/mechanism/units"
)

func newFakeDriver(t *testing.T, followers int) (*motor.Driver, *motortest.Fake) {
	t.Helper()
	fake := motortest.New(followers)
	d, err := motor.NewDriver(fake, followers)
	require.NoError(t, err)
	return d, fake
}

func TestMotorAccessorsReadLeader(t *testing.T) {
	d, fake := newFakeDriver(t, 1)
	m := component.NewMotor(d)
	fake.Outputs[0] = motor.Outputs{
		Position:      physic.Radian,
		Velocity:      2 * units.RadianPerSecond,
		SupplyVoltage: 12 * physic.Volt,
		StatorVoltage: 6 * physic.Volt,
		StatorCurrent: 30 * physic.Ampere,
		SupplyCurrent: 15 * physic.Ampere,
		Temperature:   units.FromCelsius(40),
	}
	fake.Outputs[1].Position = 5 * physic.Radian
	require.NoError(t, m.Periodic())

	assert.Equal(t, physic.Radian, m.Position())
	assert.Equal(t, 2*units.RadianPerSecond, m.Velocity())
	assert.Equal(t, 12*physic.Volt, m.SupplyVoltage())
	assert.Equal(t, 6*physic.Volt, m.StatorVoltage())
	assert.Equal(t, 30*physic.Ampere, m.StatorCurrent())
	assert.Equal(t, 15*physic.Ampere, m.SupplyCurrent())
	assert.InDelta(t, 40.0, units.Celsius(m.Temperature()), 1e-6)
	assert.Equal(t, 5*physic.Radian, m.Outputs()[1].Position)
}

func TestMotorEnableDisable(t *testing.T) {
	d, fake := newFakeDriver(t, 0)
	m := component.NewMotor(d)
	sp := setpoint.Velocity(units.RadianPerSecond)
	require.NoError(t, m.ApplySetpoint(sp))
	require.NoError(t, m.Disable())
	assert.False(t, m.Enabled())
	assert.Equal(t, sp, m.Setpoint())
	require.NoError(t, m.Enable())
	assert.Equal(t, motortest.OpVelocity, fake.Last().Op)
}

func TestServoResetsToStartAngle(t *testing.T) {
	d, fake := newFakeDriver(t, 0)
	start := 90 * physic.Degree
	_, err := component.NewServo(d, physic.Degree, start)
	require.NoError(t, err)
	assert.Equal(t, motortest.Call{Op: motortest.OpResetPosition, Value: int64(start)}, fake.Last())
}

func TestServoRejectsNegativeTolerance(t *testing.T) {
	d, _ := newFakeDriver(t, 0)
	_, err := component.NewServo(d, -physic.Degree, 0)
	assert.Error(t, err)
}

func TestServoNearIsInclusive(t *testing.T) {
	d, fake := newFakeDriver(t, 0)
	s, err := component.NewServo(d, 2*physic.Degree, 0)
	require.NoError(t, err)

	target := 90 * physic.Degree
	cases := []struct {
		pos  physic.Angle
		near bool
	}{
		{target, true},
		{target + 2*physic.Degree, true},
		{target - 2*physic.Degree, true},
		{target + 2*physic.Degree + 1, false},
		{target - 3*physic.Degree, false},
	}
	for _, c := range cases {
		fake.Outputs[0].Position = c.pos
		require.NoError(t, s.Periodic())
		assert.Equal(t, c.near, s.Near(target), "position %v", c.pos)
	}
}

func TestApplyPositionAndWait(t *testing.T) {
	d, fake := newFakeDriver(t, 0)
	s, err := component.NewServo(d, physic.Degree, 0)
	require.NoError(t, err)

	target := 45 * physic.Degree
	task, err := component.ApplyPositionAndWait(s, setpoint.Position(target))
	require.NoError(t, err)

	done, err := task.Poll()
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, motortest.Call{Op: motortest.OpPosition, Value: int64(target)}, fake.Last())

	fake.Outputs[0].Position = target - physic.Degree/2
	require.NoError(t, s.Periodic())
	done, err = task.Poll()
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 1, fake.Count(motortest.OpPosition))

	_, err = component.ApplyPositionAndWait(s, setpoint.Voltage(physic.Volt))
	assert.Error(t, err)
}

func TestFlywheelNearAndWait(t *testing.T) {
	d, fake := newFakeDriver(t, 0)
	f, err := component.NewFlywheel(d, 50*units.RPM)
	require.NoError(t, err)

	target := 3000 * units.RPM
	task, err := f.ApplyVelocityAndWait(setpoint.Velocity(target))
	require.NoError(t, err)
	done, _ := task.Poll()
	assert.False(t, done)
	assert.Equal(t, motortest.OpVelocity, fake.Last().Op)

	fake.Outputs[0].Velocity = target - 50*units.RPM
	require.NoError(t, f.Periodic())
	assert.True(t, f.Near(target))
	done, _ = task.Poll()
	assert.True(t, done)

	fake.Outputs[0].Velocity = target + 51*units.RPM
	require.NoError(t, f.Periodic())
	assert.False(t, f.Near(target))

	_, err = f.ApplyVelocityAndWait(setpoint.Position(0))
	assert.Error(t, err)
}

func TestTasks(t *testing.T) {
	d, fake := newFakeDriver(t, 0)
	m := component.NewMotor(d)

	_, err := component.DisableTask(m).Poll()
	require.NoError(t, err)
	assert.False(t, m.Enabled())
	_, err = component.EnableTask(m).Poll()
	require.NoError(t, err)
	assert.True(t, m.Enabled())

	volts := physic.Volt
	follow := component.FollowSetpointTask(m, func() setpoint.Setpoint {
		volts += physic.Volt
		return setpoint.Voltage(volts)
	})
	for i := 0; i < 3; i++ {
		done, err := follow.Poll()
		require.NoError(t, err)
		assert.False(t, done)
	}
	assert.Equal(t, setpoint.Voltage(4*physic.Volt), m.Setpoint())
	assert.Equal(t, 3, fake.Count(motortest.OpVoltage))
}

type brokenComponent struct{ n int }

func (b *brokenComponent) Periodic() error {
	b.n++
	return errors.New("no response")
}

func (b *brokenComponent) Log(sink telemetry.Sink, path string) {
	sink.Log(telemetry.Join(path, "Broken"), true)
}

func TestSubsystem(t *testing.T) {
	d, fake := newFakeDriver(t, 0)
	fake.Outputs[0].Position = physic.Radian
	sub := component.NewSubsystem()
	broken := &brokenComponent{}
	pivot := component.NewMotor(d)
	require.NoError(t, sub.Register("Broken", broken))
	require.NoError(t, sub.Register("Pivot", pivot))
	assert.Error(t, sub.Register("Pivot", pivot))
	assert.Equal(t, []string{"Broken", "Pivot"}, sub.Names())

	err := sub.Periodic()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Broken: no response")
	assert.Equal(t, physic.Radian, pivot.Position())

	rec := telemetry.NewRecorder()
	sub.Log(rec, "Arm")
	_, ok := rec.Get("Arm/Pivot/Main/Position")
	assert.True(t, ok)
	_, ok = rec.Get("Arm/Broken/Broken")
	assert.True(t, ok)

	c, ok := sub.Component("Pivot")
	assert.True(t, ok)
	assert.Equal(t, component.Component(pivot), c)
}

func TestSubsystemOnLoop(t *testing.T) {
	d, fake := newFakeDriver(t, 0)
	s, err := component.NewServo(d, physic.Degree, 0)
	require.NoError(t, err)
	sub := component.NewSubsystem()
	require.NoError(t, sub.Register("Wrist", s))

	rec := telemetry.NewRecorder()
	loop := sched.NewLoop(0, sched.WithSink(rec))
	require.NoError(t, loop.Register("Arm", sub))

	task, err := component.ApplyPositionAndWait(s, setpoint.ProfiledPosition(physic.Radian))
	require.NoError(t, err)
	h := loop.Schedule(task)
	require.NoError(t, loop.Tick())
	assert.False(t, h.Done())

	fake.Outputs[0].Position = physic.Radian
	require.NoError(t, loop.Tick())
	assert.True(t, h.Done())
	v, _ := rec.Get("Arm/Wrist/Setpoint Type")
	assert.Equal(t, "profiled_position", v)
}
