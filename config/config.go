// Package config loads the description of the mechanisms to run.
//
// Configuration is layered with koanf: built in defaults, then a YAML file,
// then MECHSIM_ environment variables.  Angles are written in degrees,
// angular velocities in degrees per second, voltages in volts, currents in
// amperes and durations as Go duration strings ("100ms").
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// EnvPrefix prefixes environment overrides, e.g. MECHSIM_ADDR=:9000.
const EnvPrefix = "MECHSIM_"

// Mechanism types.
const (
	TypeMotor       = "motor"
	TypeServo       = "servo"
	TypeFlywheel    = "flywheel"
	TypeHomingServo = "homing_servo"
)

// Actuator kinds.
const (
	ActuatorSim     = "sim"
	ActuatorFeetech = "feetech"
)

// SetpointSpec is a setpoint as written in a file.
type SetpointSpec struct {
	// Kind is one of idle, position, profiled_position, velocity, voltage, current
	Kind string `koanf:"kind" yaml:"kind"`

	// Value is in degrees, degrees per second, volts or amperes by kind
	Value float64 `koanf:"value" yaml:"value"`
}

// Homing configures a homing_servo.
type Homing struct {
	HomePosition      float64       `koanf:"home_position" yaml:"home_position"`
	VelocityThreshold float64       `koanf:"velocity_threshold" yaml:"velocity_threshold"`
	Voltage           float64       `koanf:"voltage" yaml:"voltage"`
	Debounce          time.Duration `koanf:"debounce" yaml:"debounce"`

	// Hold defaults to a position setpoint at HomePosition
	Hold *SetpointSpec `koanf:"hold" yaml:"hold,omitempty"`
}

// Limits are soft travel limits in degrees.
type Limits struct {
	Min float64 `koanf:"min" yaml:"min"`
	Max float64 `koanf:"max" yaml:"max"`
}

// Sim configures the mock actuator.  Zero fields take sim defaults.
type Sim struct {
	FreeSpeed      float64 `koanf:"free_speed" yaml:"free_speed"`
	StallCurrent   float64 `koanf:"stall_current" yaml:"stall_current"`
	MinStop        float64 `koanf:"min_stop" yaml:"min_stop"`
	MaxStop        float64 `koanf:"max_stop" yaml:"max_stop"`
	Start          float64 `koanf:"start" yaml:"start"`
	NoCurrent      bool    `koanf:"no_current" yaml:"no_current"`
	AsyncConfigure bool    `koanf:"async_configure" yaml:"async_configure"`
}

// Feetech configures a Feetech STS bus.
type Feetech struct {
	Port     string        `koanf:"port" yaml:"port"`
	BaudRate int           `koanf:"baud_rate" yaml:"baud_rate"`
	IDs      []int         `koanf:"ids" yaml:"ids"`
	Timeout  time.Duration `koanf:"timeout" yaml:"timeout"`
}

// Mechanism describes one component and its actuator.
type Mechanism struct {
	// Name is unique and becomes the URL stem and telemetry path
	Name string `koanf:"name" yaml:"name"`

	// Type is motor, servo, flywheel or homing_servo
	Type string `koanf:"type" yaml:"type"`

	// Actuator is sim or feetech
	Actuator string `koanf:"actuator" yaml:"actuator"`

	Followers int `koanf:"followers" yaml:"followers"`

	// Epsilon is the arrival tolerance, degrees or degrees per second
	Epsilon float64 `koanf:"epsilon" yaml:"epsilon"`

	// StartAngle is the sensor reading assumed at power on, degrees
	StartAngle float64 `koanf:"start_angle" yaml:"start_angle"`

	Limits  *Limits `koanf:"limits" yaml:"limits,omitempty"`
	Homing  *Homing `koanf:"homing" yaml:"homing,omitempty"`
	Sim     Sim     `koanf:"sim" yaml:"sim"`
	Feetech Feetech `koanf:"feetech" yaml:"feetech"`
}

// Config is the whole file.
type Config struct {
	// Addr is the address to listen at
	Addr string `koanf:"addr" yaml:"addr"`

	// Period is the control loop period
	Period time.Duration `koanf:"period" yaml:"period"`

	// TelemetryLog is the minimum spacing of telemetry log lines; zero
	// disables them
	TelemetryLog time.Duration `koanf:"telemetry_log" yaml:"telemetry_log"`

	Mechanisms []Mechanism `koanf:"mechanisms" yaml:"mechanisms"`
}

// Default is the configuration before any file is read.
func Default() Config {
	return Config{
		Addr:       ":8000",
		Period:     20 * time.Millisecond,
		Mechanisms: []Mechanism{},
	}
}

// Example is a complete configuration written by mkconf.
func Example() Config {
	c := Default()
	c.Mechanisms = []Mechanism{
		{
			Name:       "elevator",
			Type:       TypeHomingServo,
			Actuator:   ActuatorSim,
			Followers:  1,
			Epsilon:    1,
			StartAngle: 0,
			Limits:     &Limits{Min: 0, Max: 110},
			Homing: &Homing{
				HomePosition:      0,
				VelocityThreshold: 0.5,
				Voltage:           -2,
				Debounce:          100 * time.Millisecond,
				Hold:              &SetpointSpec{Kind: "position", Value: 0},
			},
			Sim: Sim{Start: 12, MaxStop: 115, AsyncConfigure: true},
		},
		{
			Name:     "shooter",
			Type:     TypeFlywheel,
			Actuator: ActuatorSim,
			Epsilon:  60,
			Sim:      Sim{MinStop: -1e9, MaxStop: 1e9},
		},
	}
	return c
}

// Load layers defaults, the YAML file at path (if it exists) and the
// environment.  A missing file is not an error.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, errors.Wrap(err, "load defaults")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, errors.Wrapf(err, "load %s", path)
		}
	}
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return Config{}, errors.Wrap(err, "load environment")
	}
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	return c, c.Validate()
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var err error
	if c.Period <= 0 {
		err = multierr.Append(err, errors.Errorf("period must be positive, got %v", c.Period))
	}
	seen := map[string]bool{}
	for i, m := range c.Mechanisms {
		if seen[m.Name] {
			err = multierr.Append(err, errors.Errorf("mechanism %d: duplicate name %q", i, m.Name))
		}
		seen[m.Name] = true
		if e := m.Validate(); e != nil {
			err = multierr.Append(err, errors.Wrapf(e, "mechanism %d (%s)", i, m.Name))
		}
	}
	return err
}

// Validate checks one mechanism.
func (m Mechanism) Validate() error {
	var err error
	if m.Name == "" || strings.ContainsAny(m.Name, "/ ") {
		err = multierr.Append(err, errors.Errorf("name %q must be non-empty without spaces or slashes", m.Name))
	}
	switch m.Type {
	case TypeMotor, TypeServo, TypeFlywheel:
	case TypeHomingServo:
		if m.Homing == nil {
			err = multierr.Append(err, errors.New("homing_servo needs a homing section"))
		} else if _, e := m.HomingConfig(); e != nil {
			err = multierr.Append(err, e)
		}
	default:
		err = multierr.Append(err, errors.Errorf("unknown type %q", m.Type))
	}
	switch m.Actuator {
	case ActuatorSim, "":
	case ActuatorFeetech:
		if len(m.Feetech.IDs) != m.Followers+1 {
			err = multierr.Append(err, errors.Errorf("feetech needs %d ids, got %d", m.Followers+1, len(m.Feetech.IDs)))
		}
	default:
		err = multierr.Append(err, errors.Errorf("unknown actuator %q", m.Actuator))
	}
	if m.Followers < 0 {
		err = multierr.Append(err, errors.Errorf("followers must not be negative, got %d", m.Followers))
	}
	if m.Epsilon < 0 {
		err = multierr.Append(err, errors.Errorf("epsilon must not be negative, got %v", m.Epsilon))
	}
	if m.Limits != nil && m.Limits.Min > m.Limits.Max {
		err = multierr.Append(err, errors.Errorf("limits min %v exceeds max %v", m.Limits.Min, m.Limits.Max))
	}
	return err
}
