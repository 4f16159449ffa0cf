package component

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/robotcore/mechanism/telemetry"
)

// Subsystem groups named components and ticks them in registration order.
type Subsystem struct {
	names []string
	comps map[string]Component
}

// NewSubsystem returns an empty Subsystem.
func NewSubsystem() *Subsystem {
	return &Subsystem{comps: make(map[string]Component)}
}

// Register adds c under name.
func (s *Subsystem) Register(name string, c Component) error {
	if _, ok := s.comps[name]; ok {
		return fmt.Errorf("component %q already registered", name)
	}
	s.comps[name] = c
	s.names = append(s.names, name)
	return nil
}

// Component looks up a registered component.
func (s *Subsystem) Component(name string) (Component, bool) {
	c, ok := s.comps[name]
	return c, ok
}

// Names lists components in registration order.
func (s *Subsystem) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Periodic ticks every component, even after one fails.
func (s *Subsystem) Periodic() error {
	var err error
	for _, name := range s.names {
		if e := s.comps[name].Periodic(); e != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", name, e))
		}
	}
	return err
}

// Log logs every component below path/name.
func (s *Subsystem) Log(sink telemetry.Sink, path string) {
	for _, name := range s.names {
		s.comps[name].Log(sink, telemetry.Join(path, name))
	}
}
