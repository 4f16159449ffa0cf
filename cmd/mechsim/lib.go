package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/edaniels/golog"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/physic"

	"github.com/robotcore/mechanism/clock"
	"github.com/robotcore/mechanism/component"
	"github.com/robotcore/mechanism/config"
	"github.com/robotcore/mechanism/feetechio"
	"github.com/robotcore/mechanism/generichttp"
	"github.com/robotcore/mechanism/generichttp/mechanism"
	"github.com/robotcore/mechanism/motor"
	"github.com/robotcore/mechanism/sched"
	"github.com/robotcore/mechanism/server/middleware/locker"
	"github.com/robotcore/mechanism/sim"
	"github.com/robotcore/mechanism/telemetry"
	"github.com/robotcore/mechanism/util"
	"github.com/robotcore/mechanism/worker"
)

// Mechanism is what every configured type builds: something the loop can
// tick and HTTP can command.
type Mechanism interface {
	component.Component
	mechanism.Mechanism
}

// Rig is the running robot: a loop, the mechanisms it ticks and the
// resources they hold.
type Rig struct {
	Loop     *sched.Loop
	Recorder *telemetry.Recorder

	// Robot holds every mechanism in config order; it is the loop's only
	// participant
	Robot *component.Subsystem

	mechs  map[string]Mechanism
	limits map[string]*util.Limiter[physic.Angle]
	exec   *worker.Executor
	closer []io.Closer
	logger golog.Logger
	clk    clock.Clock

	// active is the robot enable flag homing waits on; loop goroutine only
	active bool
}

// RigOption configures Build.
type RigOption func(*Rig)

// WithClock sets the clock the mocks and debouncers use.
func WithClock(c clock.Clock) RigOption {
	return func(r *Rig) { r.clk = c }
}

// Build constructs every mechanism in c and registers it on a new loop.
// On error everything opened so far is closed.
func Build(c config.Config, logger golog.Logger, opts ...RigOption) (*Rig, error) {
	r := &Rig{
		Recorder: telemetry.NewRecorder(),
		Robot:    component.NewSubsystem(),
		mechs:    make(map[string]Mechanism),
		limits:   make(map[string]*util.Limiter[physic.Angle]),
		logger:   logger,
		clk:      clock.System,
		active:   true,
	}
	for _, opt := range opts {
		opt(r)
	}
	sink := telemetry.Multi{r.Recorder}
	if c.TelemetryLog > 0 {
		sink = append(sink, telemetry.NewLogSink(logger.Named("telemetry"), c.TelemetryLog))
	}
	r.Loop = sched.NewLoop(c.Period, sched.WithLogger(logger.Named("loop")), sched.WithSink(sink))
	r.exec = worker.New(worker.WithLogger(logger.Named("worker")))

	for _, m := range c.Mechanisms {
		if err := r.add(m); err != nil {
			return nil, multierr.Append(fmt.Errorf("%s: %w", m.Name, err), r.Close())
		}
	}
	if err := r.Loop.Register("", r.Robot); err != nil {
		return nil, multierr.Append(err, r.Close())
	}
	return r, nil
}

func (r *Rig) add(m config.Mechanism) error {
	act, err := r.actuator(m)
	if err != nil {
		return err
	}
	driver, err := motor.NewDriver(act, m.Followers)
	if err != nil {
		return err
	}
	opts := []component.Option{
		component.WithLogger(r.logger.Named(m.Name)),
		component.WithClock(r.clk),
		component.WithActive(func() bool { return r.active }),
	}
	var mech Mechanism
	switch m.Type {
	case config.TypeMotor:
		mech = component.NewMotor(driver, opts...)
	case config.TypeServo:
		mech, err = component.NewServo(driver, m.AngleTolerance(), m.Start(), opts...)
	case config.TypeFlywheel:
		mech, err = component.NewFlywheel(driver, m.VelocityTolerance(), opts...)
	case config.TypeHomingServo:
		var hc component.HomingConfig
		if hc, err = m.HomingConfig(); err == nil {
			mech, err = component.NewHomingServo(driver, m.AngleTolerance(), m.Start(), hc, opts...)
		}
	default:
		err = fmt.Errorf("unknown type %q", m.Type)
	}
	if err != nil {
		return err
	}
	if err := r.Robot.Register(m.Name, mech); err != nil {
		return err
	}
	r.mechs[m.Name] = mech
	r.limits[m.Name] = m.SoftLimits()
	r.logger.Infow("mechanism ready", "name", m.Name, "type", m.Type, "actuator", m.Actuator)
	return nil
}

func (r *Rig) actuator(m config.Mechanism) (motor.Actuator, error) {
	switch m.Actuator {
	case config.ActuatorSim, "":
		opts := []sim.Option{sim.WithName(m.Name), sim.WithClock(r.clk)}
		if lim := m.SoftLimits(); lim != nil {
			opts = append(opts, sim.WithSoftLimits(*lim))
		}
		if m.Sim.AsyncConfigure {
			opts = append(opts, sim.WithExecutor(r.exec))
		}
		return sim.New(m.SimParams(), opts...), nil
	case config.ActuatorFeetech:
		act, err := feetechio.Open(feetechio.Config{
			Port:     m.Feetech.Port,
			BaudRate: m.Feetech.BaudRate,
			IDs:      m.Feetech.IDs,
			Timeout:  m.Feetech.Timeout,
			Limits:   m.SoftLimits(),
		})
		if err != nil {
			return nil, err
		}
		r.closer = append(r.closer, act)
		return act, nil
	default:
		return nil, fmt.Errorf("unknown actuator %q", m.Actuator)
	}
}

// Names lists the mechanisms in tick order.
func (r *Rig) Names() []string { return r.Robot.Names() }

// Mechanism returns the named mechanism.  Use it only on the loop
// goroutine.
func (r *Rig) Mechanism(name string) (Mechanism, bool) {
	m, ok := r.mechs[name]
	return m, ok
}

// Do runs fn on the loop goroutine with the default HTTP timeout.
func (r *Rig) Do(fn func()) error {
	ctx, cancel := context.WithTimeout(context.Background(), mechanism.DefaultTimeout)
	defer cancel()
	return r.Loop.Do(ctx, fn)
}

// Close stops the worker and releases hardware.
func (r *Rig) Close() error {
	err := r.exec.Close()
	for _, c := range r.closer {
		err = multierr.Append(err, c.Close())
	}
	return err
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// BuildMux mounts every mechanism of the rig under /<name>.  The root also
// serves /endpoints, listing every route, /telemetry, the latest tick's
// values, and /robot/enabled, the enable flag homing waits on.
func BuildMux(r *Rig) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}

	for _, name := range r.Robot.Names() {
		httper := mechanism.NewHTTPMechanism(r.mechs[name], r.Loop)

		// limits are checked here as well as by the actuator, so a bad
		// request never becomes the recorded setpoint
		limiter := mechanism.LimitMiddleware{Limits: r.limits[name]}
		limiter.Inject(httper)

		lock := locker.New()
		locker.Inject(httper, lock)

		hndlS := generichttp.SubMuxSanitize(name)
		supergraph[hndlS] = httper.RT().Endpoints()

		sub := chi.NewRouter()
		sub.Use(lock.Check)
		sub.Use(limiter.Check)
		httper.RT().Bind(sub)
		root.Mount(hndlS, sub)
	}

	root.Get("/endpoints", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, supergraph)
	})
	root.Get("/telemetry", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, r.Recorder.Snapshot())
	})
	root.Get("/robot/enabled", generichttp.GetBool(func() (bool, error) {
		var on bool
		err := r.Do(func() { on = r.active })
		return on, err
	}))
	root.Post("/robot/enabled", generichttp.SetBool(func(on bool) error {
		return r.Do(func() {
			r.active = on
			r.logger.Infow("robot enable changed", "enabled", on)
		})
	}))
	return root
}
