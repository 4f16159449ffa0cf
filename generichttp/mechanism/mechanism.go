// Package mechanism provides an HTTP interface to mechanism components
package mechanism

/*
Like the motion controller wrapper this is modeled on, the routes bound
depend on which of the small interfaces below the component satisfies.
Handlers never touch the component directly; every call is marshalled onto
the control loop through an Executor.
*/
import (
	"context"
	"encoding/json"
	"go/types"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/robotcore/mechanism/generichttp"
	"github.com/robotcore/mechanism/motor"
	"github.com/robotcore/mechanism/setpoint"
	"github.com/robotcore/mechanism/units"
)

// DefaultTimeout bounds how long a handler waits for the control loop
const DefaultTimeout = time.Second

// Executor runs fn on the goroutine that owns the mechanism and waits
// for it.  sched.Loop satisfies this.
type Executor interface {
	Do(ctx context.Context, fn func()) error
}

// Mechanism is the minimum a component needs to be served
type Mechanism interface {
	// Setpoint returns the last accepted setpoint
	Setpoint() setpoint.Setpoint

	// ApplySetpoint commands the mechanism
	ApplySetpoint(setpoint.Setpoint) error

	// Outputs returns the latest measurements, leader first
	Outputs() []motor.Outputs
}

// Enabler can be switched on and off
type Enabler interface {
	Enable() error
	Disable() error
	Enabled() bool
}

// Configurer exposes the actuator configuration calls
type Configurer interface {
	UseSoftLimits(bool) error
	ResetPosition(physic.Angle) error
}

// PositionNearer reports arrival at an angle
type PositionNearer interface {
	Near(physic.Angle) bool
}

// VelocityNearer reports arrival at an angular velocity
type VelocityNearer interface {
	Near(units.AngularVelocity) bool
}

// Homer is a mechanism that homes itself
type Homer interface {
	Homing() bool
	NeedsToHome() bool
	RequireHoming()
}

// OutputsJSON is motor.Outputs in SI units
type OutputsJSON struct {
	Position      float64 `json:"position"`
	Velocity      float64 `json:"velocity"`
	SupplyVoltage float64 `json:"supplyVoltage"`
	StatorVoltage float64 `json:"statorVoltage"`
	StatorCurrent float64 `json:"statorCurrent"`
	SupplyCurrent float64 `json:"supplyCurrent"`
	Temperature   float64 `json:"temperature"`
}

// NewOutputsJSON converts o
func NewOutputsJSON(o motor.Outputs) OutputsJSON {
	return OutputsJSON{
		Position:      units.Radians(o.Position),
		Velocity:      o.Velocity.RadiansPerSecond(),
		SupplyVoltage: units.Volts(o.SupplyVoltage),
		StatorVoltage: units.Volts(o.StatorVoltage),
		StatorCurrent: units.Amperes(o.StatorCurrent),
		SupplyCurrent: units.Amperes(o.SupplyCurrent),
		Temperature:   units.Celsius(o.Temperature),
	}
}

// HomingJSON is the homing state of a Homer
type HomingJSON struct {
	Homing      bool `json:"homing"`
	NeedsToHome bool `json:"needsToHome"`
}

// HTTPMechanism wraps a mechanism in an HTTP interface
type HTTPMechanism struct {
	Mechanism

	RouteTable generichttp.RouteTable
}

// NewHTTPMechanism returns a new HTTP wrapper with the route table
// pre-configured for every interface m satisfies
func NewHTTPMechanism(m Mechanism, exec Executor) HTTPMechanism {
	w := HTTPMechanism{Mechanism: m}
	c := Caller{Exec: exec, Timeout: DefaultTimeout}
	rt := generichttp.RouteTable{}
	HTTPSetpoint(m, c, rt)
	if enabler, ok := m.(Enabler); ok {
		HTTPEnable(enabler, c, rt)
	}
	if configurer, ok := m.(Configurer); ok {
		HTTPConfigure(configurer, c, rt)
	}
	if nearer, ok := m.(PositionNearer); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/near"}] = NearPosition(nearer, c)
	} else if nearer, ok := m.(VelocityNearer); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/near"}] = NearVelocity(nearer, c)
	}
	if homer, ok := m.(Homer); ok {
		HTTPHome(homer, c, rt)
	}
	w.RouteTable = rt
	return w
}

// RT satisfies the HTTPer interface
func (h HTTPMechanism) RT() generichttp.RouteTable {
	return h.RouteTable
}

// Caller runs functions on an Executor with a deadline tied to the request
type Caller struct {
	Exec    Executor
	Timeout time.Duration
}

// unavailableError is returned by Caller.Do when the executor did not get
// to the call in time
type unavailableError struct {
	err error
}

func (e unavailableError) Error() string {
	return "control loop unavailable: " + e.err.Error()
}

func (e unavailableError) Unwrap() error { return e.err }

// StatusCode satisfies generichttp.StatusCoder
func (e unavailableError) StatusCode() int { return http.StatusServiceUnavailable }

// Do runs fn on the executor, giving up after Timeout.  A call the executor
// picks up after Do has given up is dropped, so fn runs only if Do returns
// nil.
func (c Caller) Do(r *http.Request, fn func()) error {
	ctx, cancel := context.WithTimeout(r.Context(), c.Timeout)
	defer cancel()
	var claimed atomic.Bool
	done := make(chan struct{})
	err := c.Exec.Do(ctx, func() {
		if !claimed.CompareAndSwap(false, true) {
			return
		}
		defer close(done)
		fn()
	})
	if err == nil {
		return nil
	}
	if claimed.CompareAndSwap(false, true) {
		return unavailableError{err: err}
	}
	// the executor started fn before giving up on it
	<-done
	return nil
}

// Run calls fn on the executor and replies 200, 500 with fn's error, or
// 503 if the executor did not get to it in time
func (c Caller) Run(w http.ResponseWriter, r *http.Request, fn func() error) {
	if err := c.call(r, fn); err != nil {
		generichttp.ReplyError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// call runs fn on the executor and returns either the executor's error or
// fn's
func (c Caller) call(r *http.Request, fn func() error) error {
	var err error
	if lerr := c.Do(r, func() { err = fn() }); lerr != nil {
		return lerr
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

// HTTPSetpoint adds the setpoint, outputs and position routes to the table
func HTTPSetpoint(m Mechanism, c Caller, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/setpoint"}] = GetSetpoint(m, c)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/setpoint"}] = SetSetpoint(m, c)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/outputs"}] = GetOutputs(m, c)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/position"}] = GetPosition(m, c)
}

// GetSetpoint returns an HTTP handler func that replies with the current
// setpoint as {"kind": ..., "value": ...} in SI units
func GetSetpoint(m Mechanism, c Caller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sp setpoint.Setpoint
		if err := c.Do(r, func() { sp = m.Setpoint() }); err != nil {
			generichttp.ReplyError(w, err)
			return
		}
		writeJSON(w, sp)
	}
}

// SetSetpoint returns an HTTP handler func that applies the setpoint in
// the request body
func SetSetpoint(m Mechanism, c Caller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sp setpoint.Setpoint
		err := json.NewDecoder(r.Body).Decode(&sp)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		c.Run(w, r, func() error { return m.ApplySetpoint(sp) })
	}
}

// GetOutputs returns an HTTP handler func that replies with every motor's
// outputs, leader first
func GetOutputs(m Mechanism, c Caller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var outs []motor.Outputs
		if err := c.Do(r, func() { outs = m.Outputs() }); err != nil {
			generichttp.ReplyError(w, err)
			return
		}
		payload := make([]OutputsJSON, len(outs))
		for i, o := range outs {
			payload[i] = NewOutputsJSON(o)
		}
		writeJSON(w, payload)
	}
}

// HTTPEnable adds routes for the enabler to the route table
func HTTPEnable(e Enabler, c Caller, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/enabled"}] = GetEnabled(e, c)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/enabled"}] = SetEnabled(e, c)
}

// GetEnabled returns an HTTP handler func that replies with whether the
// mechanism is enabled
func GetEnabled(e Enabler, c Caller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		generichttp.GetBool(func() (bool, error) {
			var enabled bool
			err := c.Do(r, func() { enabled = e.Enabled() })
			return enabled, err
		})(w, r)
	}
}

// SetEnabled returns an HTTP handler func that enables or disables the
// mechanism
func SetEnabled(e Enabler, c Caller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		generichttp.SetBool(func(on bool) error {
			return c.call(r, func() error {
				if on {
					return e.Enable()
				}
				return e.Disable()
			})
		})(w, r)
	}
}

// HTTPConfigure adds the soft limit and sensor routes to the table
func HTTPConfigure(cf Configurer, c Caller, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/softlimits"}] = SetSoftLimits(cf, c)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/position"}] = ResetPosition(cf, c)
}

// SetSoftLimits returns an HTTP handler func that turns the actuator's
// soft limits on or off with {"bool": ...}
func SetSoftLimits(cf Configurer, c Caller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		generichttp.SetBool(func(on bool) error {
			return c.call(r, func() error { return cf.UseSoftLimits(on) })
		})(w, r)
	}
}

// ResetPosition returns an HTTP handler func that redefines the current
// sensor reading as {"f64": radians}
func ResetPosition(cf Configurer, c Caller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		generichttp.SetFloat(func(rad float64) error {
			return c.call(r, func() error { return cf.ResetPosition(units.FromRadians(rad)) })
		})(w, r)
	}
}

// GetPosition returns an HTTP handler func that replies with the leader's
// position as {"f64": radians}
func GetPosition(m Mechanism, c Caller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		generichttp.GetFloat(func() (float64, error) {
			var pos physic.Angle
			err := c.Do(r, func() { pos = m.Outputs()[0].Position })
			return units.Radians(pos), err
		})(w, r)
	}
}

func queryFloat(r *http.Request, key string) (float64, error) {
	return strconv.ParseFloat(r.URL.Query().Get(key), 64)
}

// NearPosition returns an HTTP handler func answering whether the
// mechanism is near ?target= radians
func NearPosition(n PositionNearer, c Caller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, err := queryFloat(r, "target")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var near bool
		if err := c.Do(r, func() { near = n.Near(units.FromRadians(target)) }); err != nil {
			generichttp.ReplyError(w, err)
			return
		}
		hp := generichttp.HumanPayload{T: types.Bool, Bool: near}
		hp.EncodeAndRespond(w, r)
	}
}

// NearVelocity returns an HTTP handler func answering whether the
// mechanism is near ?target= radians per second
func NearVelocity(n VelocityNearer, c Caller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, err := queryFloat(r, "target")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var near bool
		if err := c.Do(r, func() { near = n.Near(units.FromRadiansPerSecond(target)) }); err != nil {
			generichttp.ReplyError(w, err)
			return
		}
		hp := generichttp.HumanPayload{T: types.Bool, Bool: near}
		hp.EncodeAndRespond(w, r)
	}
}

// HTTPHome adds the homing routes to the table
func HTTPHome(h Homer, c Caller, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/homing"}] = GetHoming(h, c)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/homing"}] = RequireHoming(h, c)
}

// GetHoming returns an HTTP handler func that replies with the homing state
func GetHoming(h Homer, c Caller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var st HomingJSON
		err := c.Do(r, func() {
			st = HomingJSON{Homing: h.Homing(), NeedsToHome: h.NeedsToHome()}
		})
		if err != nil {
			generichttp.ReplyError(w, err)
			return
		}
		writeJSON(w, st)
	}
}

// RequireHoming returns an HTTP handler func that, given {"bool": true},
// marks the mechanism as needing to home.  The search itself starts the
// next time the mechanism is commanded home.
func RequireHoming(h Homer, c Caller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		generichttp.SetBool(func(on bool) error {
			if !on {
				return nil
			}
			return c.call(r, func() error {
				h.RequireHoming()
				return nil
			})
		})(w, r)
	}
}
