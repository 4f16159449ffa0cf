package mechanism_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"github.com/robotcore/mechanism/component"
	"github.com/robotcore/mechanism/generichttp/mechanism"
	"github.com/robotcore/mechanism/motor"
	"github.com/robotcore/mechanism/motor/motortest"
	"github.com/robotcore/mechanism/setpoint"
	"github.com/robotcore/mechanism/units"
	"github.com/robotcore/mechanism/util"
)

// inline runs calls on the caller's goroutine.
type inline struct{ calls int }

func (i *inline) Do(ctx context.Context, fn func()) error {
	i.calls++
	fn()
	return nil
}

// stalled never gets around to running anything.
type stalled struct{}

func (stalled) Do(ctx context.Context, fn func()) error {
	<-ctx.Done()
	return ctx.Err()
}

// late gives up at the deadline but keeps the call, like a loop that is
// slow to drain its queue.
type late struct{ queued []func() }

func (l *late) Do(ctx context.Context, fn func()) error {
	l.queued = append(l.queued, fn)
	<-ctx.Done()
	return ctx.Err()
}

// overrun runs the call and then reports the deadline anyway.
type overrun struct{}

func (overrun) Do(ctx context.Context, fn func()) error {
	fn()
	return context.DeadlineExceeded
}

func serve(t *testing.T, h mechanism.HTTPMechanism, mw ...func(http.Handler) http.Handler) *chi.Mux {
	t.Helper()
	r := chi.NewRouter()
	r.Use(mw...)
	h.RT().Bind(r)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func newServo(t *testing.T) (*component.Servo, *motortest.Fake) {
	t.Helper()
	fake := motortest.New(1)
	d, err := motor.NewDriver(fake, 1)
	require.NoError(t, err)
	s, err := component.NewServo(d, physic.Degree, 0)
	require.NoError(t, err)
	return s, fake
}

func TestServoRoutes(t *testing.T) {
	s, _ := newServo(t)
	h := mechanism.NewHTTPMechanism(s, &inline{})
	assert.Equal(t, []string{
		"GET /enabled", "POST /enabled",
		"GET /near",
		"GET /outputs",
		"GET /position", "POST /position",
		"GET /setpoint", "POST /setpoint",
		"POST /softlimits",
	}, h.RT().Endpoints())
}

func TestFlywheelAndHomingRoutes(t *testing.T) {
	fake := motortest.New(0)
	d, err := motor.NewDriver(fake, 0)
	require.NoError(t, err)
	f, err := component.NewFlywheel(d, 10*units.RPM)
	require.NoError(t, err)
	assert.Contains(t, mechanism.NewHTTPMechanism(f, &inline{}).RT().Endpoints(), "GET /near")

	d, err = motor.NewDriver(motortest.New(0), 0)
	require.NoError(t, err)
	hs, err := component.NewHomingServo(d, physic.Degree, 0, component.HomingConfig{
		Voltage:      -physic.Volt,
		HoldSetpoint: setpoint.Position(0),
	})
	require.NoError(t, err)
	eps := mechanism.NewHTTPMechanism(hs, &inline{}).RT().Endpoints()
	assert.Contains(t, eps, "GET /homing")
	assert.Contains(t, eps, "POST /homing")
}

func TestSetpointRoundTrip(t *testing.T) {
	s, fake := newServo(t)
	exec := &inline{}
	r := serve(t, mechanism.NewHTTPMechanism(s, exec))

	rec := do(r, http.MethodPost, "/setpoint", `{"kind": "position", "value": 1.5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, motortest.Call{Op: motortest.OpPosition, Value: int64(units.FromRadians(1.5))}, fake.Last())

	rec = do(r, http.MethodGet, "/setpoint", "")
	assert.JSONEq(t, `{"kind": "position", "value": 1.5}`, rec.Body.String())
	assert.Equal(t, 2, exec.calls)

	rec = do(r, http.MethodPost, "/setpoint", `{"kind": "warp", "value": 9}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnsupportedSetpointIs500(t *testing.T) {
	s, fake := newServo(t)
	fake.Unsupported[motortest.OpCurrent] = true
	r := serve(t, mechanism.NewHTTPMechanism(s, &inline{}))
	rec := do(r, http.MethodPost, "/setpoint", `{"kind": "current", "value": 3}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, setpoint.Idle(), s.Setpoint())
}

func TestEnabledRoutes(t *testing.T) {
	s, fake := newServo(t)
	r := serve(t, mechanism.NewHTTPMechanism(s, &inline{}))

	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/enabled", `{"bool": false}`).Code)
	assert.False(t, s.Enabled())
	assert.Equal(t, motortest.OpIdle, fake.Last().Op)
	assert.JSONEq(t, `{"bool": false}`, do(r, http.MethodGet, "/enabled", "").Body.String())
}

func TestOutputsAndNear(t *testing.T) {
	s, fake := newServo(t)
	r := serve(t, mechanism.NewHTTPMechanism(s, &inline{}))
	fake.Outputs[0].Position = physic.Radian
	fake.Outputs[0].SupplyVoltage = 12 * physic.Volt
	fake.Outputs[1].Position = 2 * physic.Radian
	require.NoError(t, s.Periodic())

	var outs []mechanism.OutputsJSON
	require.NoError(t, json.Unmarshal(do(r, http.MethodGet, "/outputs", "").Body.Bytes(), &outs))
	require.Len(t, outs, 2)
	assert.InDelta(t, 1.0, outs[0].Position, 1e-9)
	assert.InDelta(t, 12.0, outs[0].SupplyVoltage, 1e-9)
	assert.InDelta(t, 2.0, outs[1].Position, 1e-9)

	assert.JSONEq(t, `{"bool": true}`, do(r, http.MethodGet, "/near?target=1", "").Body.String())
	assert.JSONEq(t, `{"bool": false}`, do(r, http.MethodGet, "/near?target=1.5", "").Body.String())
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/near?target=abc", "").Code)
}

func TestConfigureRoutes(t *testing.T) {
	s, fake := newServo(t)
	r := serve(t, mechanism.NewHTTPMechanism(s, &inline{}))

	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/softlimits", `{"bool": false}`).Code)
	assert.False(t, fake.SoftLimits)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/position", `{"f64": 0.25}`).Code)
	assert.Equal(t, motortest.Call{Op: motortest.OpResetPosition, Value: int64(units.FromRadians(0.25))}, fake.Last())
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/position", `radians`).Code)

	fake.Outputs[0].Position = units.FromRadians(0.5)
	require.NoError(t, s.Periodic())
	assert.JSONEq(t, `{"f64": 0.5}`, do(r, http.MethodGet, "/position", "").Body.String())
}

func TestHomingRoutes(t *testing.T) {
	d, err := motor.NewDriver(motortest.New(0), 0)
	require.NoError(t, err)
	hs, err := component.NewHomingServo(d, physic.Degree, 0, component.HomingConfig{
		Voltage:      -physic.Volt,
		Debounce:     time.Hour,
		HoldSetpoint: setpoint.Position(0),
	})
	require.NoError(t, err)
	r := serve(t, mechanism.NewHTTPMechanism(hs, &inline{}))

	// a fresh servo needs to home and is commanded idle, so it is not searching
	assert.JSONEq(t, `{"homing": false, "needsToHome": true}`, do(r, http.MethodGet, "/homing", "").Body.String())
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/setpoint", `{"kind": "position", "value": 0}`).Code)
	require.NoError(t, hs.Periodic())
	assert.JSONEq(t, `{"homing": true, "needsToHome": true}`, do(r, http.MethodGet, "/homing", "").Body.String())
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/homing", `{"bool": true}`).Code)
}

func TestStalledLoopIs503(t *testing.T) {
	s, _ := newServo(t)
	h := mechanism.NewHTTPMechanism(s, stalled{})
	r := serve(t, h)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/enabled", nil).WithContext(ctx)
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStalledSetpointIs503(t *testing.T) {
	s, _ := newServo(t)
	r := serve(t, mechanism.NewHTTPMechanism(s, stalled{}))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"kind": "voltage", "value": 3}`)
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/softlimits", strings.NewReader(`{"bool": false}`)).WithContext(ctx))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/setpoint", body).WithContext(ctx))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTimedOutCallIsDropped(t *testing.T) {
	s, fake := newServo(t)
	exec := &late{}
	h := mechanism.NewHTTPMechanism(s, exec)
	r := serve(t, h)
	fake.Clear()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/setpoint", strings.NewReader(`{"kind": "voltage", "value": 3}`))
	r.ServeHTTP(rec, req.WithContext(ctx))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// the loop finally gets to the queued call
	require.Len(t, exec.queued, 1)
	exec.queued[0]()
	assert.Equal(t, setpoint.Idle(), s.Setpoint())
	assert.Empty(t, fake.Calls)
}

func TestCallStartedBeforeDeadlineIsReported(t *testing.T) {
	s, _ := newServo(t)
	r := serve(t, mechanism.NewHTTPMechanism(s, overrun{}))
	rec := do(r, http.MethodPost, "/setpoint", `{"kind": "voltage", "value": 3}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, setpoint.Voltage(3*physic.Volt), s.Setpoint())
}

func TestLimitMiddleware(t *testing.T) {
	s, fake := newServo(t)
	h := mechanism.NewHTTPMechanism(s, &inline{})
	lim := mechanism.LimitMiddleware{Limits: &util.Limiter[physic.Angle]{Min: 0, Max: physic.Radian}}
	lim.Inject(h)
	r := serve(t, h, lim.Check)

	rec := do(r, http.MethodPost, "/setpoint", `{"kind": "position", "value": 1.5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "software limits")
	assert.Equal(t, setpoint.Idle(), s.Setpoint())

	rec = do(r, http.MethodPost, "/setpoint", `{"kind": "profiled_position", "value": 0.5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, motortest.OpProfiledPosition, fake.Last().Op)

	// only position setpoints are limited
	rec = do(r, http.MethodPost, "/setpoint", `{"kind": "voltage", "value": 6}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.JSONEq(t, `{"min": 0, "max": 1}`, do(r, http.MethodGet, "/limits", "").Body.String())
}

func TestNoLimits(t *testing.T) {
	s, _ := newServo(t)
	h := mechanism.NewHTTPMechanism(s, &inline{})
	lim := mechanism.LimitMiddleware{}
	lim.Inject(h)
	r := serve(t, h, lim.Check)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/setpoint", `{"kind": "position", "value": 100}`).Code)
	assert.Equal(t, "null", strings.TrimSpace(do(r, http.MethodGet, "/limits", "").Body.String()))
}
