package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotcore/mechanism/clock"
	"github.com/robotcore/mechanism/component"
	"github.com/robotcore/mechanism/config"
	"github.com/robotcore/mechanism/sched"
)

type harness struct {
	t   *testing.T
	clk *clock.Manual
	rig *Rig
	mux chi.Router
}

func newHarness(t *testing.T, c config.Config) *harness {
	t.Helper()
	clk := clock.NewManual(time.Unix(0, 0))
	rig, err := Build(c, golog.NewTestLogger(t), WithClock(clk))
	require.NoError(t, err)
	t.Cleanup(func() { rig.Close() })
	rig.exec.Sync()
	return &harness{t: t, clk: clk, rig: rig, mux: BuildMux(rig)}
}

// step runs one loop period and lets queued configuration land.
func (h *harness) step() {
	h.clk.Advance(h.rig.Loop.Period())
	require.NoError(h.t, h.rig.Loop.Tick())
	h.rig.exec.Sync()
}

// request serves one request, ticking the loop until it answers.
func (h *harness) request(method, path, body string) *httptest.ResponseRecorder {
	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		rec := httptest.NewRecorder()
		h.mux.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
		done <- rec
	}()
	for {
		select {
		case rec := <-done:
			return rec
		case <-time.After(time.Millisecond):
			h.step()
		}
	}
}

func TestBuildExample(t *testing.T) {
	h := newHarness(t, config.Example())
	assert.Equal(t, []string{"elevator", "shooter"}, h.rig.Names())
	assert.Equal(t, []string{""}, h.rig.Loop.Names())

	c, ok := h.rig.Robot.Component("shooter")
	require.True(t, ok)
	m, ok := h.rig.Mechanism("shooter")
	require.True(t, ok)
	assert.Same(t, m, c)

	m, ok = h.rig.Mechanism("elevator")
	require.True(t, ok)
	assert.IsType(t, &component.HomingServo{}, m)
	m, ok = h.rig.Mechanism("shooter")
	require.True(t, ok)
	assert.IsType(t, &component.Flywheel{}, m)
}

func TestBuildRejectsUnknownActuator(t *testing.T) {
	c := config.Default()
	c.Mechanisms = []config.Mechanism{{Name: "arm", Type: config.TypeMotor, Actuator: "pneumatic"}}
	_, err := Build(c, golog.NewTestLogger(t))
	assert.Error(t, err)
}

func TestEndpoints(t *testing.T) {
	h := newHarness(t, config.Example())
	rec := h.request(http.MethodGet, "/endpoints", "")
	var graph map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &graph))
	assert.Contains(t, graph["/elevator"], "GET /homing")
	assert.Contains(t, graph["/elevator"], "GET /limits")
	assert.Contains(t, graph["/elevator"], "POST /lock")
	assert.Contains(t, graph["/shooter"], "GET /near")
	assert.NotContains(t, graph["/shooter"], "GET /homing")
}

func TestHomingOverHTTP(t *testing.T) {
	h := newHarness(t, config.Example())

	rec := h.request(http.MethodPost, "/elevator/setpoint", `{"kind": "position", "value": 3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.request(http.MethodPost, "/elevator/setpoint", `{"kind": "position", "value": 0}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	for i := 0; i < 50; i++ {
		h.step()
	}

	rec = h.request(http.MethodGet, "/elevator/homing", "")
	assert.JSONEq(t, `{"homing": false, "needsToHome": false}`, rec.Body.String())

	rec = h.request(http.MethodGet, "/telemetry", "")
	var snap map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, false, snap["elevator/Homing/Needs To Home"])
	assert.Contains(t, snap, "Loop/Ticks")
}

func TestLockedMechanismRefusesCommands(t *testing.T) {
	h := newHarness(t, config.Example())
	require.Equal(t, http.StatusOK, h.request(http.MethodPost, "/shooter/lock", `{"bool": true}`).Code)
	rec := h.request(http.MethodPost, "/shooter/setpoint", `{"kind": "velocity", "value": 10}`)
	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.Equal(t, http.StatusOK, h.request(http.MethodGet, "/shooter/setpoint", "").Code)
}

func TestRobotEnabled(t *testing.T) {
	h := newHarness(t, config.Example())
	assert.JSONEq(t, `{"bool": true}`, h.request(http.MethodGet, "/robot/enabled", "").Body.String())
	require.Equal(t, http.StatusOK, h.request(http.MethodPost, "/robot/enabled", `{"bool": false}`).Code)
	assert.False(t, h.rig.active)
}

func TestHomeTask(t *testing.T) {
	h := newHarness(t, config.Example())
	m, _ := h.rig.Mechanism("elevator")
	hs := m.(*component.HomingServo)

	done := make(chan error, 1)
	h.rig.Loop.Schedule(notify(homeTask(hs), done))
	for i := 0; i < 50 && len(done) == 0; i++ {
		h.step()
	}
	require.Len(t, done, 1)
	assert.NoError(t, <-done)
	assert.False(t, hs.NeedsToHome())
}

func TestNotifyReportsFailure(t *testing.T) {
	done := make(chan error, 1)
	boom := errors.New("boom")
	task := notify(sched.Once(func() error { return boom }), done)
	finished, err := task.Poll()
	assert.True(t, finished)
	assert.Equal(t, boom, err)
	assert.Equal(t, boom, <-done)
}

func TestRenderTable(t *testing.T) {
	out := renderTable(map[string]interface{}{
		"elevator/Position": 0.123456,
		"elevator/Enabled":  true,
		"Loop/Ticks":        42.0,
	})
	assert.Contains(t, out, "0.123")
	assert.NotContains(t, out, "0.123456")
	assert.Less(t, strings.Index(out, "Loop"), strings.Index(out, "elevator"))
	assert.Contains(t, out, "Enabled")
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "42", formatValue(42.0))
	assert.Equal(t, "-1.500", formatValue(-1.5))
	assert.Equal(t, "0.000", formatValue(-0.0001))
	assert.Equal(t, "true", formatValue(true))
	assert.Equal(t, "position", formatValue("position"))
}
