package telemetry_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/robotcore/mechanism/telemetry"
)

func ExampleJoin() {
	fmt.Println(telemetry.Join("Arm", "", "/Pivot/", "Main"))
	// Output: Arm/Pivot/Main
}

func TestRecorder(t *testing.T) {
	r := telemetry.NewRecorder()
	r.Log("b", 2)
	r.Log("a", 1)
	r.Log("b", 3)

	v, ok := r.Get("b")
	require.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, []string{"a", "b"}, r.Keys())

	snap := r.Snapshot()
	r.Log("a", 10)
	assert.Equal(t, 1, snap["a"])
}

func TestMultiFansOut(t *testing.T) {
	a, b := telemetry.NewRecorder(), telemetry.NewRecorder()
	m := telemetry.Multi{a, b, telemetry.Discard}
	m.Log("k", true)
	_, okA := a.Get("k")
	_, okB := b.Get("k")
	assert.True(t, okA)
	assert.True(t, okB)
	assert.NoError(t, m.Flush())
}

func TestLogSinkWritesOneLinePerFlush(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	var logger golog.Logger = zap.New(core).Sugar()
	s := telemetry.NewLogSink(logger, time.Hour)

	s.Log("Arm/Position", 1.5)
	s.Log("Arm/Enabled", true)
	require.NoError(t, s.Flush())
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, 1.5, fields["Arm/Position"])
	assert.Equal(t, true, fields["Arm/Enabled"])

	// the limiter holds a single token per hour
	s.Log("Arm/Position", 2.0)
	require.NoError(t, s.Flush())
	assert.Equal(t, 1, logs.Len())
}
