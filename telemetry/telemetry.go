// Package telemetry carries the values components publish every tick.
//
// Values are addressed by "/" separated paths, e.g. "Arm/Pivot/Main/Position".
// Telemetry is distinct from diagnostic logging; sinks decide where the
// values end up.
package telemetry

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/multierr"
)

// Sink receives telemetry values.
type Sink interface {
	Log(key string, value interface{})
}

// Flusher is a sink that batches values until Flush.
type Flusher interface {
	Flush() error
}

// Loggable publishes its state below path.
type Loggable interface {
	Log(sink Sink, path string)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(key string, value interface{})

// Log calls f.
func (f SinkFunc) Log(key string, value interface{}) { f(key, value) }

// Discard drops everything.
var Discard Sink = SinkFunc(func(string, interface{}) {})

// Join joins path elements with "/", skipping empty ones.
func Join(elem ...string) string {
	parts := make([]string, 0, len(elem))
	for _, e := range elem {
		e = strings.Trim(e, "/")
		if e != "" {
			parts = append(parts, e)
		}
	}
	return strings.Join(parts, "/")
}

// Recorder keeps the latest value of every key.  It is safe for concurrent
// use, so HTTP handlers and terminal UIs may read it while the loop writes.
type Recorder struct {
	mu     sync.RWMutex
	values map[string]interface{}
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{values: make(map[string]interface{})}
}

// Log stores value under key.
func (r *Recorder) Log(key string, value interface{}) {
	r.mu.Lock()
	r.values[key] = value
	r.mu.Unlock()
}

// Get returns the latest value under key.
func (r *Recorder) Get(key string) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[key]
	return v, ok
}

// Keys returns all keys in lexical order.
func (r *Recorder) Keys() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.values))
	for k := range r.values {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Snapshot copies every value.
func (r *Recorder) Snapshot() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]interface{}, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Multi fans every value out to each sink.
type Multi []Sink

// Log forwards to every sink.
func (m Multi) Log(key string, value interface{}) {
	for _, s := range m {
		s.Log(key, value)
	}
}

// Flush flushes every sink that batches.
func (m Multi) Flush() error {
	var err error
	for _, s := range m {
		if f, ok := s.(Flusher); ok {
			err = multierr.Append(err, f.Flush())
		}
	}
	return err
}
