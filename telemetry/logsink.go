package telemetry

import (
	"sort"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"golang.org/x/time/rate"
)

// LogSink batches one tick of telemetry and writes it as a single
// structured log line.  Lines are rate limited; batches arriving faster
// than the limit are dropped whole.
type LogSink struct {
	logger  golog.Logger
	limiter *rate.Limiter

	mu     sync.Mutex
	fields map[string]interface{}
}

// NewLogSink writes at most one line per every.
func NewLogSink(logger golog.Logger, every time.Duration) *LogSink {
	return &LogSink{
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(every), 1),
		fields:  make(map[string]interface{}),
	}
}

// Log buffers value under key.
func (s *LogSink) Log(key string, value interface{}) {
	s.mu.Lock()
	s.fields[key] = value
	s.mu.Unlock()
}

// Flush writes the buffered batch if the rate limit allows, and clears it.
func (s *LogSink) Flush() error {
	s.mu.Lock()
	fields := s.fields
	s.fields = make(map[string]interface{}, len(fields))
	s.mu.Unlock()
	if len(fields) == 0 || !s.limiter.Allow() {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	kv := make([]interface{}, 0, 2*len(keys))
	for _, k := range keys {
		kv = append(kv, k, fields[k])
	}
	s.logger.Infow("telemetry", kv...)
	return nil
}
