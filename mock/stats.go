package mock

import (
	"fmt"
	"sync"
	"time"
)

// RecordingStatter keeps the totals of every Count call.
type RecordingStatter struct {
	mu     sync.Mutex
	Counts map[string]int64
}

func (r *RecordingStatter) Count(name string, value int64, rate float64, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Counts == nil {
		r.Counts = make(map[string]int64)
	}
	r.Counts[name] += value
}

// Get returns the total for name.
func (r *RecordingStatter) Get(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Counts[name]
}

func (r *RecordingStatter) Gauge(name string, value float64, rate float64, tags ...string) {}

func (r *RecordingStatter) Timing(name string, value time.Duration, rate float64, tags ...string) {}

// RecordingLogger keeps every warning.
type RecordingLogger struct {
	mu       sync.Mutex
	Warnings []string
}

func (r *RecordingLogger) Printf(format string, v ...interface{}) {}

func (r *RecordingLogger) Debugf(format string, v ...interface{}) {}

func (r *RecordingLogger) Warnf(format string, v ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, v...))
}
