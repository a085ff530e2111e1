// ABOUTME: Lightweight per-run counters flushed to structured logs
// ABOUTME: Keeps per-account tallies visible without an external metrics backend

package utils

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// RunMetrics accumulates named counters over one run and emits them as log
// records on Flush. Labels become part of the counter key.
type RunMetrics struct {
	logger *slog.Logger

	mu       sync.Mutex
	counters map[string]float64
}

// NewRunMetrics creates an empty recorder.
func NewRunMetrics(logger *slog.Logger) *RunMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunMetrics{
		logger:   logger,
		counters: make(map[string]float64),
	}
}

// Add increments a counter. Labels are alternating key/value strings.
func (m *RunMetrics) Add(name string, value float64, labels ...string) {
	key := name
	if len(labels) > 0 {
		key = name + "{" + strings.Join(labels, "=") + "}"
	}

	m.mu.Lock()
	m.counters[key] += value
	m.mu.Unlock()
}

// Get returns the current value of a counter built from the same arguments as
// Add. Mostly useful in tests.
func (m *RunMetrics) Get(name string, labels ...string) float64 {
	key := name
	if len(labels) > 0 {
		key = name + "{" + strings.Join(labels, "=") + "}"
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key]
}

// Flush logs every counter in sorted key order and resets the recorder.
func (m *RunMetrics) Flush() {
	m.mu.Lock()
	snapshot := m.counters
	m.counters = make(map[string]float64)
	m.mu.Unlock()

	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		m.logger.Info("Run metric",
			"metric", k,
			"value", fmt.Sprintf("%g", snapshot[k]))
	}
}
