// ABOUTME: Tests for the run-metrics counter accumulation

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunMetrics_AccumulatesAndResets(t *testing.T) {
	metrics := NewRunMetrics(nil)

	metrics.Add("media_uploaded", 3, "handle", "alice")
	metrics.Add("media_uploaded", 2, "handle", "alice")
	metrics.Add("media_uploaded", 1, "handle", "bob")

	assert.Equal(t, float64(5), metrics.Get("media_uploaded", "handle", "alice"))
	assert.Equal(t, float64(1), metrics.Get("media_uploaded", "handle", "bob"))
	assert.Zero(t, metrics.Get("media_uploaded", "handle", "carol"))

	metrics.Flush()
	assert.Zero(t, metrics.Get("media_uploaded", "handle", "alice"), "flush resets counters")
}

func TestRunMetrics_UnlabeledCounter(t *testing.T) {
	metrics := NewRunMetrics(nil)
	metrics.Add("runs", 1)
	assert.Equal(t, float64(1), metrics.Get("runs"))
}
