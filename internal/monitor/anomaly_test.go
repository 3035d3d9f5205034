package monitor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnomalyDetectorNeedsMinimumSamples(t *testing.T) {
	d := NewAnomalyDetector(100, 10, 3, 4)

	for i := 0; i < 9; i++ {
		_, flagged := d.Observe("cpu", 0.5)
		assert.False(t, flagged)
	}

	// Ninth prior sample is not enough; even a wild value passes.
	_, flagged := d.Observe("cpu", 100)
	assert.False(t, flagged)
}

func TestAnomalyDetectorFlagsOutlier(t *testing.T) {
	d := NewAnomalyDetector(100, 10, 3, 4)

	// Ten stable samples with near-zero variance.
	samples := []float64{0.5, 0.51, 0.5, 0.51, 0.5, 0.51, 0.5, 0.51, 0.5, 0.51}
	for _, s := range samples {
		_, flagged := d.Observe("latency", s)
		require.False(t, flagged)
	}

	mean, std := meanStdDev(samples)
	require.Greater(t, std, 0.0)

	// A value five standard deviations out is exactly one critical anomaly.
	outlier := mean + 5*std
	anomaly, flagged := d.Observe("latency", outlier)
	require.True(t, flagged)
	assert.Equal(t, SeverityCritical, anomaly.Severity)
	assert.InDelta(t, 5.0, anomaly.ZScore, 1e-6)
	assert.Equal(t, "latency", anomaly.Metric)

	// A value between the bounds is high, not critical.
	anomaly, flagged = d.Observe("latency", mean+3.5*std)
	require.True(t, flagged)
	assert.Equal(t, SeverityHigh, anomaly.Severity)
}

func TestAnomalyDetectorZeroVariance(t *testing.T) {
	d := NewAnomalyDetector(100, 10, 3, 4)

	for i := 0; i < 10; i++ {
		d.Observe("flat", 1.0)
	}

	// Identical history: same value is no anomaly, any deviation is
	// unbounded and therefore critical.
	_, flagged := d.Observe("flat", 1.0)
	assert.False(t, flagged)

	anomaly, flagged := d.Observe("flat", 1.1)
	require.True(t, flagged)
	assert.Equal(t, SeverityCritical, anomaly.Severity)
	assert.True(t, math.IsInf(anomaly.ZScore, 1))
}

func TestAnomalyDetectorWindowCap(t *testing.T) {
	d := NewAnomalyDetector(20, 10, 3, 4)

	for i := 0; i < 50; i++ {
		d.Observe("cpu", float64(i%2))
	}
	assert.Equal(t, 20, d.SampleCount("cpu"))
}

func TestAnomalyDetectorPerMetricHistories(t *testing.T) {
	d := NewAnomalyDetector(100, 10, 3, 4)

	for i := 0; i < 10; i++ {
		d.Observe("cpu", 0.5)
	}

	// The memory metric has no history yet; nothing is flagged.
	_, flagged := d.Observe("memory", 99)
	assert.False(t, flagged)
}
