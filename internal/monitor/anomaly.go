package monitor

import (
	"math"
	"sync"
)

// AnomalySeverity grades an anomaly or alert.
type AnomalySeverity string

const (
	SeverityLow      AnomalySeverity = "low"
	SeverityMedium   AnomalySeverity = "medium"
	SeverityHigh     AnomalySeverity = "high"
	SeverityCritical AnomalySeverity = "critical"
)

// Anomaly is one statistically flagged metric sample.
type Anomaly struct {
	// Metric names the metric the sample belongs to.
	Metric string `json:"metric"`

	// Value is the flagged sample.
	Value float64 `json:"value"`

	// Mean and StdDev describe the rolling window the sample deviated from.
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`

	// ZScore is the sample's deviation in standard deviations.
	ZScore float64 `json:"z_score"`

	// Severity is high for z above the high bound, critical above the
	// critical bound.
	Severity AnomalySeverity `json:"severity"`
}

// AnomalyDetector keeps a capped rolling history per metric name and flags
// samples whose z-score against the prior window exceeds the configured
// bounds. One detector exists per monitored plan.
type AnomalyDetector struct {
	mu         sync.Mutex
	history    map[string][]float64
	window     int
	minSamples int
	zHigh      float64
	zCritical  float64
}

// NewAnomalyDetector creates a detector with the given window cap, minimum
// sample count, and z-score bounds.
func NewAnomalyDetector(window, minSamples int, zHigh, zCritical float64) *AnomalyDetector {
	if window <= 0 {
		window = 100
	}
	if minSamples <= 0 {
		minSamples = 10
	}
	return &AnomalyDetector{
		history:    make(map[string][]float64),
		window:     window,
		minSamples: minSamples,
		zHigh:      zHigh,
		zCritical:  zCritical,
	}
}

// Observe records one sample and returns the anomaly it produced, if any.
// The z-score is computed against the window as it stood before this sample,
// and only once that window holds at least the minimum sample count.
func (d *AnomalyDetector) Observe(metric string, value float64) (Anomaly, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	prior := d.history[metric]

	window := append(prior, value)
	if len(window) > d.window {
		window = window[len(window)-d.window:]
	}
	d.history[metric] = window

	if len(prior) < d.minSamples {
		return Anomaly{}, false
	}

	mean, std := meanStdDev(prior)
	z := zScore(value, mean, std)
	if z <= d.zHigh {
		return Anomaly{}, false
	}

	severity := SeverityHigh
	if z > d.zCritical {
		severity = SeverityCritical
	}
	return Anomaly{
		Metric:   metric,
		Value:    value,
		Mean:     mean,
		StdDev:   std,
		ZScore:   z,
		Severity: severity,
	}, true
}

// SampleCount returns the current window size for a metric.
func (d *AnomalyDetector) SampleCount(metric string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.history[metric])
}

// meanStdDev computes the sample mean and standard deviation.
func meanStdDev(samples []float64) (mean, std float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	for _, s := range samples {
		mean += s
	}
	mean /= float64(len(samples))

	if len(samples) < 2 {
		return mean, 0
	}
	var sum float64
	for _, s := range samples {
		d := s - mean
		sum += d * d
	}
	return mean, math.Sqrt(sum / float64(len(samples)-1))
}

// zScore is the deviation of value from mean in standard deviations. A
// near-zero standard deviation makes any deviation unbounded rather than
// dividing by zero.
func zScore(value, mean, std float64) float64 {
	diff := math.Abs(value - mean)
	if std < 1e-9 {
		if diff < 1e-9 {
			return 0
		}
		return math.Inf(1)
	}
	return diff / std
}
