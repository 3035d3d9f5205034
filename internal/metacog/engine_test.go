package metacog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssessProcess(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)

	a := e.AssessProcess(ProcessContext{
		Process:    ProcessUnderstanding,
		Confidence: 0.9,
		Duration:   100 * time.Millisecond,
	})

	assert.Equal(t, ProcessUnderstanding, a.Process)
	assert.InDelta(t, 0.9, a.Performance, 1e-9)
	assert.InDelta(t, 1.0, a.Efficiency, 1e-9)
	assert.InDelta(t, 1.0, a.Accuracy, 1e-9)
	// No history yet: fully reliable.
	assert.InDelta(t, 1.0, a.Reliability, 1e-9)
	assert.InDelta(t, (0.9+1+1+1)/4, a.Overall, 1e-9)
	assert.Equal(t, VerdictExcellent, a.Verdict)
}

func TestAssessProcessSlowAndFailing(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)

	a := e.AssessProcess(ProcessContext{
		Process:    ProcessPlanning,
		Confidence: 0.5,
		Duration:   4 * time.Second, // expected is 1s
		HadError:   true,
	})

	assert.InDelta(t, 0.25, a.Efficiency, 1e-9)
	assert.InDelta(t, 0.2, a.Accuracy, 1e-9)
	assert.Less(t, a.Overall, 0.6)
}

func TestVerdictCutPoints(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)

	tests := []struct {
		overall float64
		want    Verdict
	}{
		{0.95, VerdictExcellent},
		{0.9, VerdictExcellent},
		{0.8, VerdictGood},
		{0.65, VerdictAdequate},
		{0.5, VerdictWeak},
		{0.3, VerdictPoor},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.verdict(tt.overall), "overall %.2f", tt.overall)
	}
}

func TestReliabilityTracksVariance(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)

	// Erratic performance history lowers the reliability term.
	for _, conf := range []float64{0.1, 0.9, 0.1, 0.9} {
		e.AssessProcess(ProcessContext{Process: ProcessExecution, Confidence: conf, Duration: time.Second})
	}
	a := e.AssessProcess(ProcessContext{Process: ProcessExecution, Confidence: 0.9, Duration: time.Second})
	assert.Less(t, a.Reliability, 0.9)

	// A steady process stays reliable.
	for i := 0; i < 4; i++ {
		e.AssessProcess(ProcessContext{Process: ProcessLearning, Confidence: 0.8, Duration: time.Second})
	}
	b := e.AssessProcess(ProcessContext{Process: ProcessLearning, Confidence: 0.8, Duration: time.Second})
	assert.InDelta(t, 1.0, b.Reliability, 1e-9)
}

func TestLoadSnapshot(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)

	snap := e.Load()
	assert.InDelta(t, 0.0, snap.Total, 1e-9)
	assert.InDelta(t, 1.0, snap.Balance, 1e-9)
	assert.Empty(t, snap.Bottlenecks)
	assert.False(t, snap.RebalanceNeeded)

	e.UpdateLoad(ProcessExecution, 0.95)
	snap = e.Load()
	require.Len(t, snap.Bottlenecks, 1)
	assert.Equal(t, ProcessExecution, snap.Bottlenecks[0])
	assert.True(t, snap.RebalanceNeeded)
}

func TestLoadBalanceFormula(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)

	// Even loads: zero variance, perfect balance.
	for _, p := range AllProcesses {
		e.UpdateLoad(p, 0.5)
	}
	snap := e.Load()
	assert.InDelta(t, 1.0, snap.Balance, 1e-9)
	assert.InDelta(t, 0.5, snap.Total, 1e-9)
}

func TestCapabilityBlend(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)

	e.AssessProcess(ProcessContext{Process: ProcessPlanning, Confidence: 0.9, Duration: time.Millisecond})
	first := e.Profile().Capabilities[ProcessPlanning].Score

	// A poor invocation nudges the score down without replacing it.
	e.AssessProcess(ProcessContext{Process: ProcessPlanning, Confidence: 0.1, Duration: 10 * time.Second, HadError: true})
	profile := e.Profile()
	second := profile.Capabilities[ProcessPlanning].Score
	assert.Less(t, second, first)
	assert.Greater(t, second, 0.2)
	assert.Equal(t, 2, profile.Capabilities[ProcessPlanning].Assessments)
}

func TestProfileGroupings(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	e.mu.Lock()
	e.capabilities[ProcessUnderstanding] = &Capability{Process: ProcessUnderstanding, Score: 0.9}
	e.capabilities[ProcessPlanning] = &Capability{Process: ProcessPlanning, Score: 0.55}
	e.capabilities[ProcessExecution] = &Capability{Process: ProcessExecution, Score: 0.3}
	e.mu.Unlock()

	profile := e.Profile()
	assert.Equal(t, []Process{ProcessUnderstanding}, profile.Strengths)
	assert.Contains(t, profile.GrowthAreas, ProcessPlanning)
	assert.Contains(t, profile.GrowthAreas, ProcessExecution)
	assert.Equal(t, []Process{ProcessExecution}, profile.DevelopmentPriorities)
}

func TestRecommendations(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)

	// Weak process history, a bottleneck, and an unresolved insight all
	// surface as recommendations.
	for i := 0; i < 3; i++ {
		e.AssessProcess(ProcessContext{Process: ProcessExecution, Confidence: 0.3, Duration: time.Second})
	}
	e.UpdateLoad(ProcessExecution, 0.95)
	insight := e.AddInsight("execution retries correlate with low-confidence plans")

	recs := e.Recommendations()
	require.NotEmpty(t, recs)
	assert.LessOrEqual(t, len(recs), 10)

	// Sorted by priority descending.
	for i := 1; i < len(recs); i++ {
		assert.GreaterOrEqual(t, recs[i-1].Priority, recs[i].Priority)
	}

	found := false
	for _, r := range recs {
		if r.Area == "meta-learning" {
			found = true
		}
	}
	assert.True(t, found)

	// Resolving the insight removes it.
	require.True(t, e.ResolveInsight(insight.ID))
	for _, r := range e.Recommendations() {
		assert.NotEqual(t, insight.Description, r.Description)
	}
}

func TestRecommendationsCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRecommendations = 3
	e := NewEngine(cfg, nil)

	for i := 0; i < 8; i++ {
		e.AddInsight("observation")
	}
	assert.Len(t, e.Recommendations(), 3)
}
