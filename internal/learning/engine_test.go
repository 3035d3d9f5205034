package learning

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/cortexd/internal/feedback"
	"github.com/fyrsmithlabs/cortexd/internal/monitor"
	"github.com/fyrsmithlabs/cortexd/internal/planning"
	"github.com/fyrsmithlabs/cortexd/internal/understanding"
)

func testCycle(successRate float64, domain string, nodes int) *feedback.Cycle {
	exec := &monitor.ExecutionState{
		PlanID:         "plan-1",
		Status:         monitor.StatusCompleted,
		CompletedTasks: map[string]bool{},
		FailedTasks:    map[string]bool{},
		ActiveTasks:    map[string]bool{},
	}
	exec.Performance.SuccessRate = successRate
	exec.Performance.ErrorRate = 1 - successRate

	plan := &planning.Plan{ID: "plan-1", RiskLevel: planning.RiskLow}
	for i := 0; i < nodes; i++ {
		plan.Nodes = append(plan.Nodes, planning.Node{ID: fmt.Sprintf("n%d", i)})
	}

	now := time.Now()
	return &feedback.Cycle{
		ID:                "cycle-1",
		SessionID:         "session-1",
		Status:            feedback.CycleCompleted,
		InitialConfidence: 0.75,
		Understanding: &understanding.Understanding{
			ID:         "u-1",
			UserID:     "user-1",
			Message:    "research skin care options and schedule reminders",
			Confidence: 0.75,
			Semantic: understanding.SemanticLayer{
				Context: understanding.ContextualInfo{Domain: domain},
			},
		},
		Plan:        plan,
		Execution:   exec,
		StartedAt:   now.Add(-time.Minute),
		CompletedAt: &now,
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig(), nil)
	require.NoError(t, err)
	return e
}

func TestClassification(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		rate float64
		want Classification
	}{
		{0.95, ClassSuccess},
		{0.8, ClassSuccess},
		{0.79, ClassPartialSuccess},
		{0.5, ClassPartialSuccess},
		{0.49, ClassFailure},
		{0, ClassFailure},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.classify(tt.rate), "rate %.2f", tt.rate)
	}
}

func TestLearnFromCycleErrors(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.LearnFromCycle(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilCycle)

	cycle := testCycle(0.9, "health", 2)
	cycle.Execution = nil
	_, err = e.LearnFromCycle(context.Background(), cycle)
	assert.ErrorIs(t, err, ErrNoExecution)
}

func TestLearnFromCycleSuccess(t *testing.T) {
	e := newTestEngine(t)

	example, err := e.LearnFromCycle(context.Background(), testCycle(0.9, "health", 2))
	require.NoError(t, err)

	assert.Equal(t, ClassSuccess, example.Classification)
	assert.Equal(t, "health", example.Domain)
	assert.Equal(t, ComplexityLow, example.Complexity)
	assert.Contains(t, example.SuccessFactors, "high_initial_confidence")
	assert.Contains(t, example.SuccessFactors, "low_error_rate")
	assert.Contains(t, example.SuccessFactors, "low_risk_plan")
	assert.NotEmpty(t, example.Lessons)

	strategy, ok := e.Strategy("health")
	require.True(t, ok)
	assert.Equal(t, 1, strategy.Uses)
	assert.Greater(t, strategy.Confidence, 0.5)
}

func TestLearnFromCycleFailure(t *testing.T) {
	e := newTestEngine(t)

	cycle := testCycle(0.3, "software", 4)
	cycle.Understanding.Confidence = 0.4
	cycle.Iteration = 3
	cycle.Plan.RiskLevel = planning.RiskHigh
	cycle.Issues = []feedback.Issue{{
		Type:      feedback.IssueExecution,
		RootCause: "delegation timed out after 30s on node n2",
	}}

	example, err := e.LearnFromCycle(context.Background(), cycle)
	require.NoError(t, err)

	assert.Equal(t, ClassFailure, example.Classification)
	assert.Contains(t, example.FailureFactors, "low_confidence")
	assert.Contains(t, example.FailureFactors, "excessive_refinement")
	assert.Contains(t, example.FailureFactors, "high_risk_plan")

	mitigation, ok := e.Mitigation(FailureTimeout)
	require.True(t, ok)
	assert.Equal(t, 1, mitigation.Occurrences)
	assert.NotEmpty(t, mitigation.Prevention)
	assert.NotEmpty(t, mitigation.Recovery)

	// A corroborating failure grows confidence by the fixed step.
	before := mitigation.Confidence
	_, err = e.LearnFromCycle(context.Background(), cycle)
	require.NoError(t, err)
	mitigation, _ = e.Mitigation(FailureTimeout)
	assert.InDelta(t, before+e.cfg.MitigationConfidenceStep, mitigation.Confidence, 1e-9)
	assert.Equal(t, 2, mitigation.Occurrences)
}

func TestPatternMining(t *testing.T) {
	e := newTestEngine(t)

	// Four similar successes in the same domain and complexity bucket
	// share factors; the fourth mints the pattern.
	for i := 0; i < 3; i++ {
		_, err := e.LearnFromCycle(context.Background(), testCycle(0.9, "research", 2))
		require.NoError(t, err)
		assert.Empty(t, e.Patterns())
	}

	_, err := e.LearnFromCycle(context.Background(), testCycle(0.9, "research", 2))
	require.NoError(t, err)

	patterns := e.Patterns()
	require.NotEmpty(t, patterns)
	assert.Equal(t, "research", patterns[0].Domain)
	assert.Equal(t, ClassSuccess, patterns[0].Classification)
	assert.GreaterOrEqual(t, patterns[0].Frequency, 4)

	// Another matching example updates frequency instead of duplicating.
	count := len(patterns)
	_, err = e.LearnFromCycle(context.Background(), testCycle(0.9, "research", 2))
	require.NoError(t, err)
	assert.Len(t, e.Patterns(), count)
}

func TestStrategyRollingUpdate(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.LearnFromCycle(context.Background(), testCycle(1.0, "finance", 2))
	require.NoError(t, err)
	up, _ := e.Strategy("finance")
	highConfidence := up.Confidence

	_, err = e.LearnFromCycle(context.Background(), testCycle(0.2, "finance", 2))
	require.NoError(t, err)
	down, _ := e.Strategy("finance")
	assert.Less(t, down.Confidence, highConfidence)
	assert.Equal(t, 2, down.Uses)
}

func TestFailureClassifier(t *testing.T) {
	rules := buildFailureRules()

	tests := []struct {
		text string
		want FailureType
	}{
		{"delegation timed out after 30s", FailureTimeout},
		{"worker reported out of memory", FailureResource},
		{"permission denied for capability research", FailureAuthorization},
		{"connection refused by agent endpoint", FailureNetwork},
		{"invalid input payload for task", FailureValidation},
		{"task blocked by unresolved prerequisite", FailureDependency},
		{"something unexpected happened", FailureGeneral},
		{"", FailureGeneral},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyFailure(rules, tt.text), "text %q", tt.text)
	}
}

func TestExampleHistoryCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExampleHistoryCap = 3
	e, err := NewEngine(cfg, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := e.LearnFromCycle(context.Background(), testCycle(0.9, "health", 2))
		require.NoError(t, err)
	}
	assert.Len(t, e.Examples(), 3)
}

func TestGetRelevantKnowledge(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.LearnFromCycle(context.Background(), testCycle(0.9, "health", 2))
	require.NoError(t, err)
	_, err = e.LearnFromCycle(context.Background(), testCycle(0.9, "finance", 2))
	require.NoError(t, err)

	u := &understanding.Understanding{
		Message:  "help me research skin care routines",
		Semantic: understanding.SemanticLayer{Context: understanding.ContextualInfo{Domain: "health"}},
	}

	recs, err := e.GetRelevantKnowledge(context.Background(), u, 5)
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	for _, rec := range recs {
		assert.Contains(t, []string{"health", "general"}, rec.Domain)
	}

	_, err = e.GetRelevantKnowledge(context.Background(), &understanding.Understanding{}, 5)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestGetRelevantKnowledgeEmptyBase(t *testing.T) {
	e := newTestEngine(t)

	u := &understanding.Understanding{Message: "anything"}
	recs, err := e.GetRelevantKnowledge(context.Background(), u, 5)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
