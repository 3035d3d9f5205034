package planning

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/cortexd/internal/agent"
	"github.com/fyrsmithlabs/cortexd/internal/understanding"
)

type nopWorker struct{}

func (nopWorker) DelegateTask(_ context.Context, req agent.TaskRequest) (*agent.TaskResult, error) {
	return &agent.TaskResult{TaskID: req.TaskID, AgentID: req.AgentID, Success: true}, nil
}

func (nopWorker) CancelTask(context.Context, string) error { return nil }

func testRegistry(t *testing.T) *agent.InMemoryRegistry {
	t.Helper()
	reg := agent.NewInMemoryRegistry(nil)
	reg.Register("worker-1", nopWorker{}, []string{"general", "research", "scheduling", "summarization", "code"}, []string{"health", "software"})
	return reg
}

func testEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := NewEngine(testRegistry(t), cfg, nil, WithRand(rand.New(rand.NewSource(42))))
	require.NoError(t, err)
	return e
}

func testUnderstanding(goals ...understanding.Goal) *understanding.Understanding {
	return &understanding.Understanding{
		ID:         "u-1",
		UserID:     "user-1",
		Confidence: 0.7,
		Semantic: understanding.SemanticLayer{
			Goals:   goals,
			Context: understanding.ContextualInfo{Domain: "general"},
		},
	}
}

func TestNewEngine(t *testing.T) {
	_, err := NewEngine(nil, DefaultConfig(), nil)
	assert.Error(t, err)

	e, err := NewEngine(testRegistry(t), DefaultConfig(), nil)
	require.NoError(t, err)
	assert.NotNil(t, e)
}

func TestCreatePlanErrors(t *testing.T) {
	e := testEngine(t, DefaultConfig())

	_, err := e.CreatePlan(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilUnderstanding)

	_, err = e.CreatePlan(context.Background(), testUnderstanding())
	assert.ErrorIs(t, err, ErrNoGoals)
}

func TestCreatePlanOneNodePerGoal(t *testing.T) {
	e := testEngine(t, DefaultConfig())

	u := testUnderstanding(
		understanding.Goal{ID: "g1", Description: "research skin care options", Priority: understanding.PriorityMedium},
		understanding.Goal{ID: "g2", Description: "schedule a daily reminder", Priority: understanding.PriorityHigh},
	)

	plan, err := e.CreatePlan(context.Background(), u)
	require.NoError(t, err)
	require.Len(t, plan.Nodes, 2)

	assert.Equal(t, "g1", plan.Nodes[0].GoalID)
	assert.Equal(t, "g2", plan.Nodes[1].GoalID)
	assert.Equal(t, NodeTask, plan.Nodes[0].Kind)
	assert.Equal(t, u.UserID, plan.OwnerID)
	assert.Equal(t, u.ID, plan.UnderstandingID)

	// High priority scales duration and cost by 1.5.
	assert.Equal(t, 30*time.Minute, plan.Nodes[0].EstimatedDuration)
	assert.Equal(t, 45*time.Minute, plan.Nodes[1].EstimatedDuration)
	assert.InDelta(t, 10.0, plan.Nodes[0].EstimatedCost, 1e-9)
	assert.InDelta(t, 15.0, plan.Nodes[1].EstimatedCost, 1e-9)
}

func TestCreatePlanSequentialOrdering(t *testing.T) {
	e := testEngine(t, DefaultConfig())

	// Second goal is high priority, forcing a sequential edge.
	u := testUnderstanding(
		understanding.Goal{ID: "g1", Description: "collect notes", Priority: understanding.PriorityMedium},
		understanding.Goal{ID: "g2", Description: "summarize findings", Priority: understanding.PriorityHigh},
	)

	plan, err := e.CreatePlan(context.Background(), u)
	require.NoError(t, err)
	require.Len(t, plan.Edges, 1)
	assert.Equal(t, EdgeSequential, plan.Edges[0].Kind)
	assert.Equal(t, plan.Nodes[0].ID, plan.Edges[0].From)
	assert.Equal(t, plan.Nodes[1].ID, plan.Edges[0].To)
}

func TestTotalDurationSequentialChain(t *testing.T) {
	e := testEngine(t, DefaultConfig())

	plan := &Plan{
		Nodes: []Node{
			{ID: "a", EstimatedDuration: 10 * time.Minute, EstimatedCost: 1},
			{ID: "b", EstimatedDuration: 20 * time.Minute, EstimatedCost: 2},
			{ID: "c", EstimatedDuration: 30 * time.Minute, EstimatedCost: 3},
		},
		Edges: []Edge{
			{From: "a", To: "b", Kind: EdgeSequential},
			{From: "b", To: "c", Kind: EdgeSequential},
		},
	}
	e.recomputeTotals(plan)

	assert.Equal(t, 60*time.Minute, plan.TotalEstimatedDuration)
	assert.InDelta(t, 6.0, plan.TotalEstimatedCost, 1e-9)
}

func TestTotalDurationParallelFanout(t *testing.T) {
	e := testEngine(t, DefaultConfig())

	plan := &Plan{
		Nodes: []Node{
			{ID: "a", EstimatedDuration: 10 * time.Minute, EstimatedCost: 1},
			{ID: "b", EstimatedDuration: 25 * time.Minute, EstimatedCost: 2},
		},
	}
	e.recomputeTotals(plan)

	assert.Equal(t, 25*time.Minute, plan.TotalEstimatedDuration)
	assert.InDelta(t, 3.0, plan.TotalEstimatedCost, 1e-9)
}

func TestRiskFromConfidence(t *testing.T) {
	tests := []struct {
		confidence float64
		want       RiskLevel
	}{
		{0.1, RiskCritical},
		{0.39, RiskCritical},
		{0.4, RiskHigh},
		{0.59, RiskHigh},
		{0.6, RiskMedium},
		{0.79, RiskMedium},
		{0.8, RiskLow},
		{1.0, RiskLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, riskFromConfidence(tt.confidence), "confidence %.2f", tt.confidence)
	}
}

func TestGenerateAlternatives(t *testing.T) {
	e := testEngine(t, DefaultConfig())

	base := &Plan{
		ID: "base",
		Nodes: []Node{
			{ID: "a", EstimatedDuration: 10 * time.Minute},
			{ID: "b", EstimatedDuration: 20 * time.Minute},
			{ID: "c", EstimatedDuration: 30 * time.Minute},
		},
		Edges: []Edge{{From: "a", To: "b", Kind: EdgeSequential}},
	}

	alts := e.GenerateAlternatives(context.Background(), base)
	require.Len(t, alts, 3)

	byVariant := make(map[Variant]Alternative, len(alts))
	for _, alt := range alts {
		byVariant[alt.Variant] = alt
		assert.NotEqual(t, base.ID, alt.Plan.ID)
		assert.NotEmpty(t, alt.Tradeoffs.Advantages)
		assert.NotEmpty(t, alt.Tradeoffs.OptimalFor)
	}

	seq := byVariant[VariantSequential]
	assert.Equal(t, 60*time.Minute, seq.Plan.TotalEstimatedDuration)
	assert.Len(t, seq.Plan.Edges, 2)

	par := byVariant[VariantParallel]
	assert.Equal(t, 30*time.Minute, par.Plan.TotalEstimatedDuration)
	assert.Empty(t, par.Plan.Edges)

	hyb := byVariant[VariantHybrid]
	assert.Len(t, hyb.Plan.Edges, len(base.Edges))
}

func TestSimulatePlan(t *testing.T) {
	e := testEngine(t, DefaultConfig())

	plan := &Plan{
		ID: "p-1",
		Nodes: []Node{
			{ID: "a", Label: "step a", EstimatedDuration: 10 * time.Minute, EstimatedCost: 5},
			{ID: "b", Label: "step b", EstimatedDuration: 20 * time.Minute, EstimatedCost: 5},
		},
	}

	result, err := e.SimulatePlan(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, 100, result.Trials)
	assert.GreaterOrEqual(t, result.SuccessRate, 0.0)
	assert.LessOrEqual(t, result.SuccessRate, 1.0)

	// Duration perturbation is bounded at ±20% of the 30m serial estimate.
	assert.GreaterOrEqual(t, result.MeanDuration, 24*time.Minute)
	assert.LessOrEqual(t, result.MeanDuration, 36*time.Minute)

	// Cost perturbation is bounded at ±10%.
	assert.GreaterOrEqual(t, result.MeanCost, 9.0)
	assert.LessOrEqual(t, result.MeanCost, 11.0)

	// Node b is twice as long as node a; it should dominate trials.
	require.NotEmpty(t, result.Bottlenecks)
	assert.Equal(t, "b", result.Bottlenecks[0])
}

func TestSimulatePlanEmpty(t *testing.T) {
	e := testEngine(t, DefaultConfig())
	_, err := e.SimulatePlan(context.Background(), &Plan{ID: "empty"})
	assert.Error(t, err)
}

func TestSimulatePlanCancellation(t *testing.T) {
	e := testEngine(t, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.SimulatePlan(ctx, &Plan{
		ID:    "p-1",
		Nodes: []Node{{ID: "a", EstimatedDuration: time.Minute}},
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAssessRisk(t *testing.T) {
	e := testEngine(t, DefaultConfig())

	plan := &Plan{
		ID:         "p-1",
		Confidence: 0.9,
		Nodes: []Node{
			{ID: "a", Label: "step a", EstimatedDuration: 10 * time.Minute, EstimatedCost: 5, RequiredCapabilities: []string{"general"}},
			{ID: "b", Label: "step b", EstimatedDuration: 20 * time.Minute, EstimatedCost: 5, RequiredCapabilities: []string{"research"}},
		},
		TotalEstimatedDuration: 30 * time.Minute,
		TotalEstimatedCost:     10,
	}

	assessment := e.AssessRisk(context.Background(), plan)

	assert.Equal(t, plan.ID, assessment.PlanID)
	assert.Equal(t, RiskLow, assessment.Overall)
	assert.Empty(t, assessment.Factors)

	// One monitoring point per node with inflated thresholds.
	require.Len(t, assessment.MonitoringPoints, 2)
	assert.Equal(t, 15*time.Minute, assessment.MonitoringPoints[0].DurationThreshold)
	assert.InDelta(t, 6.0, assessment.MonitoringPoints[0].CostThreshold, 1e-9)
}

func TestAssessRiskFactors(t *testing.T) {
	e := testEngine(t, DefaultConfig())

	plan := &Plan{
		ID:         "p-2",
		Confidence: 0.3,
		Nodes: []Node{
			{ID: "a", Label: "needs quantum", EstimatedDuration: time.Hour, EstimatedCost: 900, RequiredCapabilities: []string{"quantum"}},
		},
		TotalEstimatedDuration: 23 * time.Hour,
		TotalEstimatedCost:     900,
	}

	assessment := e.AssessRisk(context.Background(), plan)

	categories := make(map[RiskCategory]bool)
	for _, f := range assessment.Factors {
		categories[f.Category] = true
		assert.GreaterOrEqual(t, f.Probability, 0.0)
		assert.LessOrEqual(t, f.Probability, 1.0)
	}
	assert.True(t, categories[RiskTechnical])
	assert.True(t, categories[RiskResource])
	assert.True(t, categories[RiskExternal])
	assert.True(t, categories[RiskTimeline])

	// Missing capability gives exposure 0.8×0.9 = 0.72, a critical factor.
	assert.Equal(t, RiskCritical, assessment.Overall)

	// One mitigation and one contingency per factor.
	assert.Len(t, assessment.Mitigations, len(assessment.Factors))
	assert.Len(t, assessment.Contingencies, len(assessment.Factors))
}

func TestOptimizePlan(t *testing.T) {
	e := testEngine(t, DefaultConfig())

	base := &Plan{
		ID: "base",
		Nodes: []Node{
			{ID: "a", EstimatedDuration: 10 * time.Minute, EstimatedCost: 5},
			{ID: "b", EstimatedDuration: 20 * time.Minute, EstimatedCost: 5},
		},
		Edges:                  []Edge{{From: "a", To: "b", Kind: EdgeSequential}},
		TotalEstimatedDuration: 30 * time.Minute,
		TotalEstimatedCost:     10,
		Confidence:             0.8,
		RiskLevel:              RiskLow,
	}

	result := e.OptimizePlan(context.Background(), base, map[Objective]float64{
		ObjectiveTime: 0.8,
		ObjectiveCost: 0.2,
	})

	require.NotNil(t, result.Plan)
	assert.NotEqual(t, base.ID, result.Plan.ID)
	assert.Empty(t, result.Plan.Edges)
	assert.Equal(t, 20*time.Minute, result.Plan.TotalEstimatedDuration)
	assert.NotEmpty(t, result.Tradeoffs)

	require.Len(t, result.Deltas, 2)
	for _, d := range result.Deltas {
		if d.Objective == ObjectiveTime {
			assert.Greater(t, d.After, d.Before)
		}
	}
}

func TestPlanClone(t *testing.T) {
	base := &Plan{
		ID:    "base",
		Nodes: []Node{{ID: "a", RequiredCapabilities: []string{"general"}}},
		Edges: []Edge{{From: "a", To: "a"}},
		Validation: &ValidationResult{Valid: true},
	}

	clone := base.Clone()
	assert.NotEqual(t, base.ID, clone.ID)
	assert.Nil(t, clone.Validation)

	clone.Nodes[0].RequiredCapabilities[0] = "changed"
	assert.Equal(t, "general", base.Nodes[0].RequiredCapabilities[0])
}
