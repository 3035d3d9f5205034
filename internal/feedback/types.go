package feedback

import (
	"errors"
	"time"

	"github.com/fyrsmithlabs/cortexd/internal/monitor"
	"github.com/fyrsmithlabs/cortexd/internal/planning"
	"github.com/fyrsmithlabs/cortexd/internal/understanding"
)

// Common errors for feedback operations.
var (
	ErrCycleNotFound  = errors.New("feedback cycle not found")
	ErrCycleCompleted = errors.New("feedback cycle already completed")
	ErrNotAnalyzed    = errors.New("cycle results have not been processed")
)

// CycleStatus is the cycle state machine position.
type CycleStatus string

const (
	CycleStarted   CycleStatus = "started"
	CycleAnalyzed  CycleStatus = "analyzed"
	CycleRefined   CycleStatus = "refined"
	CycleCompleted CycleStatus = "completed"
)

// IssueType classifies a detected issue.
type IssueType string

const (
	IssuePlanning      IssueType = "planning"
	IssueExecution     IssueType = "execution"
	IssueUnderstanding IssueType = "understanding"
	IssueResource      IssueType = "resource"
	IssueExternal      IssueType = "external"
)

// Severity grades issues and triggers.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Issue is one detected problem in a cycle's results.
type Issue struct {
	// ID is the issue identifier.
	ID string `json:"id"`

	// Type classifies the issue.
	Type IssueType `json:"type"`

	// Severity grades the issue.
	Severity Severity `json:"severity"`

	// RootCause explains the problem, including the measured values.
	RootCause string `json:"root_cause"`

	// Confidence is the detector's confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// SuggestedRefinements are the refinement kinds likely to help.
	SuggestedRefinements []RefinementKind `json:"suggested_refinements,omitempty"`
}

// RefinementKind names one refinement action type.
type RefinementKind string

const (
	RefineReplan              RefinementKind = "replan"
	RefineAdjustUnderstanding RefinementKind = "adjust_understanding"
	RefineOptimizeResources   RefinementKind = "optimize_resources"
	RefineModifyGoals         RefinementKind = "modify_goals"
	RefineChangeApproach      RefinementKind = "change_approach"
	RefineAddConstraints      RefinementKind = "add_constraints"
)

// TriggerKind names a measured deviation that warrants refinement.
type TriggerKind string

const (
	TriggerPerformanceDegradation TriggerKind = "performance_degradation"
	TriggerConfidenceDrop         TriggerKind = "confidence_drop"
	TriggerRepeatedFailure        TriggerKind = "repeated_failure"
	TriggerResourceExhaustion     TriggerKind = "resource_exhaustion"
)

// RefinementAction is one proposed transform.
type RefinementAction struct {
	// Kind is the action type.
	Kind RefinementKind `json:"kind"`

	// Description states what the transform does.
	Description string `json:"description"`

	// ExpectedImpact estimates the confidence gain in [0,1].
	ExpectedImpact float64 `json:"expected_impact"`
}

// RefinementTrigger names a measured deviation and proposes ranked actions.
type RefinementTrigger struct {
	// Kind is the deviation type.
	Kind TriggerKind `json:"kind"`

	// Severity grades the deviation.
	Severity Severity `json:"severity"`

	// Actual and Threshold carry the measured and target values.
	Actual    float64 `json:"actual"`
	Threshold float64 `json:"threshold"`

	// Priority and Urgency weight the trigger in [0,1].
	Priority float64 `json:"priority"`
	Urgency  float64 `json:"urgency"`

	// Actions are ranked proposals, most promising first.
	Actions []RefinementAction `json:"actions"`
}

// AppliedRefinement records one executed refinement action.
type AppliedRefinement struct {
	// Kind is the applied action type.
	Kind RefinementKind `json:"kind"`

	// Succeeded reports whether the transform completed.
	Succeeded bool `json:"succeeded"`

	// Error holds the failure message when Succeeded is false.
	Error string `json:"error,omitempty"`

	// ConfidenceDelta is the measured change in cycle confidence.
	ConfidenceDelta float64 `json:"confidence_delta"`

	// PlanIDBefore and PlanIDAfter track plan replacement; refinements
	// produce new plan ids rather than mutating.
	PlanIDBefore string `json:"plan_id_before,omitempty"`
	PlanIDAfter  string `json:"plan_id_after,omitempty"`

	// AppliedAt is when the action ran.
	AppliedAt time.Time `json:"applied_at"`
}

// EvaluationResult is one task-level evaluation score.
type EvaluationResult struct {
	// TaskID is the evaluated task.
	TaskID string `json:"task_id"`

	// Score is the evaluation score in [0,1].
	Score float64 `json:"score"`
}

// ImprovementMetrics summarize a completed cycle.
type ImprovementMetrics struct {
	// ConfidenceDelta is last minus first recorded confidence.
	ConfidenceDelta float64 `json:"confidence_delta"`

	// SuccessRateDelta is last minus first recorded success rate.
	SuccessRateDelta float64 `json:"success_rate_delta"`

	// ConvergenceRate is the mean absolute step-to-step confidence delta.
	ConvergenceRate float64 `json:"convergence_rate"`
}

// Cycle is one feedback loop pass. Owned by a single session; only that
// session mutates it.
type Cycle struct {
	// ID is the cycle identifier.
	ID string `json:"id"`

	// SessionID is the owning session.
	SessionID string `json:"session_id"`

	// Iteration counts applied refinement rounds.
	Iteration int `json:"iteration"`

	// Status is the state machine position.
	Status CycleStatus `json:"status"`

	// Understanding and Plan are the cycle's current working values;
	// refinements replace them with new instances.
	Understanding *understanding.Understanding `json:"understanding"`
	Plan          *planning.Plan               `json:"plan"`

	// InitialConfidence is the understanding confidence at cycle start.
	InitialConfidence float64 `json:"initial_confidence"`

	// Execution is the recorded execution state snapshot.
	Execution *monitor.ExecutionState `json:"execution,omitempty"`

	// Evaluations are the recorded task evaluation scores.
	Evaluations []EvaluationResult `json:"evaluations,omitempty"`

	// Issues and Triggers are refreshed by each result-processing pass.
	Issues   []Issue             `json:"issues,omitempty"`
	Triggers []RefinementTrigger `json:"triggers,omitempty"`

	// Applied accumulates refinement records across iterations.
	Applied []AppliedRefinement `json:"applied,omitempty"`

	// Improvement is set when the cycle completes.
	Improvement *ImprovementMetrics `json:"improvement,omitempty"`

	// ConfidenceHistory and SuccessRateHistory are progression sequences,
	// oldest first.
	ConfidenceHistory  []float64 `json:"confidence_history"`
	SuccessRateHistory []float64 `json:"success_rate_history"`

	// executionIssueSeen counts execution-type issues across passes,
	// feeding the repeated_failure trigger.
	executionIssueSeen int

	// StartedAt and CompletedAt bound the cycle's lifetime.
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CyclePattern groups archived cycles with matching shape.
type CyclePattern struct {
	// IterationCount is the shared refinement-round count.
	IterationCount int `json:"iteration_count"`

	// AvgImprovement is the mean confidence delta across members.
	AvgImprovement float64 `json:"avg_improvement"`

	// Frequency is the number of matching cycles.
	Frequency int `json:"frequency"`
}
