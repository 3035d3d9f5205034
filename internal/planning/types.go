package planning

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/cortexd/internal/understanding"
)

// Common errors for planning operations.
var (
	ErrNoGoals        = errors.New("understanding has no goals to plan for")
	ErrPlanInvalid    = errors.New("plan failed validation")
	ErrUnknownNode    = errors.New("edge references unknown node")
	ErrNilUnderstanding = errors.New("understanding cannot be nil")
)

// NodeKind classifies a plan node.
type NodeKind string

const (
	NodeGoal     NodeKind = "goal"
	NodeTask     NodeKind = "task"
	NodeDecision NodeKind = "decision"
	NodeParallel NodeKind = "parallel"
	NodeSequence NodeKind = "sequence"
)

// EdgeKind classifies a dependency edge.
type EdgeKind string

const (
	EdgeSequential  EdgeKind = "sequential"
	EdgeParallel    EdgeKind = "parallel"
	EdgeConditional EdgeKind = "conditional"
)

// RiskLevel grades a plan's overall risk.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Node is one unit of plannable work.
type Node struct {
	// ID is the node identifier.
	ID string `json:"id"`

	// Kind classifies the node.
	Kind NodeKind `json:"kind"`

	// Label is a short human-readable description.
	Label string `json:"label"`

	// GoalID links back to the originating goal, when there is one.
	GoalID string `json:"goal_id,omitempty"`

	// Priority is inherited from the goal.
	Priority understanding.Priority `json:"priority"`

	// Domain is the node's inferred subject domain.
	Domain string `json:"domain,omitempty"`

	// EstimatedDuration is the execution time estimate.
	EstimatedDuration time.Duration `json:"estimated_duration"`

	// EstimatedCost is the execution cost estimate in abstract units.
	EstimatedCost float64 `json:"estimated_cost"`

	// RequiredCapabilities are the worker capabilities this node needs.
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`

	// Confidence is the planner's confidence in the estimates.
	Confidence float64 `json:"confidence"`
}

// Edge is one dependency between two nodes.
type Edge struct {
	// From is the prerequisite node id.
	From string `json:"from"`

	// To is the dependent node id.
	To string `json:"to"`

	// Kind classifies the dependency.
	Kind EdgeKind `json:"kind"`
}

// IssueType classifies a validation issue.
type IssueType string

const (
	IssueResource   IssueType = "resource"
	IssueDependency IssueType = "dependency"
	IssueCapability IssueType = "capability"
	IssueTimeline   IssueType = "timeline"
	IssueCost       IssueType = "cost"
)

// Severity grades a validation issue.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ValidationIssue is one problem found during plan validation.
type ValidationIssue struct {
	// Type classifies the issue.
	Type IssueType `json:"type"`

	// Severity grades the issue.
	Severity Severity `json:"severity"`

	// Description explains the problem, including the offending values.
	Description string `json:"description"`

	// NodeID names the offending node when the issue is node-scoped.
	NodeID string `json:"node_id,omitempty"`
}

// ValidationResult is the merged outcome of the five validation checks.
type ValidationResult struct {
	// Valid reports whether the plan is acceptable under the configured
	// strictness.
	Valid bool `json:"valid"`

	// Confidence is the post-validation confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Issues lists every problem found, across all checks.
	Issues []ValidationIssue `json:"issues"`

	// Recommendations suggest how to address the issues.
	Recommendations []string `json:"recommendations,omitempty"`

	// EstimatedSuccessRate is the predicted execution success rate.
	EstimatedSuccessRate float64 `json:"estimated_success_rate"`
}

// CriticalCount returns the number of critical issues.
func (r *ValidationResult) CriticalCount() int {
	return r.countSeverity(SeverityCritical)
}

// HighCount returns the number of high-severity issues.
func (r *ValidationResult) HighCount() int {
	return r.countSeverity(SeverityHigh)
}

func (r *ValidationResult) countSeverity(s Severity) int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Severity == s {
			n++
		}
	}
	return n
}

// Plan is a validated, dependency-ordered execution plan.
//
// Read-only once validated; derive changed plans via Clone, which assigns a
// fresh id.
type Plan struct {
	// ID is the plan identifier.
	ID string `json:"id"`

	// OwnerID is the user the plan was built for.
	OwnerID string `json:"owner_id"`

	// UnderstandingID links back to the originating understanding.
	UnderstandingID string `json:"understanding_id"`

	// Nodes is the node set.
	Nodes []Node `json:"nodes"`

	// Edges is the dependency edge set.
	Edges []Edge `json:"edges"`

	// TotalEstimatedDuration is the parallel-subset max plus the
	// sequential-subset sum.
	TotalEstimatedDuration time.Duration `json:"total_estimated_duration"`

	// TotalEstimatedCost is the sum of node costs.
	TotalEstimatedCost float64 `json:"total_estimated_cost"`

	// Confidence is the plan confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// RiskLevel is the plan's overall risk grade.
	RiskLevel RiskLevel `json:"risk_level"`

	// Validation is set once the plan has been validated.
	Validation *ValidationResult `json:"validation,omitempty"`

	// CreatedAt is when the plan was built.
	CreatedAt time.Time `json:"created_at"`
}

// Node returns the node with the given id.
func (p *Plan) Node(id string) (*Node, bool) {
	for i := range p.Nodes {
		if p.Nodes[i].ID == id {
			return &p.Nodes[i], true
		}
	}
	return nil, false
}

// Dependencies returns, for every node, the ids of its prerequisite nodes.
func (p *Plan) Dependencies() map[string][]string {
	deps := make(map[string][]string, len(p.Nodes))
	for _, n := range p.Nodes {
		deps[n.ID] = nil
	}
	for _, e := range p.Edges {
		deps[e.To] = append(deps[e.To], e.From)
	}
	return deps
}

// Clone returns a deep copy of the plan under a fresh id. The validation
// result is not carried over; derived plans must be re-validated.
func (p *Plan) Clone() *Plan {
	out := &Plan{
		ID:                     uuid.New().String(),
		OwnerID:                p.OwnerID,
		UnderstandingID:        p.UnderstandingID,
		TotalEstimatedDuration: p.TotalEstimatedDuration,
		TotalEstimatedCost:     p.TotalEstimatedCost,
		Confidence:             p.Confidence,
		RiskLevel:              p.RiskLevel,
		CreatedAt:              time.Now(),
	}
	out.Nodes = make([]Node, len(p.Nodes))
	for i, n := range p.Nodes {
		out.Nodes[i] = n
		out.Nodes[i].RequiredCapabilities = append([]string(nil), n.RequiredCapabilities...)
	}
	out.Edges = append([]Edge(nil), p.Edges...)
	return out
}
