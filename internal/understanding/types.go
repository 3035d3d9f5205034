package understanding

import (
	"errors"
	"time"

	"github.com/fyrsmithlabs/cortexd/internal/agent"
)

// Common errors for understanding operations.
var (
	ErrEmptyMessage     = errors.New("message cannot be empty")
	ErrEmptyUserID      = errors.New("user ID cannot be empty")
	ErrAmbiguityUnknown = errors.New("ambiguity not found on understanding")
)

// Priority ranks goals and derived work.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// priorityRank orders priorities for comparisons.
var priorityRank = map[Priority]int{
	PriorityLow:      0,
	PriorityMedium:   1,
	PriorityHigh:     2,
	PriorityCritical: 3,
}

// Rank returns a comparable ordinal for the priority.
func (p Priority) Rank() int {
	return priorityRank[p]
}

// AmbiguityKind classifies an interpretive gap.
type AmbiguityKind string

const (
	AmbiguityLexical   AmbiguityKind = "lexical"
	AmbiguitySyntactic AmbiguityKind = "syntactic"
	AmbiguitySemantic  AmbiguityKind = "semantic"
	AmbiguityPragmatic AmbiguityKind = "pragmatic"
)

// Criticality grades how much an ambiguity blocks execution.
type Criticality string

const (
	CriticalityLow    Criticality = "low"
	CriticalityMedium Criticality = "medium"
	CriticalityHigh   Criticality = "high"
)

// criticalityRank orders criticalities for sorting.
var criticalityRank = map[Criticality]int{
	CriticalityLow:    0,
	CriticalityMedium: 1,
	CriticalityHigh:   2,
}

// Rank returns a comparable ordinal for the criticality.
func (c Criticality) Rank() int {
	return criticalityRank[c]
}

// ConstraintKind classifies extracted constraints.
type ConstraintKind string

const (
	ConstraintTime     ConstraintKind = "time"
	ConstraintResource ConstraintKind = "resource"
	ConstraintQuality  ConstraintKind = "quality"
)

// Goal is one extracted objective.
type Goal struct {
	// ID is the goal identifier.
	ID string `json:"id"`

	// Description is the extracted goal text.
	Description string `json:"description"`

	// Priority is inferred from urgency keywords.
	Priority Priority `json:"priority"`

	// Measurable reports whether the goal text carries a quantifiable target.
	Measurable bool `json:"measurable"`

	// Deadline is set when a time constraint binds this goal.
	Deadline *time.Time `json:"deadline,omitempty"`
}

// Constraint is one extracted restriction on how goals may be pursued.
type Constraint struct {
	// ID is the constraint identifier.
	ID string `json:"id"`

	// Kind classifies the constraint.
	Kind ConstraintKind `json:"kind"`

	// Description is the constraint text.
	Description string `json:"description"`
}

// Ambiguity is a detected interpretive gap.
type Ambiguity struct {
	// ID is the ambiguity identifier.
	ID string `json:"id"`

	// Kind classifies the ambiguity.
	Kind AmbiguityKind `json:"kind"`

	// Description explains what is unclear.
	Description string `json:"description"`

	// Interpretations lists candidate readings.
	Interpretations []string `json:"interpretations,omitempty"`

	// Confidence is the detector's confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Criticality grades how much this blocks execution.
	Criticality Criticality `json:"criticality"`
}

// ContextualInfo situates the message in the user's broader context.
type ContextualInfo struct {
	// Domain is the inferred subject domain.
	Domain string `json:"domain"`

	// Complexity is a [0,1] estimate from message length and term density.
	Complexity float64 `json:"complexity"`

	// Urgency is a [0,1] estimate from urgency keywords.
	Urgency float64 `json:"urgency"`
}

// SemanticLayer is the structured reading of the message.
type SemanticLayer struct {
	Goals       []Goal         `json:"goals"`
	Constraints []Constraint   `json:"constraints"`
	Context     ContextualInfo `json:"context"`
	Ambiguities []Ambiguity    `json:"ambiguities"`
}

// SuccessCriterion is a measurable condition derived from a goal.
type SuccessCriterion struct {
	// GoalID links back to the originating goal.
	GoalID string `json:"goal_id"`

	// Description states the condition.
	Description string `json:"description"`
}

// RiskFactor is a strategic risk identified during analysis.
type RiskFactor struct {
	// Description names the risk.
	Description string `json:"description"`

	// Severity grades the risk.
	Severity Criticality `json:"severity"`
}

// StrategicLayer captures the why behind the request.
type StrategicLayer struct {
	BusinessObjectives []string           `json:"business_objectives"`
	SuccessCriteria    []SuccessCriterion `json:"success_criteria"`
	RiskFactors        []RiskFactor       `json:"risk_factors"`
}

// Understanding is the full three-layer reading of one user message.
//
// Immutable once produced; Clone before deriving a refined copy.
type Understanding struct {
	// ID is the understanding identifier.
	ID string `json:"id"`

	// UserID is the requesting user.
	UserID string `json:"user_id"`

	// Message is the raw input text.
	Message string `json:"message"`

	// Surface is the intent returned by the runtime adapter.
	Surface agent.Intent `json:"surface"`

	// Semantic is the structured reading.
	Semantic SemanticLayer `json:"semantic"`

	// Strategic captures objectives, criteria, and risks.
	Strategic StrategicLayer `json:"strategic"`

	// Confidence is the aggregate confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// RequiresClarification is true iff any ambiguity is high criticality.
	RequiresClarification bool `json:"requires_clarification"`

	// CreatedAt is when the understanding was produced.
	CreatedAt time.Time `json:"created_at"`
}

// ClarificationQuestion is derived 1:1 from an unresolved ambiguity.
type ClarificationQuestion struct {
	// AmbiguityID is the source ambiguity.
	AmbiguityID string `json:"ambiguity_id"`

	// Question is the text to surface to the user.
	Question string `json:"question"`

	// Criticality mirrors the source ambiguity's criticality.
	Criticality Criticality `json:"criticality"`
}

// HighCriticalityAmbiguities counts ambiguities graded high.
func (u *Understanding) HighCriticalityAmbiguities() int {
	n := 0
	for _, a := range u.Semantic.Ambiguities {
		if a.Criticality == CriticalityHigh {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the understanding. Every slice and map is
// copied; the copy shares no mutable state with the original.
func (u *Understanding) Clone() *Understanding {
	out := &Understanding{
		ID:                    u.ID,
		UserID:                u.UserID,
		Message:               u.Message,
		Confidence:            u.Confidence,
		RequiresClarification: u.RequiresClarification,
		CreatedAt:             u.CreatedAt,
	}

	out.Surface = agent.Intent{
		Type:       u.Surface.Type,
		Confidence: u.Surface.Confidence,
		Action:     u.Surface.Action,
	}
	if u.Surface.Parameters != nil {
		out.Surface.Parameters = make(map[string]any, len(u.Surface.Parameters))
		for k, v := range u.Surface.Parameters {
			out.Surface.Parameters[k] = v
		}
	}

	out.Semantic.Goals = make([]Goal, len(u.Semantic.Goals))
	for i, g := range u.Semantic.Goals {
		out.Semantic.Goals[i] = g
		if g.Deadline != nil {
			d := *g.Deadline
			out.Semantic.Goals[i].Deadline = &d
		}
	}
	out.Semantic.Constraints = append([]Constraint(nil), u.Semantic.Constraints...)
	out.Semantic.Context = u.Semantic.Context
	out.Semantic.Ambiguities = make([]Ambiguity, len(u.Semantic.Ambiguities))
	for i, a := range u.Semantic.Ambiguities {
		out.Semantic.Ambiguities[i] = a
		out.Semantic.Ambiguities[i].Interpretations = append([]string(nil), a.Interpretations...)
	}

	out.Strategic.BusinessObjectives = append([]string(nil), u.Strategic.BusinessObjectives...)
	out.Strategic.SuccessCriteria = append([]SuccessCriterion(nil), u.Strategic.SuccessCriteria...)
	out.Strategic.RiskFactors = append([]RiskFactor(nil), u.Strategic.RiskFactors...)

	return out
}
