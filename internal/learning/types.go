package learning

import (
	"errors"
	"time"
)

// Common errors for learning operations.
var (
	ErrNilCycle      = errors.New("cycle cannot be nil")
	ErrNoExecution   = errors.New("cycle has no recorded execution state")
	ErrEmptyQuery    = errors.New("knowledge query cannot be empty")
)

// Classification buckets an example by execution outcome.
type Classification string

const (
	ClassSuccess        Classification = "success"
	ClassPartialSuccess Classification = "partial_success"
	ClassFailure        Classification = "failure"
)

// Complexity buckets a plan by size.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// OutcomeMetrics are the numbers an example was classified from.
type OutcomeMetrics struct {
	SuccessRate     float64       `json:"success_rate"`
	ErrorRate       float64       `json:"error_rate"`
	Confidence      float64       `json:"confidence"`
	Iterations      int           `json:"iterations"`
	Duration        time.Duration `json:"duration"`
	ConfidenceDelta float64       `json:"confidence_delta"`
}

// Example is one classified learning example derived from a completed cycle.
// Examples are append-only; the oldest are trimmed when the history cap is
// hit.
type Example struct {
	// ID is the example identifier.
	ID string `json:"id"`

	// CycleID links back to the source feedback cycle.
	CycleID string `json:"cycle_id"`

	// Classification buckets the outcome.
	Classification Classification `json:"classification"`

	// Domain is the understanding's subject domain.
	Domain string `json:"domain"`

	// Complexity buckets the plan size.
	Complexity Complexity `json:"complexity"`

	// SuccessFactors and FailureFactors are extracted tag sets.
	SuccessFactors []string `json:"success_factors,omitempty"`
	FailureFactors []string `json:"failure_factors,omitempty"`

	// Lessons are derived free-text takeaways.
	Lessons []string `json:"lessons,omitempty"`

	// Metrics are the classified numbers.
	Metrics OutcomeMetrics `json:"metrics"`

	// CreatedAt is when the example was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// Pattern is a mined regularity across similar examples.
type Pattern struct {
	// ID is the pattern identifier.
	ID string `json:"id"`

	// Domain, Complexity, and Classification define the example group.
	Domain         string         `json:"domain"`
	Complexity     Complexity     `json:"complexity"`
	Classification Classification `json:"classification"`

	// Factor is the shared factor tag.
	Factor string `json:"factor"`

	// Frequency counts corroborating examples.
	Frequency int `json:"frequency"`

	// Confidence grows as the pattern recurs, capped at 1.
	Confidence float64 `json:"confidence"`
}

// SuccessStrategy is a per-domain rolling record of what works.
type SuccessStrategy struct {
	// Domain the strategy applies to.
	Domain string `json:"domain"`

	// Description summarizes the strategy.
	Description string `json:"description"`

	// SuccessRate is a rolling outcome average.
	SuccessRate float64 `json:"success_rate"`

	// Confidence adjusts up on success and down on failure.
	Confidence float64 `json:"confidence"`

	// Uses counts contributing examples.
	Uses int `json:"uses"`
}

// FailureType classifies a failure from free-text heuristics.
type FailureType string

const (
	FailureTimeout       FailureType = "timeout"
	FailureResource      FailureType = "resource"
	FailureAuthorization FailureType = "authorization"
	FailureNetwork       FailureType = "network"
	FailureValidation    FailureType = "validation"
	FailureDependency    FailureType = "dependency"
	FailureGeneral       FailureType = "general"
)

// FailureMitigation is the accumulated counter-knowledge for one failure
// type.
type FailureMitigation struct {
	// Type is the classified failure type.
	Type FailureType `json:"type"`

	// WarningSignals name observable precursors.
	WarningSignals []string `json:"warning_signals"`

	// Prevention and Recovery list actions before and after the fact.
	Prevention []string `json:"prevention"`
	Recovery   []string `json:"recovery"`

	// Confidence grows by a fixed increment per corroborating example.
	Confidence float64 `json:"confidence"`

	// Occurrences counts contributing examples.
	Occurrences int `json:"occurrences"`
}

// Recommendation is one ranked knowledge-base hit for a new understanding.
type Recommendation struct {
	// Kind names the knowledge source (pattern, strategy, mitigation,
	// lesson).
	Kind string `json:"kind"`

	// Domain is the knowledge item's applicability.
	Domain string `json:"domain"`

	// Description is the retrieved text.
	Description string `json:"description"`

	// Score ranks the recommendation; higher is more relevant.
	Score float64 `json:"score"`
}
