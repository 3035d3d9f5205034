package metacog

import (
	"time"
)

// Process names one assessed cognitive process. The same names are the
// seven components of the load model.
type Process string

const (
	ProcessUnderstanding Process = "understanding"
	ProcessPlanning      Process = "planning"
	ProcessExecution     Process = "execution"
	ProcessEvaluation    Process = "evaluation"
	ProcessFeedback      Process = "feedback"
	ProcessLearning      Process = "learning"
	ProcessMetaCognition Process = "meta-cognition"
)

// AllProcesses lists the load-model components in stable order.
var AllProcesses = []Process{
	ProcessUnderstanding,
	ProcessPlanning,
	ProcessExecution,
	ProcessEvaluation,
	ProcessFeedback,
	ProcessLearning,
	ProcessMetaCognition,
}

// Verdict grades an assessment's overall score.
type Verdict string

const (
	VerdictExcellent Verdict = "excellent"
	VerdictGood      Verdict = "good"
	VerdictAdequate  Verdict = "adequate"
	VerdictWeak      Verdict = "weak"
	VerdictPoor      Verdict = "poor"
)

// ProcessContext is the caller-declared context for one invocation.
type ProcessContext struct {
	// Process names the invoked process.
	Process Process `json:"process"`

	// Confidence is the process's own output confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Duration is how long the invocation took.
	Duration time.Duration `json:"duration"`

	// HadError reports whether the invocation returned an error.
	HadError bool `json:"had_error"`

	// ResourceUsage is the invocation's normalized resource share in
	// [0,1].
	ResourceUsage float64 `json:"resource_usage"`
}

// Assessment is the four-score evaluation of one invocation.
type Assessment struct {
	// ID is the assessment identifier.
	ID string `json:"id"`

	// Process is the assessed process.
	Process Process `json:"process"`

	// Performance, Efficiency, Accuracy, and Reliability are scored in
	// [0,1].
	Performance float64 `json:"performance"`
	Efficiency  float64 `json:"efficiency"`
	Accuracy    float64 `json:"accuracy"`
	Reliability float64 `json:"reliability"`

	// Overall is the mean of the four scores.
	Overall float64 `json:"overall"`

	// Verdict grades the overall score against fixed cut-points.
	Verdict Verdict `json:"verdict"`

	// CreatedAt is when the assessment was produced.
	CreatedAt time.Time `json:"created_at"`
}

// LoadSnapshot is the current cognitive-load picture.
type LoadSnapshot struct {
	// Components maps each process to its load in [0,1].
	Components map[Process]float64 `json:"components"`

	// Total is the mean component load.
	Total float64 `json:"total"`

	// Balance is 1 − min(1, variance/0.25); 1 means evenly spread.
	Balance float64 `json:"balance"`

	// Bottlenecks are components whose load exceeds the bottleneck bound.
	Bottlenecks []Process `json:"bottlenecks,omitempty"`

	// RebalanceNeeded is set when total, balance, or a bottleneck crosses
	// its bound.
	RebalanceNeeded bool `json:"rebalance_needed"`
}

// Capability is one entry of the capability profile.
type Capability struct {
	// Process is the capability's process.
	Process Process `json:"process"`

	// Score is the blended historical score in [0,1].
	Score float64 `json:"score"`

	// Assessments counts contributing assessments.
	Assessments int `json:"assessments"`
}

// CapabilityProfile is the full profile with derived groupings.
type CapabilityProfile struct {
	// Capabilities maps each assessed process to its entry.
	Capabilities map[Process]*Capability `json:"capabilities"`

	// Strengths, GrowthAreas, and DevelopmentPriorities group processes
	// by score cut-points.
	Strengths             []Process `json:"strengths,omitempty"`
	GrowthAreas           []Process `json:"growth_areas,omitempty"`
	DevelopmentPriorities []Process `json:"development_priorities,omitempty"`
}

// Insight is one recorded meta-learning observation.
type Insight struct {
	// ID is the insight identifier.
	ID string `json:"id"`

	// Description is the observation text.
	Description string `json:"description"`

	// Resolved marks insights already acted on; unresolved insights feed
	// recommendations.
	Resolved bool `json:"resolved"`

	// CreatedAt is when the insight was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// ImprovementRecommendation is one ranked improvement proposal.
type ImprovementRecommendation struct {
	// Area names what the recommendation targets.
	Area string `json:"area"`

	// Description states the proposal.
	Description string `json:"description"`

	// Priority ranks the recommendation in [0,1]; higher first.
	Priority float64 `json:"priority"`
}
