package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/fyrsmithlabs/cortexd/internal/dispatch"
	"github.com/fyrsmithlabs/cortexd/internal/feedback"
	"github.com/fyrsmithlabs/cortexd/internal/learning"
	"github.com/fyrsmithlabs/cortexd/internal/metacog"
	"github.com/fyrsmithlabs/cortexd/internal/monitor"
	"github.com/fyrsmithlabs/cortexd/internal/planning"
	"github.com/fyrsmithlabs/cortexd/internal/understanding"
)

// Common errors for session operations.
var (
	ErrSessionNotFound = errors.New("engine: session not found")
	ErrSessionEnded    = errors.New("engine: session already ended")
	ErrEmptyUserID     = errors.New("engine: user id cannot be empty")
	ErrWrongUser       = errors.New("engine: session belongs to another user")
)

// SessionStatus is the lifecycle state of one session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// session is one user's processing session. The per-session mutex
// serializes all mutation; only the holding request writes session state.
type session struct {
	mu sync.Mutex

	id        string
	userID    string
	status    SessionStatus
	startedAt time.Time
	endedAt   *time.Time

	requests       int
	lastConfidence float64
	lastLessons    []string
	lastCycleID    string
}

// EventKind classifies a session lifecycle event.
type EventKind string

const (
	EventProcessingStarted   EventKind = "processing_started"
	EventProcessingCompleted EventKind = "processing_completed"
	EventFeedbackCollected   EventKind = "feedback_collected"
	EventSessionEnded        EventKind = "session_ended"
)

// Event is one session lifecycle notification. Listeners registered for a
// session observe only that session's events.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`

	// Confidence and Success are set on processing_completed events.
	Confidence float64 `json:"confidence,omitempty"`
	Success    bool    `json:"success,omitempty"`

	At time.Time `json:"at"`
}

// Listener receives session events. Invoked synchronously; listeners must
// not call back into the engine for the same session.
type Listener func(Event)

// ProcessResult is the full outcome of one processing request.
type ProcessResult struct {
	SessionID string `json:"session_id"`

	Understanding  *understanding.Understanding          `json:"understanding"`
	Clarifications []understanding.ClarificationQuestion `json:"clarifications,omitempty"`

	Plan      *planning.Plan          `json:"plan,omitempty"`
	Execution *monitor.ExecutionState `json:"execution,omitempty"`
	Dispatch  *dispatch.Result        `json:"dispatch,omitempty"`

	Evaluations     []feedback.EvaluationResult `json:"evaluations,omitempty"`
	FeedbackCycleID string                      `json:"feedback_cycle_id,omitempty"`

	LearningInsights []string                  `json:"learning_insights,omitempty"`
	Knowledge        []learning.Recommendation `json:"knowledge,omitempty"`

	Assessments []*metacog.Assessment `json:"assessments,omitempty"`

	// Confidence aggregates understanding, plan, and execution confidence.
	Confidence float64 `json:"confidence"`

	// Success reports whether every dispatched task completed.
	Success bool `json:"success"`

	CognitiveLoad  metacog.LoadSnapshot `json:"cognitive_load"`
	ProcessingTime time.Duration        `json:"processing_time"`

	NextActions []string `json:"next_actions,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

// Insights is the session-level introspection report.
type Insights struct {
	SessionSummary   string                              `json:"session_summary"`
	LearningInsights []string                            `json:"learning_insights,omitempty"`
	MetaInsights     []*metacog.Insight                  `json:"meta_insights,omitempty"`
	Recommendations  []metacog.ImprovementRecommendation `json:"recommendations,omitempty"`
	CognitiveHealth  string                              `json:"cognitive_health"`
}

// Improvement is one improvement the caller asks the engine to apply.
type Improvement struct {
	// Area targets a cognitive process name, "load_balance", or
	// "meta-learning".
	Area string `json:"area"`

	// Description identifies the improvement; for meta-learning it must
	// match an unresolved insight's description.
	Description string `json:"description"`
}

// ApplyResult reports the outcome of ApplyImprovements.
type ApplyResult struct {
	Applied int      `json:"applied"`
	Failed  int      `json:"failed"`
	Results []string `json:"results"`
}

// Stats is the engine-wide counter snapshot. It contains no wall-clock
// field so that two calls with no intervening activity are identical.
type Stats struct {
	ActiveSessions     int `json:"active_sessions"`
	TotalSessions      int `json:"total_sessions"`
	RequestsProcessed  int `json:"requests_processed"`
	CyclesCompleted    int `json:"cycles_completed"`
	ClarificationStops int `json:"clarification_stops"`

	AverageConfidence float64 `json:"average_confidence"`

	CognitiveLoad metacog.LoadSnapshot `json:"cognitive_load"`
}
