package agent

import (
	"context"
	"errors"
	"time"
)

// Common errors for collaborator contracts.
var (
	ErrRuntimeUnavailable = errors.New("runtime adapter unavailable")
	ErrAgentNotFound      = errors.New("agent not found")
	ErrNoCandidates       = errors.New("no agents match the task criteria")
)

// Intent is the surface-level intent produced by the runtime adapter.
type Intent struct {
	// Type names the intent class (e.g. "schedule", "research", "question").
	Type string `json:"type"`

	// Confidence is the parser's confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Action is the concrete action verb, when the parser resolved one.
	Action string `json:"action,omitempty"`

	// Parameters carries extracted slots keyed by name.
	Parameters map[string]any `json:"parameters,omitempty"`
}

// PlanSketch is the runtime adapter's own rough plan for an intent. The
// planning engine treats it as advisory input only.
type PlanSketch struct {
	// Steps are free-text step descriptions.
	Steps []string `json:"steps"`

	// TotalEstimatedDuration is the adapter's duration estimate.
	TotalEstimatedDuration time.Duration `json:"total_estimated_duration"`

	// Confidence is the adapter's confidence in the sketch.
	Confidence float64 `json:"confidence"`
}

// RuntimeStatus describes the health of the runtime adapter backend.
type RuntimeStatus struct {
	// Provider names the backend (e.g. "openai", "local").
	Provider string `json:"provider"`

	// Version is the backend version string.
	Version string `json:"version"`

	// Status is "ok", "degraded", or "down".
	Status string `json:"status"`

	// LastCheck is when the health was last probed.
	LastCheck time.Time `json:"last_check"`
}

// Runtime is the abstract language-runtime adapter. One implementation
// exists per backend; new backends add implementations of this interface.
type Runtime interface {
	// Initialize prepares the backend. Initialization failure is fatal to
	// session start and must not be retried silently.
	Initialize(ctx context.Context, config map[string]any) error

	// Shutdown releases backend resources.
	Shutdown(ctx context.Context) error

	// ParseIntent extracts the surface intent from one user message.
	ParseIntent(ctx context.Context, userID, message string, context_ map[string]any) (*Intent, error)

	// CreatePlan asks the backend for a rough plan sketch.
	CreatePlan(ctx context.Context, intent *Intent) (*PlanSketch, error)

	// GenerateResponse renders a natural-language response for an intent.
	GenerateResponse(ctx context.Context, intent *Intent) (string, error)

	// Healthy reports whether the backend is reachable.
	Healthy(ctx context.Context) bool

	// Status returns backend identity and health detail.
	Status(ctx context.Context) (*RuntimeStatus, error)
}
