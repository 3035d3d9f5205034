package agent

import (
	"context"
	"time"
)

// TaskRequest is one delegated unit of work.
type TaskRequest struct {
	// TaskID is the plan node id being executed.
	TaskID string `json:"task_id"`

	// UserID is the owning user.
	UserID string `json:"user_id"`

	// AgentID is the worker agent resolved for this task.
	AgentID string `json:"agent_id"`

	// Capability names the capability being invoked.
	Capability string `json:"capability"`

	// Input is the task payload.
	Input map[string]any `json:"input,omitempty"`

	// Priority orders tasks within a dispatch wave (higher first).
	Priority int `json:"priority"`

	// Timeout bounds the delegation call. Enforced at the call boundary.
	Timeout time.Duration `json:"timeout"`
}

// TaskResult is the outcome of one delegated task.
type TaskResult struct {
	// TaskID echoes the request.
	TaskID string `json:"task_id"`

	// AgentID is the agent that executed the task.
	AgentID string `json:"agent_id"`

	// Success reports whether the task completed without error.
	Success bool `json:"success"`

	// Output is the task's result payload.
	Output map[string]any `json:"output,omitempty"`

	// Error holds the failure message when Success is false.
	Error string `json:"error,omitempty"`

	// Duration is how long the delegation took.
	Duration time.Duration `json:"duration"`
}

// Worker is the delegation contract for a single worker agent.
type Worker interface {
	// DelegateTask executes one task. Implementations must honor ctx
	// cancellation and the request timeout.
	DelegateTask(ctx context.Context, req TaskRequest) (*TaskResult, error)

	// CancelTask requests cooperative cancellation of an in-flight task.
	CancelTask(ctx context.Context, taskID string) error
}
