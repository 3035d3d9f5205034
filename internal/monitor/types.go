package monitor

import (
	"errors"
	"time"
)

// Common errors for monitoring operations.
var (
	ErrPlanNotMonitored = errors.New("plan is not being monitored")
	ErrAlreadyRunning   = errors.New("monitor already running for plan")
	ErrTerminalState    = errors.New("execution state is terminal")
)

// ExecutionStatus is the lifecycle status of one plan execution.
type ExecutionStatus string

const (
	StatusInitializing ExecutionStatus = "initializing"
	StatusRunning      ExecutionStatus = "running"
	StatusPaused       ExecutionStatus = "paused"
	StatusCompleted    ExecutionStatus = "completed"
	StatusFailed       ExecutionStatus = "failed"
	StatusCancelled    ExecutionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ResourceUsage is one sampled snapshot of execution resources. CPU, memory,
// and network are normalized to [0,1].
type ResourceUsage struct {
	CPU     float64       `json:"cpu"`
	Memory  float64       `json:"memory"`
	Network float64       `json:"network"`
	Cost    float64       `json:"cost"`
	Elapsed time.Duration `json:"elapsed"`
}

// PerformanceMetrics are derived from task counts each sampling cycle.
type PerformanceMetrics struct {
	CompletedTasks      int           `json:"completed_tasks"`
	RunningTasks        int           `json:"running_tasks"`
	FailedTasks         int           `json:"failed_tasks"`
	AverageTaskDuration time.Duration `json:"average_task_duration"`
	SuccessRate         float64       `json:"success_rate"`
	Throughput          float64       `json:"throughput"`
	ErrorRate           float64       `json:"error_rate"`
	Bottlenecks         []string      `json:"bottlenecks,omitempty"`
}

// ExecutionState is the live state of one plan execution.
//
// Mutated in place by the owning Monitor as task events arrive; terminal
// once Status leaves running.
type ExecutionState struct {
	// PlanID is the executing plan.
	PlanID string `json:"plan_id"`

	// Status is the lifecycle status.
	Status ExecutionStatus `json:"status"`

	// CompletedTasks, ActiveTasks, and FailedTasks partition the seen
	// task ids.
	CompletedTasks map[string]bool `json:"completed_tasks"`
	ActiveTasks    map[string]bool `json:"active_tasks"`
	FailedTasks    map[string]bool `json:"failed_tasks"`

	// TotalTasks is the plan's node count, used for progress.
	TotalTasks int `json:"total_tasks"`

	// Progress is the completed fraction in [0,1].
	Progress float64 `json:"progress"`

	// Resources is the latest sampled usage.
	Resources ResourceUsage `json:"resources"`

	// Performance holds the derived metrics.
	Performance PerformanceMetrics `json:"performance"`

	// StartedAt and UpdatedAt bound the state's lifetime.
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// taskDurations accumulates completed-task durations for the average.
	taskDurations []time.Duration
}

// TaskEventKind classifies a task-status event.
type TaskEventKind string

const (
	TaskStarted   TaskEventKind = "started"
	TaskCompleted TaskEventKind = "completed"
	TaskFailed    TaskEventKind = "failed"
	TaskPaused    TaskEventKind = "paused"
)

// TaskEvent is one task-status update fed to the Monitor.
type TaskEvent struct {
	// TaskID is the plan node id.
	TaskID string `json:"task_id"`

	// Kind is the status transition.
	Kind TaskEventKind `json:"kind"`

	// Duration is set on completion and failure.
	Duration time.Duration `json:"duration,omitempty"`

	// Cost is the incremental cost incurred by the task, if known.
	Cost float64 `json:"cost,omitempty"`
}

// AlertKind classifies an alert's origin.
type AlertKind string

const (
	AlertAnomaly   AlertKind = "anomaly"
	AlertThreshold AlertKind = "threshold"
)

// Alert is one raised monitoring alert.
type Alert struct {
	// ID is the alert identifier.
	ID string `json:"id"`

	// PlanID is the plan the alert belongs to.
	PlanID string `json:"plan_id"`

	// Kind is the alert origin.
	Kind AlertKind `json:"kind"`

	// Metric names the offending metric.
	Metric string `json:"metric"`

	// Severity grades the alert.
	Severity AnomalySeverity `json:"severity"`

	// Message explains the alert, including the offending values.
	Message string `json:"message"`

	// Value and Threshold carry the measured and allowed values.
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`

	// CreatedAt is when the alert was raised.
	CreatedAt time.Time `json:"created_at"`
}

// TriggerKind classifies an adaptation trigger.
type TriggerKind string

const (
	TriggerPerformanceDegradation TriggerKind = "performance_degradation"
	TriggerResourceConstraint     TriggerKind = "resource_constraint"
)

// AdaptationTrigger recommends execution adaptation based on sampled state.
type AdaptationTrigger struct {
	// Kind names the trigger.
	Kind TriggerKind `json:"kind"`

	// PlanID is the triggering plan.
	PlanID string `json:"plan_id"`

	// Urgency and Impact score the trigger in [0,1].
	Urgency float64 `json:"urgency"`
	Impact  float64 `json:"impact"`

	// RecommendedActions are ranked, most effective first.
	RecommendedActions []string `json:"recommended_actions"`
}
