package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/cortexd/internal/planning"
)

// Config holds the monitor's tunables. The thresholds and z-score bounds are
// uncalibrated heuristics inherited from the original platform, exposed as
// configuration rather than literals.
type Config struct {
	// SampleInterval is the period of the per-plan sampling loop.
	SampleInterval time.Duration `koanf:"sample_interval"`

	// CPUThreshold and MemoryThreshold raise threshold alerts when
	// exceeded.
	CPUThreshold    float64 `koanf:"cpu_threshold"`
	MemoryThreshold float64 `koanf:"memory_threshold"`

	// FailureRateThreshold raises a threshold alert when the error rate
	// exceeds it.
	FailureRateThreshold float64 `koanf:"failure_rate_threshold"`

	// PerformanceFloor is the success rate below which a
	// performance_degradation trigger is raised.
	PerformanceFloor float64 `koanf:"performance_floor"`

	// ResourceCeiling is the cpu/memory level above which a
	// resource_constraint trigger is raised.
	ResourceCeiling float64 `koanf:"resource_ceiling"`

	// AnomalyWindow and AnomalyMinSamples shape the per-metric rolling
	// history.
	AnomalyWindow     int `koanf:"anomaly_window"`
	AnomalyMinSamples int `koanf:"anomaly_min_samples"`

	// ZHigh and ZCritical are the z-score severity bounds.
	ZHigh     float64 `koanf:"z_high"`
	ZCritical float64 `koanf:"z_critical"`

	// AlertHistoryCap and AlertHistoryTrim bound the alert history: on
	// reaching the cap, the history is trimmed to the most recent trim
	// count.
	AlertHistoryCap  int `koanf:"alert_history_cap"`
	AlertHistoryTrim int `koanf:"alert_history_trim"`
}

// DefaultConfig returns the stock monitoring thresholds.
func DefaultConfig() Config {
	return Config{
		SampleInterval:       5 * time.Second,
		CPUThreshold:         0.9,
		MemoryThreshold:      0.9,
		FailureRateThreshold: 0.2,
		PerformanceFloor:     0.8,
		ResourceCeiling:      0.9,
		AnomalyWindow:        100,
		AnomalyMinSamples:    10,
		ZHigh:                3,
		ZCritical:            4,
		AlertHistoryCap:      1000,
		AlertHistoryTrim:     500,
	}
}

// Sampler produces a resource-usage snapshot for one execution state. The
// default sampler simulates usage from the active task count; deployments
// with real telemetry plug in their own.
type Sampler func(state *ExecutionState) ResourceUsage

// simulatedSampler derives plausible usage figures from the task counts.
func simulatedSampler(state *ExecutionState) ResourceUsage {
	active := float64(len(state.ActiveTasks))
	cpu := 0.1 + 0.08*active
	if cpu > 0.95 {
		cpu = 0.95
	}
	mem := 0.15 + 0.06*active
	if mem > 0.95 {
		mem = 0.95
	}
	return ResourceUsage{
		CPU:     cpu,
		Memory:  mem,
		Network: 0.05 * active,
		Cost:    state.Resources.Cost,
		Elapsed: time.Since(state.StartedAt),
	}
}

// Monitor tracks execution state for registered plans. One sampling
// goroutine runs per monitored plan until stopped or the state turns
// terminal.
type Monitor struct {
	cfg     Config
	sampler Sampler
	logger  *zap.Logger

	mu        sync.Mutex
	states    map[string]*ExecutionState
	detectors map[string]*AnomalyDetector
	stops     map[string]chan struct{}
	alerts    []Alert
	triggers  map[string][]AdaptationTrigger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithSampler replaces the simulated resource sampler.
func WithSampler(s Sampler) Option {
	return func(m *Monitor) {
		m.sampler = s
	}
}

// NewMonitor creates a monitor.
func NewMonitor(cfg Config, logger *zap.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Monitor{
		cfg:       cfg,
		sampler:   simulatedSampler,
		logger:    logger,
		states:    make(map[string]*ExecutionState),
		detectors: make(map[string]*AnomalyDetector),
		stops:     make(map[string]chan struct{}),
		triggers:  make(map[string][]AdaptationTrigger),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartMonitoring registers an execution state and anomaly detector for the
// plan and starts its sampling loop. Returns ErrAlreadyRunning if the plan
// is already monitored.
func (m *Monitor) StartMonitoring(plan *planning.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stops[plan.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, plan.ID)
	}

	now := time.Now()
	m.states[plan.ID] = &ExecutionState{
		PlanID:         plan.ID,
		Status:         StatusRunning,
		CompletedTasks: make(map[string]bool),
		ActiveTasks:    make(map[string]bool),
		FailedTasks:    make(map[string]bool),
		TotalTasks:     len(plan.Nodes),
		StartedAt:      now,
		UpdatedAt:      now,
	}
	m.detectors[plan.ID] = NewAnomalyDetector(
		m.cfg.AnomalyWindow, m.cfg.AnomalyMinSamples, m.cfg.ZHigh, m.cfg.ZCritical)

	stopCh := make(chan struct{})
	m.stops[plan.ID] = stopCh

	m.logger.Info("monitoring started",
		zap.String("plan_id", plan.ID),
		zap.Int("tasks", len(plan.Nodes)),
		zap.Duration("interval", m.cfg.SampleInterval))

	go m.run(plan.ID, stopCh)
	return nil
}

// StopMonitoring halts the plan's sampling loop and marks its state with the
// given terminal status.
func (m *Monitor) StopMonitoring(planID string, status ExecutionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[planID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPlanNotMonitored, planID)
	}
	if stopCh, running := m.stops[planID]; running {
		close(stopCh)
		delete(m.stops, planID)
	}
	if !state.Status.Terminal() {
		state.Status = status
		state.UpdatedAt = time.Now()
	}
	m.logger.Info("monitoring stopped",
		zap.String("plan_id", planID),
		zap.String("status", string(state.Status)))
	return nil
}

// run is the per-plan sampling loop.
func (m *Monitor) run(planID string, stopCh chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("monitor loop panicked",
				zap.String("plan_id", planID),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	ticker := time.NewTicker(m.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sample(planID)
		case <-stopCh:
			return
		}
	}
}

// RecordTaskEvent applies one task-status update to the plan's execution
// state and recomputes progress and performance counts.
func (m *Monitor) RecordTaskEvent(planID string, event TaskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[planID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPlanNotMonitored, planID)
	}
	if state.Status.Terminal() {
		return fmt.Errorf("%w: plan %s is %s", ErrTerminalState, planID, state.Status)
	}

	switch event.Kind {
	case TaskStarted:
		state.ActiveTasks[event.TaskID] = true
	case TaskCompleted:
		delete(state.ActiveTasks, event.TaskID)
		state.CompletedTasks[event.TaskID] = true
		state.taskDurations = append(state.taskDurations, event.Duration)
		state.Resources.Cost += event.Cost
	case TaskFailed:
		delete(state.ActiveTasks, event.TaskID)
		state.FailedTasks[event.TaskID] = true
		state.taskDurations = append(state.taskDurations, event.Duration)
	case TaskPaused:
		delete(state.ActiveTasks, event.TaskID)
	default:
		return fmt.Errorf("unknown task event kind %q", event.Kind)
	}

	m.recomputeLocked(state)
	state.UpdatedAt = time.Now()
	return nil
}

// recomputeLocked refreshes progress and derived performance metrics.
// Caller holds m.mu.
func (m *Monitor) recomputeLocked(state *ExecutionState) {
	if state.TotalTasks > 0 {
		state.Progress = float64(len(state.CompletedTasks)) / float64(state.TotalTasks)
	}

	perf := &state.Performance
	perf.CompletedTasks = len(state.CompletedTasks)
	perf.RunningTasks = len(state.ActiveTasks)
	perf.FailedTasks = len(state.FailedTasks)

	finished := perf.CompletedTasks + perf.FailedTasks
	if finished > 0 {
		perf.SuccessRate = float64(perf.CompletedTasks) / float64(finished)
		perf.ErrorRate = float64(perf.FailedTasks) / float64(finished)
	} else {
		perf.SuccessRate = 1
		perf.ErrorRate = 0
	}

	if len(state.taskDurations) > 0 {
		var total time.Duration
		for _, d := range state.taskDurations {
			total += d
		}
		perf.AverageTaskDuration = total / time.Duration(len(state.taskDurations))
	}

	if elapsed := time.Since(state.StartedAt); elapsed > 0 {
		perf.Throughput = float64(perf.CompletedTasks) / elapsed.Minutes()
	}
}

// sample runs one sampling cycle for a plan: refresh resources and derived
// metrics, feed the anomaly detector, check static thresholds, and refresh
// adaptation triggers.
func (m *Monitor) sample(planID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[planID]
	if !ok || state.Status.Terminal() {
		return
	}

	state.Resources = m.sampler(state)
	state.Resources.Elapsed = time.Since(state.StartedAt)
	m.recomputeLocked(state)
	state.UpdatedAt = time.Now()

	detector := m.detectors[planID]
	for metric, value := range map[string]float64{
		"cpu":          state.Resources.CPU,
		"memory":       state.Resources.Memory,
		"error_rate":   state.Performance.ErrorRate,
		"success_rate": state.Performance.SuccessRate,
	} {
		if anomaly, ok := detector.Observe(metric, value); ok {
			m.raiseLocked(Alert{
				ID:       uuid.New().String(),
				PlanID:   planID,
				Kind:     AlertAnomaly,
				Metric:   anomaly.Metric,
				Severity: anomaly.Severity,
				Message: fmt.Sprintf("metric %s value %.3f deviates %.1f standard deviations from mean %.3f",
					anomaly.Metric, anomaly.Value, anomaly.ZScore, anomaly.Mean),
				Value:     anomaly.Value,
				Threshold: anomaly.Mean,
			})
		}
	}

	m.checkThresholdsLocked(state)
	m.triggers[planID] = m.analyzeAdaptation(state)
}

// checkThresholdsLocked compares resources and error rate against the static
// thresholds. Caller holds m.mu.
func (m *Monitor) checkThresholdsLocked(state *ExecutionState) {
	checks := []struct {
		metric    string
		value     float64
		threshold float64
	}{
		{"cpu", state.Resources.CPU, m.cfg.CPUThreshold},
		{"memory", state.Resources.Memory, m.cfg.MemoryThreshold},
		{"error_rate", state.Performance.ErrorRate, m.cfg.FailureRateThreshold},
	}
	for _, c := range checks {
		if c.threshold > 0 && c.value > c.threshold {
			m.raiseLocked(Alert{
				ID:       uuid.New().String(),
				PlanID:   state.PlanID,
				Kind:     AlertThreshold,
				Metric:   c.metric,
				Severity: SeverityHigh,
				Message: fmt.Sprintf("metric %s value %.3f exceeds threshold %.3f",
					c.metric, c.value, c.threshold),
				Value:     c.value,
				Threshold: c.threshold,
			})
		}
	}
}

// analyzeAdaptation derives adaptation triggers from the sampled state.
func (m *Monitor) analyzeAdaptation(state *ExecutionState) []AdaptationTrigger {
	var triggers []AdaptationTrigger

	finished := len(state.CompletedTasks) + len(state.FailedTasks)
	if finished > 0 && state.Performance.SuccessRate < m.cfg.PerformanceFloor {
		urgency := (m.cfg.PerformanceFloor - state.Performance.SuccessRate) / m.cfg.PerformanceFloor
		triggers = append(triggers, AdaptationTrigger{
			Kind:    TriggerPerformanceDegradation,
			PlanID:  state.PlanID,
			Urgency: clampUnitMetric(urgency),
			Impact:  0.8,
			RecommendedActions: []string{
				"trigger a feedback refinement cycle",
				"reassign failing tasks to alternative agents",
				"reduce plan scope to high-priority goals",
			},
		})
	}

	if state.Resources.CPU > m.cfg.ResourceCeiling || state.Resources.Memory > m.cfg.ResourceCeiling {
		over := state.Resources.CPU
		if state.Resources.Memory > over {
			over = state.Resources.Memory
		}
		triggers = append(triggers, AdaptationTrigger{
			Kind:    TriggerResourceConstraint,
			PlanID:  state.PlanID,
			Urgency: clampUnitMetric((over - m.cfg.ResourceCeiling) / (1 - m.cfg.ResourceCeiling)),
			Impact:  0.7,
			RecommendedActions: []string{
				"lower the dispatch concurrency limit",
				"pause low-priority tasks",
				"defer new task starts until usage drops",
			},
		})
	}

	return triggers
}

// raiseLocked appends an alert, trimming the history when the cap is hit.
// Caller holds m.mu.
func (m *Monitor) raiseLocked(alert Alert) {
	alert.CreatedAt = time.Now()
	m.alerts = append(m.alerts, alert)
	if m.cfg.AlertHistoryCap > 0 && len(m.alerts) > m.cfg.AlertHistoryCap {
		keep := m.cfg.AlertHistoryTrim
		if keep <= 0 || keep > len(m.alerts) {
			keep = len(m.alerts)
		}
		m.alerts = append([]Alert(nil), m.alerts[len(m.alerts)-keep:]...)
	}

	m.logger.Warn("alert raised",
		zap.String("plan_id", alert.PlanID),
		zap.String("kind", string(alert.Kind)),
		zap.String("metric", alert.Metric),
		zap.String("severity", string(alert.Severity)),
		zap.Float64("value", alert.Value))
}

// State returns a snapshot of the plan's execution state.
func (m *Monitor) State(planID string) (ExecutionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[planID]
	if !ok {
		return ExecutionState{}, fmt.Errorf("%w: %s", ErrPlanNotMonitored, planID)
	}

	out := *state
	out.CompletedTasks = copySet(state.CompletedTasks)
	out.ActiveTasks = copySet(state.ActiveTasks)
	out.FailedTasks = copySet(state.FailedTasks)
	out.Performance.Bottlenecks = append([]string(nil), state.Performance.Bottlenecks...)
	out.taskDurations = nil
	return out, nil
}

// Alerts returns the alert history for one plan, oldest first.
func (m *Monitor) Alerts(planID string) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Alert
	for _, a := range m.alerts {
		if a.PlanID == planID {
			out = append(out, a)
		}
	}
	return out
}

// Triggers returns the adaptation triggers from the latest sampling cycle.
func (m *Monitor) Triggers(planID string) []AdaptationTrigger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AdaptationTrigger(nil), m.triggers[planID]...)
}

func copySet(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func clampUnitMetric(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
