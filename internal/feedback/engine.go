package feedback

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/cortexd/internal/monitor"
	"github.com/fyrsmithlabs/cortexd/internal/planning"
	"github.com/fyrsmithlabs/cortexd/internal/understanding"
)

// Config holds the feedback loop's tunables. Thresholds are uncalibrated
// heuristics inherited from the original platform.
type Config struct {
	// PerformanceThreshold is the success rate below which refinement is
	// warranted.
	PerformanceThreshold float64 `koanf:"performance_threshold"`

	// ConfidenceThreshold is the confidence below which a confidence_drop
	// trigger is raised.
	ConfidenceThreshold float64 `koanf:"confidence_threshold"`

	// ConvergenceThreshold bounds the variance of the last three recorded
	// confidences; below it the cycle is converged.
	ConvergenceThreshold float64 `koanf:"convergence_threshold"`

	// MaxIterations caps refinement rounds per cycle.
	MaxIterations int `koanf:"max_iterations"`

	// RefinementScoreThreshold gates refinement when no high or critical
	// trigger exists.
	RefinementScoreThreshold float64 `koanf:"refinement_score_threshold"`

	// MaxTriggersPerRound and MaxActionsPerTrigger bound one refinement
	// application.
	MaxTriggersPerRound  int `koanf:"max_triggers_per_round"`
	MaxActionsPerTrigger int `koanf:"max_actions_per_trigger"`

	// ConfidenceStep is the fixed delta credited per successful action.
	ConfidenceStep float64 `koanf:"confidence_step"`

	// HistoryCap bounds the archived-cycle history.
	HistoryCap int `koanf:"history_cap"`
}

// DefaultConfig returns the stock feedback heuristics.
func DefaultConfig() Config {
	return Config{
		PerformanceThreshold:     0.8,
		ConfidenceThreshold:      0.6,
		ConvergenceThreshold:     0.001,
		MaxIterations:            5,
		RefinementScoreThreshold: 0.5,
		MaxTriggersPerRound:      3,
		MaxActionsPerTrigger:     2,
		ConfidenceStep:           0.05,
		HistoryCap:               100,
	}
}

// Engine runs feedback cycles. Active cycles are keyed by id with a
// single-writer-per-key contract: only the owning session drives a cycle
// through its state machine. The mutex guards the maps, not the cycles.
type Engine struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	cycles  map[string]*Cycle
	history []*Cycle
}

// NewEngine creates a feedback engine.
func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:    cfg,
		logger: logger,
		cycles: make(map[string]*Cycle),
	}
}

// StartCycle opens a cycle for one plan-execution attempt.
func (e *Engine) StartCycle(sessionID string, u *understanding.Understanding, plan *planning.Plan) *Cycle {
	cycle := &Cycle{
		ID:                uuid.New().String(),
		SessionID:         sessionID,
		Status:            CycleStarted,
		Understanding:     u,
		Plan:              plan,
		InitialConfidence: u.Confidence,
		ConfidenceHistory: []float64{u.Confidence},
		StartedAt:         time.Now(),
	}
	e.mu.Lock()
	e.cycles[cycle.ID] = cycle
	e.mu.Unlock()

	e.logger.Debug("feedback cycle started",
		zap.String("cycle_id", cycle.ID),
		zap.String("session_id", sessionID),
		zap.String("plan_id", plan.ID))
	return cycle
}

// Cycle returns an active cycle by id.
func (e *Engine) Cycle(cycleID string) (*Cycle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cycle, ok := e.cycles[cycleID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCycleNotFound, cycleID)
	}
	return cycle, nil
}

// ProcessCycleResults records the execution and evaluation outputs, detects
// issues, and derives refinement triggers. Moves the cycle to analyzed.
func (e *Engine) ProcessCycleResults(cycleID string, exec monitor.ExecutionState, evals []EvaluationResult) error {
	cycle, err := e.Cycle(cycleID)
	if err != nil {
		return err
	}
	if cycle.Status == CycleCompleted {
		return fmt.Errorf("%w: %s", ErrCycleCompleted, cycleID)
	}

	cycle.Execution = &exec
	cycle.Evaluations = evals
	cycle.SuccessRateHistory = append(cycle.SuccessRateHistory, exec.Performance.SuccessRate)

	cycle.Issues = e.detectIssues(cycle, exec, evals)
	for _, issue := range cycle.Issues {
		if issue.Type == IssueExecution {
			cycle.executionIssueSeen++
		}
	}
	cycle.Triggers = e.deriveTriggers(cycle, exec)
	cycle.Status = CycleAnalyzed

	e.logger.Debug("cycle results processed",
		zap.String("cycle_id", cycleID),
		zap.Int("issues", len(cycle.Issues)),
		zap.Int("triggers", len(cycle.Triggers)),
		zap.Float64("success_rate", exec.Performance.SuccessRate))
	return nil
}

// ShouldTriggerRefinement decides whether another refinement round is
// warranted: never once MaxIterations is reached or the confidence history
// has converged; otherwise yes if any high or critical trigger exists, else
// only if the priority-urgency-weighted score clears the threshold.
func (e *Engine) ShouldTriggerRefinement(cycle *Cycle) bool {
	if cycle.Iteration >= e.cfg.MaxIterations {
		return false
	}
	if e.converged(cycle.ConfidenceHistory) {
		return false
	}

	var score, weight float64
	for _, trigger := range cycle.Triggers {
		if trigger.Severity == SeverityHigh || trigger.Severity == SeverityCritical {
			return true
		}
		score += trigger.Priority * trigger.Urgency
		weight++
	}
	if weight == 0 {
		return false
	}
	return score/weight > e.cfg.RefinementScoreThreshold
}

// converged reports whether the variance of the last three confidences is
// below the convergence threshold.
func (e *Engine) converged(history []float64) bool {
	if len(history) < 3 {
		return false
	}
	last := history[len(history)-3:]

	var mean float64
	for _, v := range last {
		mean += v
	}
	mean /= 3

	var variance float64
	for _, v := range last {
		d := v - mean
		variance += d * d
	}
	variance /= 3

	return variance < e.cfg.ConvergenceThreshold
}

// CompleteCycle computes improvement metrics, archives the cycle, and
// removes it from the active set.
func (e *Engine) CompleteCycle(cycleID string) (*Cycle, error) {
	cycle, err := e.Cycle(cycleID)
	if err != nil {
		return nil, err
	}
	if cycle.Status == CycleStarted {
		return nil, fmt.Errorf("%w: %s", ErrNotAnalyzed, cycleID)
	}

	cycle.Improvement = improvementFrom(cycle)
	now := time.Now()
	cycle.CompletedAt = &now
	cycle.Status = CycleCompleted

	e.mu.Lock()
	delete(e.cycles, cycleID)
	e.history = append(e.history, cycle)
	if e.cfg.HistoryCap > 0 && len(e.history) > e.cfg.HistoryCap {
		e.history = e.history[len(e.history)-e.cfg.HistoryCap:]
	}
	e.mu.Unlock()

	e.logger.Info("feedback cycle completed",
		zap.String("cycle_id", cycleID),
		zap.Int("iterations", cycle.Iteration),
		zap.Float64("confidence_delta", cycle.Improvement.ConfidenceDelta))
	return cycle, nil
}

// History returns the archived cycles, oldest first.
func (e *Engine) History() []*Cycle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Cycle(nil), e.history...)
}

// Patterns groups archived cycles by iteration count and similar
// improvement. Best effort; cycles without improvement metrics are skipped.
func (e *Engine) Patterns() []CyclePattern {
	type key struct {
		iterations int
		bucket     int
	}
	e.mu.Lock()
	history := append([]*Cycle(nil), e.history...)
	e.mu.Unlock()

	groups := make(map[key][]float64)
	for _, c := range history {
		if c.Improvement == nil {
			continue
		}
		k := key{
			iterations: c.Iteration,
			// Improvement bucketed to 0.1-wide bins.
			bucket: int(c.Improvement.ConfidenceDelta * 10),
		}
		groups[k] = append(groups[k], c.Improvement.ConfidenceDelta)
	}

	var patterns []CyclePattern
	for k, deltas := range groups {
		if len(deltas) < 2 {
			continue
		}
		var sum float64
		for _, d := range deltas {
			sum += d
		}
		patterns = append(patterns, CyclePattern{
			IterationCount: k.iterations,
			AvgImprovement: sum / float64(len(deltas)),
			Frequency:      len(deltas),
		})
	}
	return patterns
}

// improvementFrom computes first-to-last deltas and the mean absolute
// step-to-step confidence delta.
func improvementFrom(cycle *Cycle) *ImprovementMetrics {
	m := &ImprovementMetrics{}

	if n := len(cycle.ConfidenceHistory); n > 1 {
		m.ConfidenceDelta = cycle.ConfidenceHistory[n-1] - cycle.ConfidenceHistory[0]
		var steps float64
		for i := 1; i < n; i++ {
			d := cycle.ConfidenceHistory[i] - cycle.ConfidenceHistory[i-1]
			if d < 0 {
				d = -d
			}
			steps += d
		}
		m.ConvergenceRate = steps / float64(n-1)
	}
	if n := len(cycle.SuccessRateHistory); n > 1 {
		m.SuccessRateDelta = cycle.SuccessRateHistory[n-1] - cycle.SuccessRateHistory[0]
	}
	return m
}
