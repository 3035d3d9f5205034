package planning

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/cortexd/internal/agent"
	"github.com/fyrsmithlabs/cortexd/internal/understanding"
)

// Strictness controls how validation issues affect plan acceptance.
type Strictness string

const (
	// StrictnessLow accepts every plan regardless of issues.
	StrictnessLow Strictness = "low"

	// StrictnessNormal rejects plans with critical issues.
	StrictnessNormal Strictness = "normal"

	// StrictnessHigh rejects plans with critical or high-severity issues.
	StrictnessHigh Strictness = "high"
)

// Config holds the planning engine's tunables. Defaults mirror the
// platform's original heuristics; none of these constants are calibrated
// against real workloads.
type Config struct {
	// BaseTaskDuration is the unscaled per-node duration estimate.
	BaseTaskDuration time.Duration `koanf:"base_task_duration"`

	// BaseTaskCost is the unscaled per-node cost estimate.
	BaseTaskCost float64 `koanf:"base_task_cost"`

	// MaxPlanCost is the cost ceiling checked during validation.
	MaxPlanCost float64 `koanf:"max_plan_cost"`

	// MaxPlanDuration is the timeline ceiling checked during validation.
	MaxPlanDuration time.Duration `koanf:"max_plan_duration"`

	// MaxParallelTasks is the resource ceiling on concurrently runnable
	// nodes.
	MaxParallelTasks int `koanf:"max_parallel_tasks"`

	// Strictness controls validation acceptance.
	Strictness Strictness `koanf:"strictness"`

	// SimulationTrials is the number of randomized simulation runs.
	SimulationTrials int `koanf:"simulation_trials"`

	// SimulationBaseSuccess is the per-trial base success probability.
	SimulationBaseSuccess float64 `koanf:"simulation_base_success"`

	// MaxAlternatives caps generated alternative plans.
	MaxAlternatives int `koanf:"max_alternatives"`
}

// DefaultConfig returns the stock planning heuristics.
func DefaultConfig() Config {
	return Config{
		BaseTaskDuration:      30 * time.Minute,
		BaseTaskCost:          10,
		MaxPlanCost:           1000,
		MaxPlanDuration:       24 * time.Hour,
		MaxParallelTasks:      8,
		Strictness:            StrictnessNormal,
		SimulationTrials:      100,
		SimulationBaseSuccess: 0.9,
		MaxAlternatives:       3,
	}
}

// priorityScale maps goal priority to the duration/cost multiplier.
var priorityScale = map[understanding.Priority]float64{
	understanding.PriorityLow:      0.75,
	understanding.PriorityMedium:   1.0,
	understanding.PriorityHigh:     1.5,
	understanding.PriorityCritical: 2.0,
}

// Engine builds and validates execution plans.
type Engine struct {
	registry agent.Registry
	cfg      Config
	rng      *rand.Rand
	logger   *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRand injects the random source used for simulation. Tests pass a
// seeded source for reproducible trials.
func WithRand(rng *rand.Rand) EngineOption {
	return func(e *Engine) {
		e.rng = rng
	}
}

// NewEngine creates a planning engine.
func NewEngine(registry agent.Registry, cfg Config, logger *zap.Logger, opts ...EngineOption) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("agent registry cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		registry: registry,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// CreatePlan builds a plan from an understanding: one node per goal, with
// sequential edges inferred between consecutive goals of differing domain
// or high priority, then validates it.
//
// Under high strictness a plan with high or critical issues fails fast with
// ErrPlanInvalid; the issue list rides on the returned plan's Validation.
func (e *Engine) CreatePlan(ctx context.Context, u *understanding.Understanding) (*Plan, error) {
	if u == nil {
		return nil, ErrNilUnderstanding
	}
	if len(u.Semantic.Goals) == 0 {
		return nil, ErrNoGoals
	}

	plan := &Plan{
		ID:              uuid.New().String(),
		OwnerID:         u.UserID,
		UnderstandingID: u.ID,
		RiskLevel:       riskFromConfidence(u.Confidence),
		CreatedAt:       time.Now(),
	}

	for _, g := range u.Semantic.Goals {
		scale := priorityScale[g.Priority]
		if scale == 0 {
			scale = 1.0
		}
		plan.Nodes = append(plan.Nodes, Node{
			ID:                   uuid.New().String(),
			Kind:                 NodeTask,
			Label:                g.Description,
			GoalID:               g.ID,
			Priority:             g.Priority,
			Domain:               goalDomain(g, u.Semantic.Context.Domain),
			EstimatedDuration:    time.Duration(float64(e.cfg.BaseTaskDuration) * scale),
			EstimatedCost:        e.cfg.BaseTaskCost * scale,
			RequiredCapabilities: capabilitiesFor(g),
			Confidence:           u.Confidence,
		})
	}

	// Sequential edges between consecutive goals that cannot safely run
	// side by side: a domain change or a high-or-above priority forces
	// ordering.
	for i := 1; i < len(plan.Nodes); i++ {
		prev, cur := plan.Nodes[i-1], plan.Nodes[i]
		if prev.Domain != cur.Domain || cur.Priority.Rank() >= understanding.PriorityHigh.Rank() {
			plan.Edges = append(plan.Edges, Edge{From: prev.ID, To: cur.ID, Kind: EdgeSequential})
		}
	}

	e.recomputeTotals(plan)
	plan.Confidence = u.Confidence

	result := e.ValidatePlan(ctx, plan)
	plan.Validation = result
	plan.Confidence = result.Confidence

	if !result.Valid && e.cfg.Strictness == StrictnessHigh {
		return plan, fmt.Errorf("%w: %d critical, %d high issues", ErrPlanInvalid,
			result.CriticalCount(), result.HighCount())
	}

	e.logger.Debug("plan created",
		zap.String("plan_id", plan.ID),
		zap.Int("nodes", len(plan.Nodes)),
		zap.Int("edges", len(plan.Edges)),
		zap.Duration("total_duration", plan.TotalEstimatedDuration),
		zap.Float64("total_cost", plan.TotalEstimatedCost),
		zap.String("risk", string(plan.RiskLevel)))

	return plan, nil
}

// recomputeTotals sets the plan's aggregate duration and cost. Nodes that
// participate in sequential edges contribute their durations as a sum; the
// remaining nodes run side by side and contribute their max.
func (e *Engine) recomputeTotals(plan *Plan) {
	sequential := make(map[string]bool)
	for _, edge := range plan.Edges {
		if edge.Kind == EdgeSequential {
			sequential[edge.From] = true
			sequential[edge.To] = true
		}
	}

	var seqSum, parMax time.Duration
	var cost float64
	for _, n := range plan.Nodes {
		cost += n.EstimatedCost
		if sequential[n.ID] {
			seqSum += n.EstimatedDuration
		} else if n.EstimatedDuration > parMax {
			parMax = n.EstimatedDuration
		}
	}
	plan.TotalEstimatedDuration = seqSum + parMax
	plan.TotalEstimatedCost = cost
}

// riskFromConfidence is the step function mapping understanding confidence
// to an initial risk level.
func riskFromConfidence(confidence float64) RiskLevel {
	switch {
	case confidence < 0.4:
		return RiskCritical
	case confidence < 0.6:
		return RiskHigh
	case confidence < 0.8:
		return RiskMedium
	default:
		return RiskLow
	}
}

// goalDomain infers a goal-level domain from its description, falling back
// to the understanding's context domain.
func goalDomain(g understanding.Goal, fallback string) string {
	lower := strings.ToLower(g.Description)
	for _, probe := range []struct{ domain, keyword string }{
		{"health", "acne"}, {"health", "medical"}, {"health", "skin"},
		{"software", "deploy"}, {"software", "code"}, {"software", "api"},
		{"research", "research"}, {"research", "study"},
		{"finance", "budget"}, {"finance", "invoice"},
	} {
		if strings.Contains(lower, probe.keyword) {
			return probe.domain
		}
	}
	return fallback
}

// capabilitiesFor maps a goal to the worker capabilities its node needs.
func capabilitiesFor(g understanding.Goal) []string {
	lower := strings.ToLower(g.Description)
	var caps []string
	for _, probe := range []struct{ capability, keyword string }{
		{"research", "research"},
		{"research", "study"},
		{"scheduling", "schedule"},
		{"scheduling", "every day"},
		{"summarization", "summar"},
		{"code", "deploy"},
		{"code", "fix"},
	} {
		if strings.Contains(lower, probe.keyword) && !containsString(caps, probe.capability) {
			caps = append(caps, probe.capability)
		}
	}
	if len(caps) == 0 {
		caps = []string{"general"}
	}
	return caps
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
