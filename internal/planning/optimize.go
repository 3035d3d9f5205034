package planning

import (
	"context"
	"sort"
	"time"
)

// Objective names an optimization dimension.
type Objective string

const (
	ObjectiveTime               Objective = "time"
	ObjectiveCost               Objective = "cost"
	ObjectiveQuality            Objective = "quality"
	ObjectiveRisk               Objective = "risk"
	ObjectiveResourceEfficiency Objective = "resource_efficiency"
)

// ObjectiveDelta reports how one dimension moved during optimization.
type ObjectiveDelta struct {
	// Objective is the dimension.
	Objective Objective `json:"objective"`

	// Before and After are the dimension's normalized scores in [0,1],
	// higher is better.
	Before float64 `json:"before"`
	After  float64 `json:"after"`
}

// OptimizationResult pairs the reshaped plan with the per-objective movement
// and the trade-offs accepted to achieve it.
type OptimizationResult struct {
	// Plan is the optimized plan (fresh id).
	Plan *Plan `json:"plan"`

	// Deltas report movement per requested objective.
	Deltas []ObjectiveDelta `json:"deltas"`

	// Tradeoffs name what was sacrificed for the dominant objective.
	Tradeoffs []string `json:"tradeoffs,omitempty"`
}

// OptimizePlan reshapes the plan toward the weighted objectives. The
// dominant objective picks the shape: time favors the parallel variant,
// cost and risk favor the sequential chain, quality and resource efficiency
// keep the inferred hybrid ordering. Weights need not sum to one; missing
// objectives get zero weight.
func (e *Engine) OptimizePlan(ctx context.Context, base *Plan, weights map[Objective]float64) *OptimizationResult {
	dominant := dominantObjective(weights)

	var optimized *Plan
	var tradeoffs []string
	switch dominant {
	case ObjectiveTime:
		optimized = e.makeParallel(base)
		tradeoffs = []string{"higher coordination overhead", "resource usage spikes"}
	case ObjectiveCost, ObjectiveRisk:
		optimized = e.makeSequential(base)
		tradeoffs = []string{"longer wall-clock time"}
	default:
		optimized = base.Clone()
	}

	optimized.Validation = e.ValidatePlan(ctx, optimized)
	optimized.Confidence = optimized.Validation.Confidence

	result := &OptimizationResult{Plan: optimized, Tradeoffs: tradeoffs}
	for _, obj := range sortedObjectives(weights) {
		result.Deltas = append(result.Deltas, ObjectiveDelta{
			Objective: obj,
			Before:    e.objectiveScore(base, obj),
			After:     e.objectiveScore(optimized, obj),
		})
	}
	return result
}

// dominantObjective returns the highest-weighted objective, ties broken by
// name for determinism.
func dominantObjective(weights map[Objective]float64) Objective {
	dominant := ObjectiveQuality
	best := 0.0
	for _, obj := range sortedObjectives(weights) {
		if w := weights[obj]; w > best {
			best = w
			dominant = obj
		}
	}
	return dominant
}

func sortedObjectives(weights map[Objective]float64) []Objective {
	objs := make([]Objective, 0, len(weights))
	for obj := range weights {
		objs = append(objs, obj)
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i] < objs[j] })
	return objs
}

// objectiveScore grades a plan on one dimension, normalized to [0,1] with
// higher meaning better.
func (e *Engine) objectiveScore(plan *Plan, obj Objective) float64 {
	switch obj {
	case ObjectiveTime:
		if e.cfg.MaxPlanDuration <= 0 {
			return 1
		}
		return clampUnit(1 - float64(plan.TotalEstimatedDuration)/float64(e.cfg.MaxPlanDuration))
	case ObjectiveCost:
		if e.cfg.MaxPlanCost <= 0 {
			return 1
		}
		return clampUnit(1 - plan.TotalEstimatedCost/e.cfg.MaxPlanCost)
	case ObjectiveQuality:
		return clampUnit(plan.Confidence)
	case ObjectiveRisk:
		switch plan.RiskLevel {
		case RiskLow:
			return 1
		case RiskMedium:
			return 0.66
		case RiskHigh:
			return 0.33
		default:
			return 0
		}
	case ObjectiveResourceEfficiency:
		if len(plan.Nodes) == 0 {
			return 1
		}
		// Efficiency rewards plans that keep workers busy: the ratio of
		// the longest node to the total estimate, so a sequential chain of
		// equal nodes scores 1/n and a flat fan-out scores 1.
		var max time.Duration
		for _, n := range plan.Nodes {
			if n.EstimatedDuration > max {
				max = n.EstimatedDuration
			}
		}
		if plan.TotalEstimatedDuration <= 0 {
			return 1
		}
		return clampUnit(float64(max) / float64(plan.TotalEstimatedDuration))
	default:
		return 0
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
