package feedback

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/cortexd/internal/planning"
	"github.com/fyrsmithlabs/cortexd/internal/understanding"
)

// ApplyRefinements runs one bounded refinement round: triggers sorted by
// priority plus urgency, the top three taken, up to two actions each. Every
// action is a pure transform producing a new Understanding and/or Plan; a
// failed action is recorded and skipped without aborting the round.
func (e *Engine) ApplyRefinements(cycleID string) ([]AppliedRefinement, error) {
	cycle, err := e.Cycle(cycleID)
	if err != nil {
		return nil, err
	}
	if cycle.Status == CycleCompleted {
		return nil, fmt.Errorf("%w: %s", ErrCycleCompleted, cycleID)
	}
	if cycle.Status == CycleStarted {
		return nil, fmt.Errorf("%w: %s", ErrNotAnalyzed, cycleID)
	}

	triggers := append([]RefinementTrigger(nil), cycle.Triggers...)
	sort.SliceStable(triggers, func(i, j int) bool {
		return triggers[i].Priority+triggers[i].Urgency > triggers[j].Priority+triggers[j].Urgency
	})
	if max := e.cfg.MaxTriggersPerRound; max > 0 && len(triggers) > max {
		triggers = triggers[:max]
	}

	var applied []AppliedRefinement
	seen := make(map[RefinementKind]bool)
	for _, trigger := range triggers {
		actions := trigger.Actions
		if max := e.cfg.MaxActionsPerTrigger; max > 0 && len(actions) > max {
			actions = actions[:max]
		}
		for _, action := range actions {
			if seen[action.Kind] {
				continue
			}
			seen[action.Kind] = true
			applied = append(applied, e.applyAction(cycle, action))
		}
	}

	cycle.Iteration++
	cycle.Status = CycleRefined
	cycle.ConfidenceHistory = append(cycle.ConfidenceHistory, cycle.Understanding.Confidence)
	cycle.Applied = append(cycle.Applied, applied...)

	e.logger.Debug("refinements applied",
		zap.String("cycle_id", cycleID),
		zap.Int("iteration", cycle.Iteration),
		zap.Int("actions", len(applied)),
		zap.Float64("confidence", cycle.Understanding.Confidence))
	return applied, nil
}

// applyAction executes one transform against the cycle's working values.
func (e *Engine) applyAction(cycle *Cycle, action RefinementAction) AppliedRefinement {
	record := AppliedRefinement{
		Kind:         action.Kind,
		PlanIDBefore: cycle.Plan.ID,
		AppliedAt:    time.Now(),
	}

	before := cycle.Understanding.Confidence
	var err error
	switch action.Kind {
	case RefineReplan:
		cycle.Plan = cycle.Plan.Clone()
	case RefineAdjustUnderstanding:
		u := cycle.Understanding.Clone()
		u.Confidence = clamp01(u.Confidence + e.cfg.ConfidenceStep)
		cycle.Understanding = u
	case RefineOptimizeResources:
		cycle.Plan = serializePlan(cycle.Plan)
	case RefineModifyGoals:
		var u *understanding.Understanding
		var plan *planning.Plan
		u, plan, err = dropLowestPriorityGoal(cycle.Understanding, cycle.Plan)
		if err == nil {
			cycle.Understanding = u
			cycle.Plan = plan
		}
	case RefineChangeApproach:
		cycle.Plan = parallelizePlan(cycle.Plan)
	case RefineAddConstraints:
		u := cycle.Understanding.Clone()
		u.Semantic.Constraints = append(u.Semantic.Constraints, understanding.Constraint{
			ID:          uuid.New().String(),
			Kind:        understanding.ConstraintQuality,
			Description: "hold interpretation choices fixed for the remainder of the cycle",
		})
		u.Confidence = clamp01(u.Confidence + e.cfg.ConfidenceStep/2)
		cycle.Understanding = u
	default:
		err = fmt.Errorf("unknown refinement kind %q", action.Kind)
	}

	if err != nil {
		record.Error = err.Error()
		e.logger.Warn("refinement action failed",
			zap.String("cycle_id", cycle.ID),
			zap.String("kind", string(action.Kind)),
			zap.Error(err))
		return record
	}

	record.Succeeded = true
	record.PlanIDAfter = cycle.Plan.ID
	record.ConfidenceDelta = cycle.Understanding.Confidence - before
	return record
}

// serializePlan chains every node sequentially to cut peak resource usage.
func serializePlan(plan *planning.Plan) *planning.Plan {
	out := plan.Clone()
	out.Edges = out.Edges[:0]
	var total time.Duration
	for i := range out.Nodes {
		total += out.Nodes[i].EstimatedDuration
		if i > 0 {
			out.Edges = append(out.Edges, planning.Edge{
				From: out.Nodes[i-1].ID,
				To:   out.Nodes[i].ID,
				Kind: planning.EdgeSequential,
			})
		}
	}
	out.TotalEstimatedDuration = total
	return out
}

// parallelizePlan strips sequential edges so independent work can fan out.
func parallelizePlan(plan *planning.Plan) *planning.Plan {
	out := plan.Clone()
	kept := out.Edges[:0]
	for _, edge := range out.Edges {
		if edge.Kind != planning.EdgeSequential {
			kept = append(kept, edge)
		}
	}
	out.Edges = kept

	var max time.Duration
	for _, n := range out.Nodes {
		if n.EstimatedDuration > max {
			max = n.EstimatedDuration
		}
	}
	out.TotalEstimatedDuration = max
	return out
}

// dropLowestPriorityGoal removes the lowest-priority goal and its plan node.
// Fails when only one goal remains; a plan needs at least one goal.
func dropLowestPriorityGoal(u *understanding.Understanding, plan *planning.Plan) (*understanding.Understanding, *planning.Plan, error) {
	if len(u.Semantic.Goals) <= 1 {
		return nil, nil, fmt.Errorf("cannot drop goals: only %d goal remains", len(u.Semantic.Goals))
	}

	lowest := 0
	for i, g := range u.Semantic.Goals {
		if g.Priority.Rank() < u.Semantic.Goals[lowest].Priority.Rank() {
			lowest = i
		}
	}
	droppedGoal := u.Semantic.Goals[lowest].ID

	outU := u.Clone()
	outU.Semantic.Goals = append(outU.Semantic.Goals[:lowest], outU.Semantic.Goals[lowest+1:]...)

	outP := plan.Clone()
	kept := outP.Nodes[:0]
	removed := make(map[string]bool)
	for _, n := range outP.Nodes {
		if n.GoalID == droppedGoal {
			removed[n.ID] = true
			continue
		}
		kept = append(kept, n)
	}
	outP.Nodes = kept

	edges := outP.Edges[:0]
	for _, edge := range outP.Edges {
		if removed[edge.From] || removed[edge.To] {
			continue
		}
		edges = append(edges, edge)
	}
	outP.Edges = edges

	return outU, outP, nil
}
