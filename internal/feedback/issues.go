package feedback

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/cortexd/internal/monitor"
)

// detectIssues inspects the execution and evaluation outputs for problems.
func (e *Engine) detectIssues(cycle *Cycle, exec monitor.ExecutionState, evals []EvaluationResult) []Issue {
	var issues []Issue

	finished := len(exec.CompletedTasks) + len(exec.FailedTasks)
	rate := exec.Performance.SuccessRate
	if finished > 0 && rate < 0.8 {
		severity := SeverityHigh
		if rate < 0.5 {
			severity = SeverityCritical
		}
		issues = append(issues, Issue{
			ID:       uuid.New().String(),
			Type:     IssueExecution,
			Severity: severity,
			RootCause: fmt.Sprintf("execution success rate %.2f with %d of %d tasks failed",
				rate, len(exec.FailedTasks), finished),
			Confidence:           0.9,
			SuggestedRefinements: []RefinementKind{RefineReplan, RefineChangeApproach},
		})
	}

	if exec.Resources.CPU > 0.9 || exec.Resources.Memory > 0.9 {
		issues = append(issues, Issue{
			ID:       uuid.New().String(),
			Type:     IssueResource,
			Severity: SeverityHigh,
			RootCause: fmt.Sprintf("resource saturation: cpu %.2f, memory %.2f",
				exec.Resources.CPU, exec.Resources.Memory),
			Confidence:           0.85,
			SuggestedRefinements: []RefinementKind{RefineOptimizeResources},
		})
	}

	current := cycle.Understanding.Confidence
	if current < 0.9*cycle.InitialConfidence {
		issues = append(issues, Issue{
			ID:       uuid.New().String(),
			Type:     IssueUnderstanding,
			Severity: SeverityMedium,
			RootCause: fmt.Sprintf("understanding confidence fell from %.2f to %.2f",
				cycle.InitialConfidence, current),
			Confidence:           0.7,
			SuggestedRefinements: []RefinementKind{RefineAdjustUnderstanding, RefineAddConstraints},
		})
	}

	if len(evals) > 0 {
		low := 0
		for _, ev := range evals {
			if ev.Score < 0.7 {
				low++
			}
		}
		if share := float64(low) / float64(len(evals)); share > 0.3 {
			issues = append(issues, Issue{
				ID:       uuid.New().String(),
				Type:     IssuePlanning,
				Severity: SeverityMedium,
				RootCause: fmt.Sprintf("%.0f%% of task evaluation scores are below 0.7",
					share*100),
				Confidence:           0.75,
				SuggestedRefinements: []RefinementKind{RefineModifyGoals, RefineReplan},
			})
		}
	}

	return issues
}

// deriveTriggers converts the measured state into refinement triggers.
func (e *Engine) deriveTriggers(cycle *Cycle, exec monitor.ExecutionState) []RefinementTrigger {
	var triggers []RefinementTrigger

	finished := len(exec.CompletedTasks) + len(exec.FailedTasks)
	rate := exec.Performance.SuccessRate
	if finished > 0 && rate < e.cfg.PerformanceThreshold {
		severity := SeverityHigh
		if rate < 0.5 {
			severity = SeverityCritical
		}
		triggers = append(triggers, RefinementTrigger{
			Kind:      TriggerPerformanceDegradation,
			Severity:  severity,
			Actual:    rate,
			Threshold: e.cfg.PerformanceThreshold,
			Priority:  0.9,
			Urgency:   clamp01((e.cfg.PerformanceThreshold - rate) / e.cfg.PerformanceThreshold),
			Actions:   actionsFor(TriggerPerformanceDegradation),
		})
	}

	if conf := cycle.Understanding.Confidence; conf < e.cfg.ConfidenceThreshold {
		triggers = append(triggers, RefinementTrigger{
			Kind:      TriggerConfidenceDrop,
			Severity:  SeverityMedium,
			Actual:    conf,
			Threshold: e.cfg.ConfidenceThreshold,
			Priority:  0.7,
			Urgency:   clamp01((e.cfg.ConfidenceThreshold - conf) / e.cfg.ConfidenceThreshold),
			Actions:   actionsFor(TriggerConfidenceDrop),
		})
	}

	if cycle.Iteration > 2 && cycle.executionIssueSeen >= 2 {
		triggers = append(triggers, RefinementTrigger{
			Kind:      TriggerRepeatedFailure,
			Severity:  SeverityHigh,
			Actual:    float64(cycle.executionIssueSeen),
			Threshold: 2,
			Priority:  0.85,
			Urgency:   0.8,
			Actions:   actionsFor(TriggerRepeatedFailure),
		})
	}

	if exec.Resources.CPU > 0.9 || exec.Resources.Memory > 0.9 {
		over := exec.Resources.CPU
		if exec.Resources.Memory > over {
			over = exec.Resources.Memory
		}
		triggers = append(triggers, RefinementTrigger{
			Kind:      TriggerResourceExhaustion,
			Severity:  SeverityHigh,
			Actual:    over,
			Threshold: 0.9,
			Priority:  0.8,
			Urgency:   clamp01((over - 0.9) / 0.1),
			Actions:   actionsFor(TriggerResourceExhaustion),
		})
	}

	return triggers
}

// actionsFor returns the ranked action proposals for a trigger kind.
func actionsFor(kind TriggerKind) []RefinementAction {
	switch kind {
	case TriggerPerformanceDegradation:
		return []RefinementAction{
			{Kind: RefineReplan, Description: "rebuild the plan from the current understanding", ExpectedImpact: 0.15},
			{Kind: RefineChangeApproach, Description: "switch the plan to a parallel shape", ExpectedImpact: 0.1},
			{Kind: RefineModifyGoals, Description: "drop low-priority goals", ExpectedImpact: 0.08},
		}
	case TriggerConfidenceDrop:
		return []RefinementAction{
			{Kind: RefineAdjustUnderstanding, Description: "re-weigh the understanding with clarified ambiguities", ExpectedImpact: 0.12},
			{Kind: RefineAddConstraints, Description: "pin down open interpretation choices as constraints", ExpectedImpact: 0.08},
		}
	case TriggerRepeatedFailure:
		return []RefinementAction{
			{Kind: RefineChangeApproach, Description: "abandon the failing approach for an alternative plan shape", ExpectedImpact: 0.15},
			{Kind: RefineModifyGoals, Description: "narrow the goal set to what has succeeded", ExpectedImpact: 0.1},
		}
	case TriggerResourceExhaustion:
		return []RefinementAction{
			{Kind: RefineOptimizeResources, Description: "serialize the plan to cut peak resource usage", ExpectedImpact: 0.1},
		}
	default:
		return nil
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
