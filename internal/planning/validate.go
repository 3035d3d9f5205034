package planning

import (
	"context"
	"fmt"
)

// ValidatePlan runs the five independent checks (resource, dependency,
// capability, timeline, cost) and merges their issues.
//
// Post-validation confidence is 1 − 0.3×critical − 0.2×high, floored at 0;
// the estimated success rate is 0.9×confidence. Validity follows the
// configured strictness: low accepts everything except dependency cycles,
// normal rejects critical issues, high also rejects high-severity issues.
// A directed cycle is a critical dependency issue and invalidates the plan
// under every strictness, since a cyclic graph can never be dispatched.
func (e *Engine) ValidatePlan(ctx context.Context, plan *Plan) *ValidationResult {
	result := &ValidationResult{}

	result.Issues = append(result.Issues, e.checkResources(plan)...)
	result.Issues = append(result.Issues, e.checkDependencies(plan)...)
	result.Issues = append(result.Issues, e.checkCapabilities(plan)...)
	result.Issues = append(result.Issues, e.checkTimeline(plan)...)
	result.Issues = append(result.Issues, e.checkCost(plan)...)

	confidence := 1.0 - 0.3*float64(result.CriticalCount()) - 0.2*float64(result.HighCount())
	if confidence < 0 {
		confidence = 0
	}
	result.Confidence = confidence
	result.EstimatedSuccessRate = 0.9 * confidence

	switch e.cfg.Strictness {
	case StrictnessLow:
		result.Valid = true
	case StrictnessHigh:
		result.Valid = result.CriticalCount() == 0 && result.HighCount() == 0
	default:
		result.Valid = result.CriticalCount() == 0
	}
	for _, issue := range result.Issues {
		if issue.Type == IssueDependency && issue.Severity == SeverityCritical {
			result.Valid = false
			break
		}
	}

	result.Recommendations = recommendationsFor(result.Issues)
	return result
}

// checkResources flags plans whose width exceeds the parallel-task ceiling.
func (e *Engine) checkResources(plan *Plan) []ValidationIssue {
	if e.cfg.MaxParallelTasks <= 0 {
		return nil
	}

	// Width = nodes with no sequential ordering, i.e. potentially
	// concurrent work.
	sequential := make(map[string]bool)
	for _, edge := range plan.Edges {
		if edge.Kind == EdgeSequential {
			sequential[edge.From] = true
			sequential[edge.To] = true
		}
	}
	width := 0
	for _, n := range plan.Nodes {
		if !sequential[n.ID] {
			width++
		}
	}

	if width > e.cfg.MaxParallelTasks {
		return []ValidationIssue{{
			Type:     IssueResource,
			Severity: SeverityHigh,
			Description: fmt.Sprintf("plan width %d exceeds parallel-task ceiling %d",
				width, e.cfg.MaxParallelTasks),
		}}
	}
	return nil
}

// checkDependencies verifies edge integrity and detects directed cycles
// via depth-first search with a recursion stack.
func (e *Engine) checkDependencies(plan *Plan) []ValidationIssue {
	var issues []ValidationIssue

	nodeSet := make(map[string]bool, len(plan.Nodes))
	for _, n := range plan.Nodes {
		nodeSet[n.ID] = true
	}

	adjacency := make(map[string][]string)
	for _, edge := range plan.Edges {
		if !nodeSet[edge.From] || !nodeSet[edge.To] {
			issues = append(issues, ValidationIssue{
				Type:     IssueDependency,
				Severity: SeverityCritical,
				Description: fmt.Sprintf("edge %s -> %s references unknown node",
					edge.From, edge.To),
			})
			continue
		}
		adjacency[edge.From] = append(adjacency[edge.From], edge.To)
	}

	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var visit func(id string) bool
	visit = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		for _, next := range adjacency[id] {
			if onStack[next] {
				return true
			}
			if !visited[next] && visit(next) {
				return true
			}
		}
		onStack[id] = false
		return false
	}

	for _, n := range plan.Nodes {
		if !visited[n.ID] && visit(n.ID) {
			issues = append(issues, ValidationIssue{
				Type:        IssueDependency,
				Severity:    SeverityCritical,
				Description: fmt.Sprintf("dependency cycle detected through node %s", n.ID),
				NodeID:      n.ID,
			})
			break
		}
	}
	return issues
}

// checkCapabilities verifies every required capability is available in the
// agent registry.
func (e *Engine) checkCapabilities(plan *Plan) []ValidationIssue {
	var issues []ValidationIssue
	for _, n := range plan.Nodes {
		for _, capability := range n.RequiredCapabilities {
			if !e.registry.HasCapability(capability) {
				issues = append(issues, ValidationIssue{
					Type:     IssueCapability,
					Severity: SeverityHigh,
					Description: fmt.Sprintf("no registered agent provides capability %q for node %q",
						capability, n.Label),
					NodeID: n.ID,
				})
			}
		}
	}
	return issues
}

// checkTimeline flags plans whose total duration exceeds the ceiling.
func (e *Engine) checkTimeline(plan *Plan) []ValidationIssue {
	if e.cfg.MaxPlanDuration <= 0 || plan.TotalEstimatedDuration <= e.cfg.MaxPlanDuration {
		return nil
	}
	severity := SeverityMedium
	if plan.TotalEstimatedDuration > 2*e.cfg.MaxPlanDuration {
		severity = SeverityHigh
	}
	return []ValidationIssue{{
		Type:     IssueTimeline,
		Severity: severity,
		Description: fmt.Sprintf("estimated duration %s exceeds ceiling %s",
			plan.TotalEstimatedDuration, e.cfg.MaxPlanDuration),
	}}
}

// checkCost flags plans whose total cost exceeds the ceiling.
func (e *Engine) checkCost(plan *Plan) []ValidationIssue {
	if e.cfg.MaxPlanCost <= 0 || plan.TotalEstimatedCost <= e.cfg.MaxPlanCost {
		return nil
	}
	severity := SeverityHigh
	if plan.TotalEstimatedCost > 2*e.cfg.MaxPlanCost {
		severity = SeverityCritical
	}
	return []ValidationIssue{{
		Type:     IssueCost,
		Severity: severity,
		Description: fmt.Sprintf("estimated cost %.1f exceeds ceiling %.1f",
			plan.TotalEstimatedCost, e.cfg.MaxPlanCost),
	}}
}

// recommendationsFor suggests one fix per issue type present.
func recommendationsFor(issues []ValidationIssue) []string {
	byType := make(map[IssueType]bool)
	var recs []string
	for _, issue := range issues {
		if byType[issue.Type] {
			continue
		}
		byType[issue.Type] = true
		switch issue.Type {
		case IssueResource:
			recs = append(recs, "reduce plan width or raise the parallel-task ceiling")
		case IssueDependency:
			recs = append(recs, "break the dependency cycle or repair dangling edges")
		case IssueCapability:
			recs = append(recs, "register an agent providing the missing capabilities")
		case IssueTimeline:
			recs = append(recs, "split long-running nodes or extend the timeline ceiling")
		case IssueCost:
			recs = append(recs, "trim low-priority nodes or raise the cost ceiling")
		}
	}
	return recs
}
