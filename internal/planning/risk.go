package planning

import (
	"context"
	"fmt"
	"time"
)

// RiskCategory classifies an assessed risk factor.
type RiskCategory string

const (
	RiskTechnical   RiskCategory = "technical"
	RiskResource    RiskCategory = "resource"
	RiskExternal    RiskCategory = "external"
	RiskOperational RiskCategory = "operational"
	RiskTimeline    RiskCategory = "timeline"
)

// AssessedRisk is one enumerated risk factor with its exposure.
type AssessedRisk struct {
	// Category classifies the risk.
	Category RiskCategory `json:"category"`

	// Description names the risk.
	Description string `json:"description"`

	// Probability is the likelihood estimate in [0,1].
	Probability float64 `json:"probability"`

	// Impact is the damage estimate in [0,1].
	Impact float64 `json:"impact"`
}

// Exposure returns probability × impact.
func (r AssessedRisk) Exposure() float64 {
	return r.Probability * r.Impact
}

// Mitigation is the proposed counter-measure for one risk factor.
type Mitigation struct {
	// RiskCategory links back to the factor.
	RiskCategory RiskCategory `json:"risk_category"`

	// Action describes the counter-measure.
	Action string `json:"action"`
}

// ContingencyPlan is a fallback keyed by its trigger conditions.
type ContingencyPlan struct {
	// TriggerConditions describe when the contingency activates.
	TriggerConditions []string `json:"trigger_conditions"`

	// Actions are the fallback steps.
	Actions []string `json:"actions"`
}

// MonitoringPoint watches one node against inflated thresholds.
type MonitoringPoint struct {
	// NodeID is the watched node.
	NodeID string `json:"node_id"`

	// DurationThreshold alerts when exceeded (1.5× the estimate).
	DurationThreshold time.Duration `json:"duration_threshold"`

	// CostThreshold alerts when exceeded (1.2× the estimate).
	CostThreshold float64 `json:"cost_threshold"`
}

// RiskAssessment is the full risk picture for one plan.
type RiskAssessment struct {
	// PlanID is the assessed plan.
	PlanID string `json:"plan_id"`

	// Overall is the aggregate risk grade.
	Overall RiskLevel `json:"overall"`

	// Factors enumerates the assessed risks.
	Factors []AssessedRisk `json:"factors"`

	// Mitigations proposes one counter-measure per factor.
	Mitigations []Mitigation `json:"mitigations"`

	// Contingencies are fallback plans keyed by trigger conditions.
	Contingencies []ContingencyPlan `json:"contingencies"`

	// MonitoringPoints cover every plan node.
	MonitoringPoints []MonitoringPoint `json:"monitoring_points"`
}

// AssessRisk enumerates risk factors across the five categories, proposes
// one mitigation per factor, one contingency per factor's trigger, and one
// monitoring point per node. Overall risk is critical when any factor has
// critical exposure, high when more than two factors have high impact, and
// medium or low otherwise.
func (e *Engine) AssessRisk(ctx context.Context, plan *Plan) *RiskAssessment {
	assessment := &RiskAssessment{PlanID: plan.ID}

	// Technical: low plan confidence.
	if plan.Confidence < 0.7 {
		assessment.Factors = append(assessment.Factors, AssessedRisk{
			Category:    RiskTechnical,
			Description: fmt.Sprintf("plan confidence %.2f leaves estimates unreliable", plan.Confidence),
			Probability: 1 - plan.Confidence,
			Impact:      0.7,
		})
	}

	// Resource: cost close to the ceiling.
	if e.cfg.MaxPlanCost > 0 && plan.TotalEstimatedCost > 0.8*e.cfg.MaxPlanCost {
		assessment.Factors = append(assessment.Factors, AssessedRisk{
			Category: RiskResource,
			Description: fmt.Sprintf("estimated cost %.1f is within 20%% of ceiling %.1f",
				plan.TotalEstimatedCost, e.cfg.MaxPlanCost),
			Probability: 0.6,
			Impact:      0.8,
		})
	}

	// External: any capability that no registered agent currently provides.
	for _, n := range plan.Nodes {
		missing := false
		for _, capability := range n.RequiredCapabilities {
			if !e.registry.HasCapability(capability) {
				missing = true
				break
			}
		}
		if missing {
			assessment.Factors = append(assessment.Factors, AssessedRisk{
				Category:    RiskExternal,
				Description: fmt.Sprintf("node %q depends on unavailable external capability", n.Label),
				Probability: 0.8,
				Impact:      0.9,
			})
			break
		}
	}

	// Operational: wide plans strain coordination.
	if len(plan.Nodes) > 10 {
		assessment.Factors = append(assessment.Factors, AssessedRisk{
			Category:    RiskOperational,
			Description: fmt.Sprintf("%d nodes strain coordination and tracking", len(plan.Nodes)),
			Probability: 0.5,
			Impact:      0.6,
		})
	}

	// Timeline: duration close to the ceiling.
	if e.cfg.MaxPlanDuration > 0 && plan.TotalEstimatedDuration > time.Duration(0.8*float64(e.cfg.MaxPlanDuration)) {
		assessment.Factors = append(assessment.Factors, AssessedRisk{
			Category: RiskTimeline,
			Description: fmt.Sprintf("estimated duration %s is within 20%% of ceiling %s",
				plan.TotalEstimatedDuration, e.cfg.MaxPlanDuration),
			Probability: 0.6,
			Impact:      0.7,
		})
	}

	for _, f := range assessment.Factors {
		assessment.Mitigations = append(assessment.Mitigations, Mitigation{
			RiskCategory: f.Category,
			Action:       mitigationFor(f.Category),
		})
		assessment.Contingencies = append(assessment.Contingencies, ContingencyPlan{
			TriggerConditions: []string{f.Description},
			Actions:           contingencyFor(f.Category),
		})
	}

	for _, n := range plan.Nodes {
		assessment.MonitoringPoints = append(assessment.MonitoringPoints, MonitoringPoint{
			NodeID:            n.ID,
			DurationThreshold: time.Duration(1.5 * float64(n.EstimatedDuration)),
			CostThreshold:     1.2 * n.EstimatedCost,
		})
	}

	assessment.Overall = overallRisk(assessment.Factors)
	return assessment
}

// overallRisk grades the factor set.
func overallRisk(factors []AssessedRisk) RiskLevel {
	highImpact := 0
	for _, f := range factors {
		if f.Exposure() > 0.64 {
			return RiskCritical
		}
		if f.Impact >= 0.7 {
			highImpact++
		}
	}
	switch {
	case highImpact > 2:
		return RiskHigh
	case len(factors) > 0:
		return RiskMedium
	default:
		return RiskLow
	}
}

func mitigationFor(c RiskCategory) string {
	switch c {
	case RiskTechnical:
		return "request clarification to raise understanding confidence before dispatch"
	case RiskResource:
		return "trim low-priority nodes or negotiate a higher cost ceiling"
	case RiskExternal:
		return "register a fallback agent or defer the dependent node"
	case RiskOperational:
		return "split the plan into smaller sequential batches"
	case RiskTimeline:
		return "parallelize independent nodes to recover schedule margin"
	default:
		return "review the plan with the requesting user"
	}
}

func contingencyFor(c RiskCategory) []string {
	switch c {
	case RiskExternal:
		return []string{"pause dependent nodes", "re-resolve agents from the registry", "resume or replan"}
	case RiskResource:
		return []string{"halt dispatch at 95% of the cost ceiling", "surface a partial result"}
	default:
		return []string{"pause execution", "trigger a feedback refinement cycle"}
	}
}
