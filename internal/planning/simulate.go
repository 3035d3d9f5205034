package planning

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// SimulationResult aggregates the outcome of randomized plan trials.
type SimulationResult struct {
	// Trials is the number of runs executed.
	Trials int `json:"trials"`

	// MeanDuration is the average simulated total duration.
	MeanDuration time.Duration `json:"mean_duration"`

	// MeanCost is the average simulated total cost.
	MeanCost float64 `json:"mean_cost"`

	// SuccessRate is the fraction of trials that completed successfully.
	SuccessRate float64 `json:"success_rate"`

	// Bottlenecks lists node ids most often dominating trial duration,
	// worst first.
	Bottlenecks []string `json:"bottlenecks,omitempty"`

	// RiskEvents describes notable failures observed across trials.
	RiskEvents []string `json:"risk_events,omitempty"`
}

// SimulatePlan runs the configured number of randomized trials. Each trial
// perturbs node durations by ±20% and costs by ±10%, and draws per-node
// success against the base success probability. The perturbation bounds are
// uncalibrated heuristics inherited from the original platform.
func (e *Engine) SimulatePlan(ctx context.Context, plan *Plan) (*SimulationResult, error) {
	if len(plan.Nodes) == 0 {
		return nil, fmt.Errorf("plan %s has no nodes to simulate", plan.ID)
	}

	trials := e.cfg.SimulationTrials
	if trials <= 0 {
		trials = 100
	}

	var totalDuration time.Duration
	var totalCost float64
	successes := 0
	dominantCounts := make(map[string]int)
	failureCounts := make(map[string]int)

	for trial := 0; trial < trials; trial++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		var trialDuration time.Duration
		var trialCost float64
		var dominant string
		var dominantDur time.Duration
		failed := false

		for _, n := range plan.Nodes {
			durFactor := 0.8 + e.rng.Float64()*0.4  // ±20%
			costFactor := 0.9 + e.rng.Float64()*0.2 // ±10%
			dur := time.Duration(float64(n.EstimatedDuration) * durFactor)
			trialDuration += dur
			trialCost += n.EstimatedCost * costFactor

			if dur > dominantDur {
				dominantDur = dur
				dominant = n.ID
			}
			if e.rng.Float64() > e.cfg.SimulationBaseSuccess {
				failed = true
				failureCounts[n.ID]++
			}
		}

		totalDuration += trialDuration
		totalCost += trialCost
		if dominant != "" {
			dominantCounts[dominant]++
		}
		if !failed {
			successes++
		}
	}

	result := &SimulationResult{
		Trials:       trials,
		MeanDuration: totalDuration / time.Duration(trials),
		MeanCost:     totalCost / float64(trials),
		SuccessRate:  float64(successes) / float64(trials),
	}

	// Bottlenecks: nodes dominating at least a quarter of trials.
	type nodeCount struct {
		id    string
		count int
	}
	var dominants []nodeCount
	for id, count := range dominantCounts {
		if count*4 >= trials {
			dominants = append(dominants, nodeCount{id, count})
		}
	}
	sort.Slice(dominants, func(i, j int) bool { return dominants[i].count > dominants[j].count })
	for _, d := range dominants {
		result.Bottlenecks = append(result.Bottlenecks, d.id)
	}

	for id, count := range failureCounts {
		if node, ok := plan.Node(id); ok && count > trials/10 {
			result.RiskEvents = append(result.RiskEvents,
				fmt.Sprintf("node %q failed in %d of %d trials", node.Label, count, trials))
		}
	}
	sort.Strings(result.RiskEvents)

	return result, nil
}
