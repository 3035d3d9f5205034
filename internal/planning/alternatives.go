package planning

import (
	"context"
	"time"
)

// Variant names an alternative plan shape.
type Variant string

const (
	VariantSequential Variant = "sequential"
	VariantParallel   Variant = "parallel"
	VariantHybrid     Variant = "hybrid"
)

// TradeoffProfile is the textual comparison attached to an alternative.
type TradeoffProfile struct {
	Advantages    []string `json:"advantages"`
	Disadvantages []string `json:"disadvantages"`
	OptimalFor    []string `json:"optimal_for"`
}

// Alternative pairs a reshaped plan with its trade-off profile.
type Alternative struct {
	// Variant names the shape.
	Variant Variant `json:"variant"`

	// Plan is the reshaped plan (fresh id, revalidation required).
	Plan *Plan `json:"plan"`

	// Tradeoffs compares this shape against the base plan.
	Tradeoffs TradeoffProfile `json:"tradeoffs"`
}

// GenerateAlternatives produces up to MaxAlternatives reshaped variants of
// the base plan: a fully sequential chain, a fully parallel fan-out, and a
// hybrid that keeps the inferred ordering.
func (e *Engine) GenerateAlternatives(ctx context.Context, base *Plan) []Alternative {
	variants := []Variant{VariantSequential, VariantParallel, VariantHybrid}
	max := e.cfg.MaxAlternatives
	if max <= 0 {
		max = len(variants)
	}
	if len(variants) > max {
		variants = variants[:max]
	}

	alternatives := make([]Alternative, 0, len(variants))
	for _, v := range variants {
		alt := Alternative{Variant: v, Tradeoffs: tradeoffsFor(v)}
		switch v {
		case VariantSequential:
			alt.Plan = e.makeSequential(base)
		case VariantParallel:
			alt.Plan = e.makeParallel(base)
		default:
			alt.Plan = base.Clone()
		}
		alternatives = append(alternatives, alt)
	}
	return alternatives
}

// makeSequential chains every node in order; total duration is the sum of
// node durations.
func (e *Engine) makeSequential(base *Plan) *Plan {
	plan := base.Clone()
	plan.Edges = plan.Edges[:0]
	var total time.Duration
	for i := range plan.Nodes {
		total += plan.Nodes[i].EstimatedDuration
		if i > 0 {
			plan.Edges = append(plan.Edges, Edge{
				From: plan.Nodes[i-1].ID,
				To:   plan.Nodes[i].ID,
				Kind: EdgeSequential,
			})
		}
	}
	plan.TotalEstimatedDuration = total
	return plan
}

// makeParallel strips sequential edges; total duration is the max node
// duration.
func (e *Engine) makeParallel(base *Plan) *Plan {
	plan := base.Clone()
	kept := plan.Edges[:0]
	for _, edge := range plan.Edges {
		if edge.Kind != EdgeSequential {
			kept = append(kept, edge)
		}
	}
	plan.Edges = kept

	var max time.Duration
	for _, n := range plan.Nodes {
		if n.EstimatedDuration > max {
			max = n.EstimatedDuration
		}
	}
	plan.TotalEstimatedDuration = max
	return plan
}

// tradeoffsFor returns the fixed comparison profile for a variant.
func tradeoffsFor(v Variant) TradeoffProfile {
	switch v {
	case VariantSequential:
		return TradeoffProfile{
			Advantages:    []string{"predictable ordering", "minimal coordination overhead", "simple failure isolation"},
			Disadvantages: []string{"longest wall-clock time", "idle worker capacity"},
			OptimalFor:    []string{"strongly ordered work", "constrained worker pools"},
		}
	case VariantParallel:
		return TradeoffProfile{
			Advantages:    []string{"shortest wall-clock time", "full worker utilization"},
			Disadvantages: []string{"higher coordination complexity", "harder failure attribution", "resource spikes"},
			OptimalFor:    []string{"independent tasks", "deadline-driven requests"},
		}
	default:
		return TradeoffProfile{
			Advantages:    []string{"balances ordering constraints against parallel speedup"},
			Disadvantages: []string{"neither fastest nor simplest"},
			OptimalFor:    []string{"mixed-dependency workloads"},
		}
	}
}
