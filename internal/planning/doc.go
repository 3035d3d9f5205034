// Package planning compiles understandings into dependency-graph execution
// plans. A plan is built one node per goal, validated by five independent
// checks (resource, dependency, capability, timeline, cost), optionally
// simulated over randomized trials and risk-assessed, and can be rendered
// into alternative sequential/parallel/hybrid variants or optimized against
// weighted objectives.
//
// Plans are read-only once validated. Refinement never mutates a plan; it
// derives a new plan with a new id via Clone.
package planning
