// Package monitor tracks live execution state for plans.
//
// A Monitor owns one ExecutionState and one AnomalyDetector per registered
// plan. Task-status events mutate the state in place; a periodic sampling
// loop recomputes derived metrics, feeds them to the detector, checks static
// thresholds, and raises alerts and adaptation triggers.
package monitor
