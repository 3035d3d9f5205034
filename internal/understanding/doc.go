// Package understanding turns one user message plus stored context into a
// three-layer understanding: the surface intent from the runtime adapter, a
// semantic layer (goals, constraints, contextual info, ambiguities) built
// from rule tables, and a strategic layer (business objectives, success
// criteria, risk factors) derived from the semantic layer.
//
// Understandings are immutable once produced. Refinement and clarification
// feedback produce new values via Clone; ambiguities are removed, never
// mutated in place.
package understanding
