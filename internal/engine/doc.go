// Package engine is the top-level cognitive orchestrator.
//
// It owns per-session state and sequences the cognitive components for each
// processing request: understanding, knowledge retrieval, planning, dispatch
// under monitoring, feedback refinement, and learning. Every stage is timed
// and assessed by the meta-cognitive engine, and session lifecycle events
// are delivered to per-session listeners.
package engine
