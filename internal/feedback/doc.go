// Package feedback wraps one planning→execution→evaluation pass as a cycle.
//
// A cycle moves through started → analyzed → (refined)* → completed. Result
// processing detects issues and derives refinement triggers; refinement
// application is bounded and produces new Understanding/Plan values rather
// than mutating the originals. Completed cycles are archived with
// improvement metrics.
package feedback
