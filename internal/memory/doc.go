// Package memory provides the per-user rolling conversation context store.
//
// The store keeps a bounded window of recent turns together with extracted
// entities, user preferences, domain expertise estimates, and the history of
// clarification exchanges. The understanding engine reads this context to
// ground intent analysis; the engine writes back after every processed turn.
//
// Contract: one writer per user id. Callers that share a user id across
// goroutines must serialize their writes; the store's internal mutex protects
// map integrity, not cross-call read-modify-write sequences.
package memory
