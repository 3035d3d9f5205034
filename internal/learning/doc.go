// Package learning converts completed feedback cycles into classified
// examples and maintains the knowledge base.
//
// Each completed cycle yields one Example with extracted factor tags and
// lessons. Pattern mining groups similar examples, success analysis keeps
// rolling strategy scores, and failure analysis classifies failures into
// typed mitigations. Knowledge retrieval is backed by an embedded chromem
// vector store with a deterministic local embedder.
package learning
