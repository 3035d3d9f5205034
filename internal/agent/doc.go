// Package agent defines the contracts cortexd consumes from the surrounding
// platform: the language-runtime adapter used for intent parsing, the agent
// registry used to resolve worker agents, and the worker agent delegation
// interface. The concrete backends live outside this module; only the
// contracts matter here.
//
// An in-memory registry implementation is provided for wiring and tests.
package agent
