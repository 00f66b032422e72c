// Package jobmill provides a durable, priority-ordered background job queue
// for Go. Jobs are persisted through a pluggable store, claimed by a polling
// dispatcher under a bounded concurrency budget, and executed with
// cooperative cancellation and deadline support.
//
// Jobmill is designed as a library, not a service. Import it, configure a
// store, register handlers, and start the engine.
//
// # Quick Start
//
//	q, err := jobmill.New(
//	    jobmill.WithStore(store),
//	    jobmill.WithMaxConcurrent(20),
//	)
//
// # Architecture
//
// The root package holds the thin Queue coordinator. The job package defines
// the record model, handler contract, and store interface; worker implements
// the claim loop and execution; retention sweeps finished work; tuning applies
// per-principal overrides; engine assembles everything into the public API.
//
// All entity IDs are TypeIDs: type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package jobmill
