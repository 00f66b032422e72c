// Package worker contains the dispatch loop and per-job execution
// machinery. The Dispatcher polls the store for eligible pending jobs
// and claims them up to the configured concurrency budget; the Executor
// runs each claimed job through the middleware chain and persists its
// terminal state; the CancelController carries the cooperative
// cancellation signal, including the automatic per-job deadline.
package worker
