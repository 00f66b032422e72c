// Package middleware provides composable middleware for job execution.
// Middleware wraps handler calls synchronously and can modify execution
// (recover from panics, log, record metrics, add tracing, etc.).
//
// The executor builds a terminal Handler closing over the registered job
// handler and runs it through the chain, so every middleware sees the
// record being executed and the context carrying its cancellation signal.
package middleware
