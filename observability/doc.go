// Package observability provides a lifecycle hook that records
// queue-wide metrics through OpenTelemetry. Register it on the engine to
// track enqueue, completion, failure, and cancellation counts plus the
// number of jobs currently running.
package observability
