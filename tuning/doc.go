// Package tuning applies per-principal runtime overrides to the queue.
// A principal's stored settings can raise or lower the concurrency
// ceiling, change the dispatcher's poll interval, and rate-limit how fast
// that principal's jobs are claimed. Missing overrides fall back to the
// process defaults; changes take effect on the next dispatcher tick and
// never preempt jobs that are already running.
package tuning
