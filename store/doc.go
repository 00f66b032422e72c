// Package store defines the composite persistence contract for jobmill.
// Each backend (memory, postgres, sqlite, redis) implements the job.Store
// interface plus the lifecycle methods the root Queue holds.
package store
