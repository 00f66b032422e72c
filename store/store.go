package store

import (
	"context"

	"github.com/jobmill/jobmill/job"
)

// Store is the full persistence contract a backend implements: the job
// record store plus lifecycle management.
type Store interface {
	job.Store

	// Migrate creates or upgrades the backend schema.
	Migrate(ctx context.Context) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}
