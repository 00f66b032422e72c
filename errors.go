package jobmill

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("jobmill: no store configured")
	ErrStoreClosed     = errors.New("jobmill: store closed")
	ErrMigrationFailed = errors.New("jobmill: migration failed")

	// Not found errors.
	ErrJobNotFound = errors.New("jobmill: job not found")

	// Registration errors.
	ErrUnknownJobType = errors.New("jobmill: unknown job type")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("jobmill: job already exists")

	// State errors.
	ErrInvalidState = errors.New("jobmill: invalid state transition")
)
