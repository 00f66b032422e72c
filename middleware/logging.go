package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/jobmill/jobmill/job"
)

// Logging returns middleware that logs job start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, r *job.Record, next Handler) error {
		logger.Info("job started",
			slog.String("job_type", r.Type),
			slog.String("job_id", r.ID.String()),
			slog.String("principal_id", r.PrincipalID),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("job failed",
				slog.String("job_type", r.Type),
				slog.String("job_id", r.ID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("job completed",
				slog.String("job_type", r.Type),
				slog.String("job_id", r.ID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
