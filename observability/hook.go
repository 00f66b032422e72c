package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/jobmill/jobmill/hook"
	"github.com/jobmill/jobmill/job"
)

// meterName is the instrumentation scope name for queue-wide metrics.
const meterName = "github.com/jobmill/jobmill/observability"

// Compile-time interface checks.
var (
	_ hook.Hook           = (*MetricsHook)(nil)
	_ hook.JobEnqueued    = (*MetricsHook)(nil)
	_ hook.JobStarted     = (*MetricsHook)(nil)
	_ hook.JobCompleted   = (*MetricsHook)(nil)
	_ hook.JobFailed      = (*MetricsHook)(nil)
	_ hook.JobCancelled   = (*MetricsHook)(nil)
	_ hook.SweepCompleted = (*MetricsHook)(nil)
)

// MetricsHook records queue-wide lifecycle metrics via OpenTelemetry.
// With no MeterProvider configured the instruments are noops, so the hook
// is always safe to register.
type MetricsHook struct {
	enqueued  metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
	cancelled metric.Int64Counter
	swept     metric.Int64Counter
	running   metric.Int64UpDownCounter
}

// NewMetricsHook creates a MetricsHook using the global MeterProvider.
func NewMetricsHook() *MetricsHook {
	return NewMetricsHookWithMeter(otel.Meter(meterName))
}

// NewMetricsHookWithMeter creates a MetricsHook with the provided meter.
// Use this variant to inject a specific MeterProvider for testing.
func NewMetricsHookWithMeter(meter metric.Meter) *MetricsHook {
	h := &MetricsHook{}

	// On error, the OTel API returns noop instruments, so the individual
	// errors are intentionally discarded.
	h.enqueued, _ = meter.Int64Counter("jobmill.job.enqueued",
		metric.WithDescription("Total jobs enqueued"),
		metric.WithUnit("{job}"),
	)
	h.completed, _ = meter.Int64Counter("jobmill.job.completed",
		metric.WithDescription("Total jobs completed successfully"),
		metric.WithUnit("{job}"),
	)
	h.failed, _ = meter.Int64Counter("jobmill.job.failed",
		metric.WithDescription("Total jobs failed"),
		metric.WithUnit("{job}"),
	)
	h.cancelled, _ = meter.Int64Counter("jobmill.job.cancelled",
		metric.WithDescription("Total jobs cancelled"),
		metric.WithUnit("{job}"),
	)
	h.swept, _ = meter.Int64Counter("jobmill.retention.deleted",
		metric.WithDescription("Total finished jobs deleted by the retention sweeper"),
		metric.WithUnit("{job}"),
	)
	h.running, _ = meter.Int64UpDownCounter("jobmill.job.running",
		metric.WithDescription("Jobs currently executing"),
		metric.WithUnit("{job}"),
	)

	return h
}

// Name implements hook.Hook.
func (m *MetricsHook) Name() string { return "observability-metrics" }

// OnJobEnqueued implements hook.JobEnqueued.
func (m *MetricsHook) OnJobEnqueued(ctx context.Context, _ *job.Record) error {
	m.enqueued.Add(ctx, 1)
	return nil
}

// OnJobStarted implements hook.JobStarted.
func (m *MetricsHook) OnJobStarted(ctx context.Context, _ *job.Record) error {
	m.running.Add(ctx, 1)
	return nil
}

// OnJobCompleted implements hook.JobCompleted.
func (m *MetricsHook) OnJobCompleted(ctx context.Context, _ *job.Record, _ time.Duration) error {
	m.completed.Add(ctx, 1)
	m.running.Add(ctx, -1)
	return nil
}

// OnJobFailed implements hook.JobFailed.
func (m *MetricsHook) OnJobFailed(ctx context.Context, _ *job.Record, _ error) error {
	m.failed.Add(ctx, 1)
	m.running.Add(ctx, -1)
	return nil
}

// OnJobCancelled implements hook.JobCancelled.
func (m *MetricsHook) OnJobCancelled(ctx context.Context, r *job.Record) error {
	m.cancelled.Add(ctx, 1)
	// Only a job that actually started holds a running slot. A record
	// cancelled while still pending never incremented the gauge.
	if r.StartedAt != nil {
		m.running.Add(ctx, -1)
	}
	return nil
}

// OnSweepCompleted implements hook.SweepCompleted.
func (m *MetricsHook) OnSweepCompleted(ctx context.Context, deleted int64) error {
	m.swept.Add(ctx, deleted)
	return nil
}
