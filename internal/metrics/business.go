package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Status label values shared by the decorators.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// BusinessMetrics records vault and orchestrator operations.
type BusinessMetrics interface {
	// RecordOperation counts one operation. domain is "vault" or "orchestrator",
	// operation names the call ("credential_store", "dispatch_skill", "health").
	RecordOperation(ctx context.Context, domain, operation, status string)

	// RecordDuration observes the latency of one operation in seconds.
	RecordDuration(ctx context.Context, domain, operation string, duration time.Duration, status string)

	// RecordAttempts observes how many invocation attempts a completed dispatch took.
	RecordAttempts(ctx context.Context, capability string, attempts int)
}

type businessMetrics struct {
	operations metric.Int64Counter
	durations  metric.Float64Histogram
	attempts   metric.Int64Histogram
}

// NewBusinessMetrics creates the instruments under namespace, e.g.
// capvault_operations_total and capvault_dispatch_attempts.
func NewBusinessMetrics(meterProvider metric.MeterProvider, namespace string) (BusinessMetrics, error) {
	meter := meterProvider.Meter(namespace)

	operations, err := meter.Int64Counter(
		namespace+"_operations_total",
		metric.WithDescription("Total number of vault and orchestrator operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation counter: %w", err)
	}

	durations, err := meter.Float64Histogram(
		namespace+"_operation_duration_seconds",
		metric.WithDescription("Duration of vault and orchestrator operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	attempts, err := meter.Int64Histogram(
		namespace+"_dispatch_attempts",
		metric.WithDescription("Invocation attempts per completed capability dispatch"),
		metric.WithUnit("{attempt}"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 5, 8),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create attempts histogram: %w", err)
	}

	return &businessMetrics{operations: operations, durations: durations, attempts: attempts}, nil
}

func operationAttributes(domain, operation, status string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("domain", domain),
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
}

func (b *businessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	b.operations.Add(ctx, 1, operationAttributes(domain, operation, status))
}

func (b *businessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	b.durations.Record(ctx, duration.Seconds(), operationAttributes(domain, operation, status))
}

func (b *businessMetrics) RecordAttempts(ctx context.Context, capability string, attempts int) {
	b.attempts.Record(ctx, int64(attempts), metric.WithAttributes(attribute.String("capability", capability)))
}

// NoOpBusinessMetrics is used when metrics are disabled.
type NoOpBusinessMetrics struct{}

// NewNoOpBusinessMetrics creates a no-op BusinessMetrics implementation.
func NewNoOpBusinessMetrics() BusinessMetrics {
	return &NoOpBusinessMetrics{}
}

func (n *NoOpBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
}

func (n *NoOpBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
}

func (n *NoOpBusinessMetrics) RecordAttempts(ctx context.Context, capability string, attempts int) {}
