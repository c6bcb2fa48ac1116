package usecase

import (
	"context"
	"errors"
	"time"

	capabilityDomain "github.com/allisson/capvault/internal/capability/domain"
	"github.com/allisson/capvault/internal/metrics"
	orchestratorDomain "github.com/allisson/capvault/internal/orchestrator/domain"
)

// supervisorWithMetrics decorates Supervisor with metrics instrumentation.
type supervisorWithMetrics struct {
	next    Supervisor
	metrics metrics.BusinessMetrics
}

// NewSupervisorWithMetrics wraps a Supervisor with metrics recording.
func NewSupervisorWithMetrics(supervisor Supervisor, m metrics.BusinessMetrics) Supervisor {
	return &supervisorWithMetrics{
		next:    supervisor,
		metrics: m,
	}
}

// Dispatch records metrics per capability dispatch.
func (s *supervisorWithMetrics) Dispatch(
	ctx context.Context,
	d capabilityDomain.Descriptor,
	payload orchestratorDomain.Payload,
) (*orchestratorDomain.Result, error) {
	start := time.Now()
	result, err := s.next.Dispatch(ctx, d, payload)

	status := metrics.StatusSuccess
	switch {
	case err == nil:
		s.metrics.RecordAttempts(ctx, d.Name, result.Attempts)
	case errors.Is(err, orchestratorDomain.ErrTimeout):
		status = metrics.StatusTimeout
	default:
		status = metrics.StatusError
	}
	operation := "dispatch_" + string(d.Kind)
	s.metrics.RecordOperation(ctx, "orchestrator", operation, status)
	s.metrics.RecordDuration(ctx, "orchestrator", operation, time.Since(start), status)
	return result, err
}

// Health records the composite health status.
func (s *supervisorWithMetrics) Health(ctx context.Context) (*orchestratorDomain.HealthReport, error) {
	start := time.Now()
	report, err := s.next.Health(ctx)

	status := metrics.StatusError
	if err == nil {
		status = string(report.Status)
	}
	s.metrics.RecordOperation(ctx, "orchestrator", "health", status)
	s.metrics.RecordDuration(ctx, "orchestrator", "health", time.Since(start), status)
	return report, err
}
